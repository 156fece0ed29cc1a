package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/samcharles93/parley/internal/chat"
)

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	if err := (<-ch).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestObserveTurn(t *testing.T) {
	t.Parallel()
	m := New(prometheus.NewRegistry())
	m.ObserveTurn(Turn{Family: "llama3", Outcome: "stopped", Generated: 10, Emitted: 6, Suppressed: 2, Elapsed: time.Second})

	if v := counterValue(t, m.turns.WithLabelValues("llama3", "stopped")); v != 1 {
		t.Fatalf("turns = %v", v)
	}
	for disposition, want := range map[string]float64{"emitted": 6, "suppressed": 2, "withheld": 2} {
		if v := counterValue(t, m.tokens.WithLabelValues("llama3", disposition)); v != want {
			t.Fatalf("%s tokens = %v, want %v", disposition, v, want)
		}
	}
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{&chat.TemplateError{Reason: "empty"}, "template"},
		{fmt.Errorf("turn: %w", &chat.DecodeError{Token: 1, Err: errors.New("x")}), "decode"},
		{&chat.EngineError{Err: errors.New("down")}, "engine"},
		{&chat.StopResolutionError{Marker: "<|eot_id|>"}, "stop_resolution"},
		{errors.New("disk full"), "other"},
	}
	for _, tc := range tests {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	m.ObserveTurn(Turn{})
	m.ObserveError(errors.New("x"))
	m.SessionOpened()
	m.SessionClosed()
}
