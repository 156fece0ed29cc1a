// Package metrics holds the Prometheus collectors for chat turns.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/samcharles93/parley/internal/chat"
)

// Metrics is safe for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	turns      *prometheus.CounterVec
	tokens     *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	turnErrors *prometheus.CounterVec
	sessions   prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		turns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "parley",
				Subsystem: "chat",
				Name:      "turns_total",
				Help:      "Completed turns by terminal outcome",
			},
			[]string{"family", "outcome"},
		),
		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "parley",
				Subsystem: "chat",
				Name:      "tokens_total",
				Help:      "Generated tokens by disposition: emitted, suppressed or withheld",
			},
			[]string{"family", "disposition"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "parley",
				Subsystem: "chat",
				Name:      "turn_duration_seconds",
				Help:      "Wall time from prompt render to the end of the stream",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"family"},
		),
		turnErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "parley",
				Subsystem: "chat",
				Name:      "turn_errors_total",
				Help:      "Aborted turns by error kind",
			},
			[]string{"kind"},
		),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "parley",
			Subsystem: "chat",
			Name:      "open_sessions",
			Help:      "Sessions currently open",
		}),
	}
	reg.MustRegister(m.turns, m.tokens, m.duration, m.turnErrors, m.sessions)
	return m
}

// Turn is what a finished turn reports.
type Turn struct {
	Family     string
	Outcome    string
	Generated  int
	Emitted    int
	Suppressed int
	Elapsed    time.Duration
}

func (m *Metrics) ObserveTurn(t Turn) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(t.Family, t.Outcome).Inc()
	m.tokens.WithLabelValues(t.Family, "emitted").Add(float64(t.Emitted))
	m.tokens.WithLabelValues(t.Family, "suppressed").Add(float64(t.Suppressed))
	if withheld := t.Generated - t.Emitted - t.Suppressed; withheld > 0 {
		m.tokens.WithLabelValues(t.Family, "withheld").Add(float64(withheld))
	}
	m.duration.WithLabelValues(t.Family).Observe(t.Elapsed.Seconds())
}

// ObserveError counts an aborted turn under the kind of err.
func (m *Metrics) ObserveError(err error) {
	if m == nil || err == nil {
		return
	}
	m.turnErrors.WithLabelValues(ErrorKind(err)).Inc()
}

func (m *Metrics) SessionOpened() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

// ErrorKind maps err to a low-cardinality label.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, chat.ErrTemplate):
		return "template"
	case errors.Is(err, chat.ErrStopResolution):
		return "stop_resolution"
	case errors.Is(err, chat.ErrDecode):
		return "decode"
	case errors.Is(err, chat.ErrEngine):
		return "engine"
	default:
		return "other"
	}
}
