package server

import (
	"context"
	"iter"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/samcharles93/parley/internal/chat"
	"github.com/samcharles93/parley/internal/engine"
	"github.com/samcharles93/parley/internal/metrics"
	"github.com/samcharles93/parley/internal/prompt"
	"github.com/samcharles93/parley/internal/session"
	"github.com/samcharles93/parley/internal/tokenizer/tokenizertest"
	"github.com/samcharles93/parley/internal/transcript"
)

func vocab() *tokenizertest.Vocab {
	pieces := map[string]int{"<s>": 1, "</s>": 2}
	for b := 32; b < 127; b++ {
		pieces[string(rune(b))] = b
	}
	pieces["\n"] = 10
	// Byte pieces of "é", as a byte-level vocabulary would split it.
	pieces["\xc3"] = 200
	pieces["\xa9"] = 201
	return tokenizertest.New(pieces, "<s>", "</s>")
}

type fixture struct {
	e     *echo.Echo
	srv   *Server
	store *transcript.Store
}

func newFixture(t *testing.T, eng engine.Engine) fixture {
	t.Helper()
	store, err := transcript.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	srv := New(Config{
		NewSession: func(ctx context.Context, system string) (*session.Session, error) {
			if system == "" {
				system = "default"
			}
			sess, err := session.New(vocab(), eng, session.Options{
				Family:       prompt.Llama2,
				SystemPrompt: system,
				Recorder:     store,
				Metrics:      m,
			})
			if err != nil {
				return nil, err
			}
			return sess, store.CreateSession(ctx, transcript.Session{ID: sess.ID(), Family: "llama2"})
		},
		Store:    store,
		Gatherer: reg,
	})
	e := echo.New()
	srv.Register(e)
	return fixture{e: e, srv: srv, store: store}
}

func (f fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func (f fixture) create(t *testing.T, body string) sessionResponse {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/v1/sessions", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status %d body=%s", rec.Code, rec.Body.String())
	}
	var out sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return out
}

func encode(text string) []int {
	ids, _ := vocab().Encode(text)
	return ids
}

func TestStreamedTurn(t *testing.T) {
	t.Parallel()
	f := newFixture(t, engine.Script(append(encode(" Hi!"), 2)...))
	sess := f.create(t, `{"system_prompt":"be brief"}`)
	if sess.Family != "llama2" || sess.State != "awaiting_input" || len(sess.Messages) != 1 {
		t.Fatalf("created session = %+v", sess)
	}

	rec := f.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/messages", `{"content":"hello"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}
	body := rec.Body.String()
	if strings.Count(body, "event: fragment\n") != 4 {
		t.Fatalf("expected 4 fragment events, got body:\n%s", body)
	}
	if !strings.Contains(body, "event: done\n") || !strings.Contains(body, `"reply":"Hi!"`) {
		t.Fatalf("missing done event:\n%s", body)
	}

	rec = f.do(t, http.MethodGet, "/v1/sessions/"+sess.ID, "")
	var got sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []chat.Message{
		{Role: chat.RoleSystem, Content: "be brief"},
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleAssistant, Content: "Hi!"},
	}
	if len(got.Messages) != 3 || got.Messages[2] != want[2] || got.Messages[0] != want[0] {
		t.Fatalf("messages = %+v", got.Messages)
	}
}

func TestStreamedTurnJoinsSplitRunes(t *testing.T) {
	t.Parallel()
	ids := append(encode(" caf"), 200, 201, '!', 2)
	f := newFixture(t, engine.Script(ids...))
	sess := f.create(t, `{}`)

	rec := f.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/messages", `{"content":"order"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if strings.Contains(body, `\ufffd`) || strings.Contains(body, "\ufffd") {
		t.Fatalf("replacement character in stream:\n%s", body)
	}
	var text strings.Builder
	for _, line := range strings.Split(body, "\n") {
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok || !strings.Contains(data, `"text"`) {
			continue
		}
		var frag struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(data), &frag); err != nil {
			t.Fatalf("decode %q: %v", data, err)
		}
		text.WriteString(frag.Text)
	}
	if text.String() != " café!" {
		t.Fatalf("streamed text = %q", text.String())
	}
	if !strings.Contains(body, `"reply":"café!"`) {
		t.Fatalf("missing done reply:\n%s", body)
	}
}

func TestNonStreamedTurnAndMetrics(t *testing.T) {
	t.Parallel()
	f := newFixture(t, engine.Script(append(encode("ok"), 2)...))
	sess := f.create(t, "")

	rec := f.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/messages", `{"content":"q","stream":false}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body=%s", rec.Code, rec.Body.String())
	}
	var reply replyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &reply); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reply.Reply != "ok" || reply.Outcome != "stopped" || reply.Generated != 3 {
		t.Fatalf("reply = %+v", reply)
	}

	rec = f.do(t, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), `parley_chat_turns_total{family="llama2",outcome="stopped"} 1`) {
		t.Fatalf("metrics missing turn counter:\n%s", rec.Body.String())
	}
}

func TestClosedSessionServedFromStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t, engine.Script(append(encode("bye"), 2)...))
	sess := f.create(t, "")
	f.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/messages", `{"content":"q","stream":false}`)

	if rec := f.do(t, http.MethodDelete, "/v1/sessions/"+sess.ID, ""); rec.Code != http.StatusNoContent {
		t.Fatalf("delete status %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/messages", `{"content":"q"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("send to closed session status %d", rec.Code)
	}

	rec := f.do(t, http.MethodGet, "/v1/sessions/"+sess.ID, "")
	var got sessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.State != "closed" || len(got.Messages) != 3 || got.Messages[2].Content != "bye" {
		t.Fatalf("stored session = %+v", got)
	}
}

func TestRequestErrors(t *testing.T) {
	t.Parallel()
	failing := engine.Func(func(context.Context, engine.Request) iter.Seq2[int, error] {
		return func(yield func(int, error) bool) { yield(0, context.DeadlineExceeded) }
	})
	f := newFixture(t, failing)
	sess := f.create(t, "")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown session", http.MethodGet, "/v1/sessions/nope", "", http.StatusNotFound},
		{"bad json", http.MethodPost, "/v1/sessions/" + sess.ID + "/messages", `{`, http.StatusBadRequest},
		{"empty content", http.MethodPost, "/v1/sessions/" + sess.ID + "/messages", `{"content":""}`, http.StatusBadRequest},
		{"engine failure", http.MethodPost, "/v1/sessions/" + sess.ID + "/messages", `{"content":"q","stream":false}`, http.StatusBadGateway},
		{"engine failure streamed", http.MethodPost, "/v1/sessions/" + sess.ID + "/messages", `{"content":"q"}`, http.StatusBadGateway},
		{"delete unknown", http.MethodDelete, "/v1/sessions/nope", "", http.StatusNotFound},
	}
	for _, tc := range tests {
		rec := f.do(t, tc.method, tc.path, tc.body)
		if rec.Code != tc.status {
			t.Errorf("%s: status %d, want %d (body=%s)", tc.name, rec.Code, tc.status, rec.Body.String())
		}
	}
}

func TestConcurrentTurnConflict(t *testing.T) {
	t.Parallel()
	started := make(chan struct{})
	release := make(chan struct{})
	blocking := engine.Func(func(context.Context, engine.Request) iter.Seq2[int, error] {
		return func(yield func(int, error) bool) {
			close(started)
			<-release
			yield(2, nil)
		}
	})
	f := newFixture(t, blocking)
	sess := f.create(t, "")

	done := make(chan int, 1)
	go func() {
		done <- f.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/messages", `{"content":"a","stream":false}`).Code
	}()
	<-started
	rec := f.do(t, http.MethodPost, "/v1/sessions/"+sess.ID+"/messages", `{"content":"b","stream":false}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("concurrent turn status %d, want 409", rec.Code)
	}
	close(release)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("first turn status %d", code)
	}
	f.srv.CloseAll()
}
