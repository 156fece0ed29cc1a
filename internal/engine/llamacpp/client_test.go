package llamacpp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"

	"github.com/samcharles93/parley/internal/engine"
)

func TestGenerateStreamsTokenIDs(t *testing.T) {
	t.Parallel()
	var got completionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completion" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"content\":\"He\",\"tokens\":[10]}\n\n")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, "data: {\"content\":\"llo\",\"tokens\":[11,12]}\n\n")
		fmt.Fprint(w, "data: {\"content\":\"\",\"tokens\":[],\"stop\":true}\n\n")
		fmt.Fprint(w, "data: {\"content\":\"x\",\"tokens\":[99]}\n\n")
	}))
	defer srv.Close()

	c := New(srv.URL + "/")
	var ids []int
	for id, err := range c.Generate(context.Background(), engine.Request{
		Prompt:    []int{1, 2, 3},
		MaxTokens: 16,
		Sampling:  engine.Sampling{Temperature: 0.7, TopK: 40},
	}) {
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		ids = append(ids, id)
	}

	if !slices.Equal(ids, []int{10, 11, 12}) {
		t.Fatalf("ids = %v", ids)
	}
	if !got.Stream || !got.ReturnTokens || got.NPredict != 16 || !slices.Equal(got.Prompt, []int{1, 2, 3}) {
		t.Fatalf("request = %+v", got)
	}
	if got.Temperature != 0.7 || got.TopK != 40 {
		t.Fatalf("sampling not forwarded: %+v", got)
	}
}

func TestGenerateEarlyBreakCancelsRequest(t *testing.T) {
	t.Parallel()
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer close(done)
		flusher := w.(http.Flusher)
		for i := 0; ; i++ {
			if _, err := fmt.Fprintf(w, "data: {\"tokens\":[%d]}\n\n", i); err != nil {
				return
			}
			flusher.Flush()
			select {
			case <-r.Context().Done():
				return
			default:
			}
		}
	}))
	defer srv.Close()

	for id, err := range New(srv.URL).Generate(context.Background(), engine.Request{Prompt: []int{1}}) {
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if id == 2 {
			break
		}
	}
	<-done
}

func TestGenerateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    string
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
				fmt.Fprint(w, `{"error":{"code":503,"message":"Loading model"}}`)
			},
			want: "Loading model",
		},
		{
			name: "stream error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "data: {\"tokens\":[4]}\n\n")
				fmt.Fprint(w, "data: {\"error\":{\"code\":400,\"message\":\"context overflow\"}}\n\n")
			},
			want: "context overflow",
		},
		{
			name: "malformed",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, "data: {nope\n\n")
			},
			want: "decode stream chunk",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			var last error
			for _, err := range New(srv.URL).Generate(context.Background(), engine.Request{}) {
				if err != nil {
					last = err
				}
			}
			if last == nil || !strings.Contains(last.Error(), tc.want) {
				t.Fatalf("error = %v, want %q", last, tc.want)
			}
		})
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	var ready atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"status":"ok"}`)
	}))
	defer srv.Close()

	c := New(srv.URL)
	if err := c.Health(context.Background()); err == nil {
		t.Fatal("expected error while loading")
	}
	ready.Store(true)
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("Health: %v", err)
	}
}

func TestTokenizerEndpoints(t *testing.T) {
	t.Parallel()
	var detokenizeCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var in map[string]any
		_ = json.NewDecoder(r.Body).Decode(&in)
		switch r.URL.Path {
		case "/tokenize":
			if in["add_special"] != false {
				t.Errorf("add_special = %v", in["add_special"])
			}
			content := in["content"].(string)
			special := in["parse_special"] == true
			switch {
			case content == "<|eot_id|>" && special:
				fmt.Fprint(w, `{"tokens":[128009]}`)
			case content == "<|eot_id|>":
				fmt.Fprint(w, `{"tokens":[27,91,68]}`)
			case content == "word":
				fmt.Fprint(w, `{"tokens":[1178]}`)
			default:
				fmt.Fprint(w, `{"tokens":[1,2]}`)
			}
		case "/detokenize":
			detokenizeCalls.Add(1)
			fmt.Fprint(w, `{"content":"hi"}`)
		}
	}))
	defer srv.Close()

	tok := New(srv.URL).Tokenizer()
	if id, ok := tok.LookupSpecialToken("<|eot_id|>"); !ok || id != 128009 {
		t.Fatalf("LookupSpecialToken = %d,%v", id, ok)
	}
	if _, ok := tok.LookupSpecialToken("word"); ok {
		t.Fatal("plain word reported as special")
	}
	ids, err := tok.Encode("hello there")
	if err != nil || !slices.Equal(ids, []int{1, 2}) {
		t.Fatalf("Encode = %v, %v", ids, err)
	}
	for range 3 {
		if s, err := tok.Decode([]int{5}); err != nil || s != "hi" {
			t.Fatalf("Decode = %q, %v", s, err)
		}
	}
	if n := detokenizeCalls.Load(); n != 1 {
		t.Fatalf("expected single-id decode to be cached, got %d calls", n)
	}
}
