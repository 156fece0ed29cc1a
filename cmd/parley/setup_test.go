package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/samcharles93/parley/internal/logger"
	"github.com/samcharles93/parley/internal/prompt"
	"github.com/samcharles93/parley/internal/tokenizer/tokenizertest"
	"github.com/samcharles93/parley/internal/transcript"
)

func testBackend(t *testing.T, fam prompt.Family) *backend {
	t.Helper()
	store, err := transcript.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	tok := tokenizertest.New(map[string]int{"<s>": 1, "</s>": 2, "a": 3}, "<s>", "</s>")
	return &backend{family: fam, tok: tok, store: store, log: logger.Discard()}
}

func TestNewSessionRecordsStartedSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := testBackend(t, prompt.Llama2)
	sess, err := b.newSession(ctx, "be brief")
	if err != nil {
		t.Fatalf("newSession: %v", err)
	}
	defer sess.Close()
	rec, err := b.store.Session(ctx, sess.ID())
	if err != nil || rec.Family != "llama2" {
		t.Fatalf("recorded session = %+v, %v", rec, err)
	}
}

func TestNewSessionFailureLeavesNoRow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	b := testBackend(t, prompt.Family(99))
	if _, err := b.newSession(ctx, ""); err == nil {
		t.Fatalf("expected an error for an unknown family")
	}
	list, err := b.store.Sessions(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("failed start left rows: %+v", list)
	}
}
