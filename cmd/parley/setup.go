package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/parley/internal/chat"
	"github.com/samcharles93/parley/internal/engine"
	"github.com/samcharles93/parley/internal/engine/llamacpp"
	"github.com/samcharles93/parley/internal/hub"
	"github.com/samcharles93/parley/internal/logger"
	"github.com/samcharles93/parley/internal/metrics"
	"github.com/samcharles93/parley/internal/prompt"
	"github.com/samcharles93/parley/internal/session"
	"github.com/samcharles93/parley/internal/tokenizer"
	"github.com/samcharles93/parley/internal/transcript"
)

func sampling() engine.Sampling {
	return engine.Sampling{
		Temperature:   temperature,
		TopK:          int(topK),
		TopP:          topP,
		MinP:          minP,
		RepeatPenalty: repeatPenalty,
		RepeatLastN:   int(repeatLastN),
		Seed:          seed,
	}
}

// loadTokenizer picks the tokenizer source: a local tokenizer.json, the
// engine's own endpoints, or the hub repo inferred from --repo-id.
func loadTokenizer(ctx context.Context, client *llamacpp.Client) (tokenizer.Tokenizer, error) {
	log := logger.FromContext(ctx)
	switch {
	case tokenizerJSON != "":
		log.Debug("loading local tokenizer", "path", tokenizerJSON)
		tok, err := tokenizer.LoadHFTokenizer(tokenizerJSON, tokenizerConfig)
		if err != nil {
			return nil, fmt.Errorf("load tokenizer: %w", err)
		}
		return tok, nil
	case engineTokenizer:
		if client == nil {
			return nil, errors.New("--engine-tokenizer needs an engine")
		}
		return client.Tokenizer(), nil
	}

	dir := cacheDir
	if dir == "" {
		var err error
		if dir, err = hub.DefaultCacheDir(); err != nil {
			return nil, err
		}
	}
	f := hub.NewFetcher(dir, hfToken)
	f.Log = log
	tok, err := f.Tokenizer(ctx, repoID)
	if err != nil {
		return nil, fmt.Errorf("tokenizer for %s: %w", repoID, err)
	}
	return tok, nil
}

// openStore returns nil when recording is disabled.
func openStore() (*transcript.Store, error) {
	if historyDB == "" {
		return nil, nil
	}
	st, err := transcript.Open(historyDB)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return st, nil
}

// backend is everything a session needs that outlives any one session.
type backend struct {
	family  prompt.Family
	tok     tokenizer.Tokenizer
	engine  *llamacpp.Client
	store   *transcript.Store
	metrics *metrics.Metrics
	log     logger.Logger
}

func newBackend(ctx context.Context) (*backend, error) {
	log := logger.FromContext(ctx)
	fam, err := prompt.ResolveFamily(family, repoID)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	client := llamacpp.New(engineURL, llamacpp.WithLogger(log))
	if err := client.Health(ctx); err != nil {
		return nil, cli.Exit(fmt.Sprintf("engine at %s is not ready: %v", engineURL, err), 1)
	}
	tok, err := loadTokenizer(ctx, client)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	store, err := openStore()
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	log.Info("backend ready", "engine", engineURL, "family", fam.String(), "repo", repoID)
	return &backend{family: fam, tok: tok, engine: client, store: store, log: log}, nil
}

func (b *backend) Close() error {
	if b.store == nil {
		return nil
	}
	return b.store.Close()
}

func (b *backend) options(id string) session.Options {
	opts := session.Options{
		ID:           id,
		Family:       b.family,
		SystemPrompt: systemPrompt,
		MaxNewTokens: int(maxNewTokens),
		Sampling:     sampling(),
		ExtraStops:   stopSequences,
		Metrics:      b.metrics,
		Logger:       b.log,
	}
	if b.store != nil {
		opts.Recorder = b.store
	}
	return opts
}

// newSession starts a fresh conversation. The store only sees sessions that
// started.
func (b *backend) newSession(ctx context.Context, system string) (*session.Session, error) {
	opts := b.options(uuid.NewString())
	if system != "" {
		opts.SystemPrompt = system
	}
	sess, err := session.New(b.tok, b.engine, opts)
	if err != nil {
		return nil, err
	}
	if b.store != nil {
		err := b.store.CreateSession(ctx, transcript.Session{
			ID:        opts.ID,
			Family:    b.family.String(),
			RepoID:    repoID,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			sess.Close()
			return nil, err
		}
	}
	return sess, nil
}

// resumeSession restores a recorded conversation.
func (b *backend) resumeSession(ctx context.Context, id string) (*session.Session, error) {
	if b.store == nil {
		return nil, errors.New("--resume needs --history-db")
	}
	rec, err := b.store.Session(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resume %s: %w", id, err)
	}
	if rec.Family != b.family.String() {
		b.log.Warn("resuming with a different prompt family", "recorded", rec.Family, "current", b.family.String())
	}
	msgs, err := b.store.Messages(ctx, id)
	if err != nil {
		return nil, err
	}
	opts := b.options(id)
	// A session that never completed a turn has nothing recorded yet.
	if len(msgs) > 0 {
		hist, err := chat.Restore(msgs)
		if err != nil {
			return nil, fmt.Errorf("resume %s: %w", id, err)
		}
		opts.History = hist
	}
	return session.New(b.tok, b.engine, opts)
}
