// Package session runs a multi-turn conversation: it renders the history,
// drives the engine through the streaming filter and commits each reply.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/parley/internal/chat"
	"github.com/samcharles93/parley/internal/engine"
	"github.com/samcharles93/parley/internal/filter"
	"github.com/samcharles93/parley/internal/logger"
	"github.com/samcharles93/parley/internal/metrics"
	"github.com/samcharles93/parley/internal/prompt"
	"github.com/samcharles93/parley/internal/stops"
	"github.com/samcharles93/parley/internal/tokenizer"
)

var (
	// ErrBusy is returned when a turn is started while another is running.
	ErrBusy = errors.New("session: turn already in progress")
	// ErrClosed is returned once the session has been closed.
	ErrClosed = errors.New("session: closed")
)

// State is the session's position in its turn cycle.
type State int

const (
	AwaitingInput State = iota
	Generating
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingInput:
		return "awaiting_input"
	case Generating:
		return "generating"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Recorder persists committed messages. It is optional.
type Recorder interface {
	AppendMessages(ctx context.Context, sessionID string, msgs ...chat.Message) error
}

// Options configures New. Family and either SystemPrompt or History are
// required; everything else has a default.
type Options struct {
	ID           string
	Family       prompt.Family
	SystemPrompt string
	// History resumes a previously recorded conversation.
	History      *chat.History
	MaxNewTokens int
	Sampling     engine.Sampling
	// ExtraStops are closing tags added to the family's registry entry.
	ExtraStops []string
	Recorder   Recorder
	Metrics    *metrics.Metrics
	Logger     logger.Logger
}

// Session owns one History. Turns are serialised; a second concurrent
// Send fails with ErrBusy.
type Session struct {
	id       string
	family   prompt.Family
	tmpl     prompt.Template
	tok      tokenizer.Tokenizer
	eng      engine.Engine
	stops    *stops.Set
	maxNew   int
	sampling engine.Sampling
	rec      Recorder
	metrics  *metrics.Metrics
	log      logger.Logger

	turn sync.Mutex

	mu        sync.Mutex
	state     State
	history   *chat.History
	persisted int
}

// New resolves the template and the stop vocabulary once. A stop
// resolution failure means no session can be started.
func New(tok tokenizer.Tokenizer, eng engine.Engine, opts Options) (*Session, error) {
	tmpl, err := prompt.ForFamily(opts.Family)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	log = log.With("session", id, "family", opts.Family.String())

	set, err := stops.Resolve(tok, opts.Family, stops.Options{
		ExtraClosingTags: opts.ExtraStops,
		Logger:           log,
	})
	if err != nil {
		return nil, err
	}

	history := opts.History
	persisted := 0
	if history != nil {
		persisted = history.Len()
	} else {
		history = chat.NewHistory(opts.SystemPrompt)
	}
	maxNew := opts.MaxNewTokens
	if maxNew <= 0 {
		maxNew = 512
	}

	opts.Metrics.SessionOpened()
	log.Debug("session ready",
		"single_stops", set.SingleStops(),
		"sequences", len(set.Sequences()),
		"control", len(set.ControlTokens()),
		"resumed", opts.History != nil)
	return &Session{
		id:        id,
		family:    opts.Family,
		tmpl:      tmpl,
		tok:       tok,
		eng:       eng,
		stops:     set,
		maxNew:    maxNew,
		sampling:  opts.Sampling,
		rec:       opts.Recorder,
		metrics:   opts.Metrics,
		log:       log,
		history:   history,
		persisted: persisted,
	}, nil
}

func (s *Session) ID() string            { return s.id }
func (s *Session) Family() prompt.Family { return s.family }
func (s *Session) Stops() *stops.Set     { return s.stops }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Messages returns a copy of the committed history.
func (s *Session) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Messages()
}

// Close moves the session to Closed. It waits for a running turn.
func (s *Session) Close() {
	s.turn.Lock()
	defer s.turn.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Closed {
		return
	}
	s.state = Closed
	s.metrics.SessionClosed()
	s.log.Debug("session closed", "messages", s.history.Len())
}

// Reply is the outcome of one successful turn.
type Reply struct {
	// Text is the trimmed reply that was committed to the history.
	Text         string
	Outcome      filter.Outcome
	PromptTokens int
	Generated    int
	Emitted      int
	Suppressed   int
	Elapsed      time.Duration
}

// TokensPerSecond is the generation rate of the turn.
func (r Reply) TokensPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Generated) / r.Elapsed.Seconds()
}

// Send runs one turn for input. Fragments reach emit as soon as the filter
// releases them. The user message and the reply are committed together
// only when the turn ends Stopped or Exhausted; on error the history is
// unchanged and fragments already emitted stay emitted.
func (s *Session) Send(ctx context.Context, input string, emit func(string) error) (Reply, error) {
	if !s.turn.TryLock() {
		return Reply{}, ErrBusy
	}
	defer s.turn.Unlock()

	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return Reply{}, ErrClosed
	}
	s.state = Generating
	staged := s.history.With(chat.Message{Role: chat.RoleUser, Content: input})
	s.mu.Unlock()
	defer s.setState(AwaitingInput)

	reply, err := s.generate(ctx, staged, emit)
	if err != nil {
		s.metrics.ObserveError(err)
		s.log.Warn("turn aborted", "error", err, "kind", metrics.ErrorKind(err))
		return Reply{}, err
	}

	s.mu.Lock()
	err = s.history.Append(
		chat.Message{Role: chat.RoleUser, Content: input},
		chat.Message{Role: chat.RoleAssistant, Content: reply.Text},
	)
	s.mu.Unlock()
	if err != nil {
		return Reply{}, err
	}

	s.metrics.ObserveTurn(metrics.Turn{
		Family:     s.family.String(),
		Outcome:    reply.Outcome.String(),
		Generated:  reply.Generated,
		Emitted:    reply.Emitted,
		Suppressed: reply.Suppressed,
		Elapsed:    reply.Elapsed,
	})
	s.log.Info("turn complete",
		"outcome", reply.Outcome.String(),
		"prompt_tokens", reply.PromptTokens,
		"generated", reply.Generated,
		"emitted", reply.Emitted,
		"elapsed", reply.Elapsed.Round(time.Millisecond))
	s.persist(ctx)
	return reply, nil
}

func (s *Session) generate(ctx context.Context, msgs []chat.Message, emit func(string) error) (Reply, error) {
	start := time.Now()
	text, err := s.tmpl.Render(msgs)
	if err != nil {
		return Reply{}, err
	}
	ids, err := s.tok.Encode(text)
	if err != nil {
		return Reply{}, fmt.Errorf("encode prompt: %w", err)
	}
	s.log.Debug("prompt rendered", "chars", len(text), "tokens", len(ids))

	stream := s.eng.Generate(ctx, engine.Request{
		Prompt:    ids,
		MaxTokens: s.maxNew,
		Sampling:  s.sampling,
	})
	res, err := filter.New(s.stops, s.tok).Run(ctx, stream, emit)
	if err != nil {
		return Reply{}, err
	}
	return Reply{
		Text:         strings.TrimSpace(res.Text),
		Outcome:      res.Outcome,
		PromptTokens: len(ids),
		Generated:    res.Generated,
		Emitted:      res.Emitted,
		Suppressed:   res.Suppressed,
		Elapsed:      time.Since(start),
	}, nil
}

// persist hands not-yet-recorded messages to the recorder. A failure is
// logged and retried on the next commit; the in-memory history stays
// authoritative.
func (s *Session) persist(ctx context.Context) {
	if s.rec == nil {
		return
	}
	s.mu.Lock()
	pending := s.history.Messages()[s.persisted:]
	s.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	if err := s.rec.AppendMessages(context.WithoutCancel(ctx), s.id, pending...); err != nil {
		s.log.Warn("transcript write failed", "error", err, "pending", len(pending))
		return
	}
	s.mu.Lock()
	s.persisted += len(pending)
	s.mu.Unlock()
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Closed {
		s.state = st
	}
}
