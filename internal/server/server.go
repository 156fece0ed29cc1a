// Package server exposes chat sessions over HTTP with server-sent events.
package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/samcharles93/parley/internal/chat"
	"github.com/samcharles93/parley/internal/logger"
	"github.com/samcharles93/parley/internal/metrics"
	"github.com/samcharles93/parley/internal/session"
	"github.com/samcharles93/parley/internal/transcript"
)

// SessionFactory opens a new session. An empty systemPrompt selects the
// configured default.
type SessionFactory func(ctx context.Context, systemPrompt string) (*session.Session, error)

type Config struct {
	NewSession SessionFactory
	// Store serves read-only lookups of sessions that are no longer live.
	Store    *transcript.Store
	Gatherer prometheus.Gatherer
	Logger   logger.Logger
}

type Server struct {
	newSession SessionFactory
	store      *transcript.Store
	gatherer   prometheus.Gatherer
	log        logger.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
}

func New(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		newSession: cfg.NewSession,
		store:      cfg.Store,
		gatherer:   cfg.Gatherer,
		log:        log,
		sessions:   make(map[string]*session.Session),
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.POST("/v1/sessions", s.handleCreateSession)
	e.GET("/v1/sessions/:id", s.handleGetSession)
	e.DELETE("/v1/sessions/:id", s.handleCloseSession)
	e.POST("/v1/sessions/:id/messages", s.handleSendMessage)
	if s.gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
}

// CloseAll closes every live session, e.g. on shutdown.
func (s *Server) CloseAll() {
	s.mu.Lock()
	live := s.sessions
	s.sessions = make(map[string]*session.Session)
	s.mu.Unlock()
	for _, sess := range live {
		sess.Close()
	}
}

type createSessionRequest struct {
	SystemPrompt string `json:"system_prompt"`
}

type sessionResponse struct {
	ID       string         `json:"id"`
	Family   string         `json:"family,omitempty"`
	State    string         `json:"state"`
	Messages []chat.Message `json:"messages"`
}

type sendRequest struct {
	Content string `json:"content"`
	Stream  *bool  `json:"stream,omitempty"`
}

type replyResponse struct {
	Reply        string  `json:"reply"`
	Outcome      string  `json:"outcome"`
	PromptTokens int     `json:"prompt_tokens"`
	Generated    int     `json:"generated_tokens"`
	Emitted      int     `json:"emitted_tokens"`
	Suppressed   int     `json:"suppressed_tokens"`
	ElapsedMS    int64   `json:"elapsed_ms"`
	TokensPerSec float64 `json:"tokens_per_second"`
}

func newReplyResponse(r session.Reply) replyResponse {
	return replyResponse{
		Reply:        r.Text,
		Outcome:      r.Outcome.String(),
		PromptTokens: r.PromptTokens,
		Generated:    r.Generated,
		Emitted:      r.Emitted,
		Suppressed:   r.Suppressed,
		ElapsedMS:    r.Elapsed.Milliseconds(),
		TokensPerSec: r.TokensPerSecond(),
	}
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(c *echo.Context) error {
	var req createSessionRequest
	if c.Request().ContentLength != 0 {
		if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
			return writeBadRequest(c, "invalid JSON body: "+err.Error())
		}
	}
	sess, err := s.newSession(c.Request().Context(), req.SystemPrompt)
	if err != nil {
		s.log.Error("open session failed", "error", err)
		return writeError(c, http.StatusInternalServerError, "session_error", err.Error())
	}
	s.mu.Lock()
	s.sessions[sess.ID()] = sess
	s.mu.Unlock()
	s.log.Info("session opened", "session", sess.ID(), "family", sess.Family().String())
	return c.JSON(http.StatusCreated, liveSession(sess))
}

func liveSession(sess *session.Session) sessionResponse {
	return sessionResponse{
		ID:       sess.ID(),
		Family:   sess.Family().String(),
		State:    sess.State().String(),
		Messages: sess.Messages(),
	}
}

func (s *Server) lookup(id string) (*session.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) handleGetSession(c *echo.Context) error {
	id := c.Param("id")
	if sess, ok := s.lookup(id); ok {
		return c.JSON(http.StatusOK, liveSession(sess))
	}
	if s.store != nil {
		ctx := c.Request().Context()
		meta, err := s.store.Session(ctx, id)
		if err == nil {
			msgs, err := s.store.Messages(ctx, id)
			if err != nil {
				return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
			}
			return c.JSON(http.StatusOK, sessionResponse{
				ID:       meta.ID,
				Family:   meta.Family,
				State:    session.Closed.String(),
				Messages: msgs,
			})
		}
		if !errors.Is(err, transcript.ErrNotFound) {
			return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
		}
	}
	return writeNotFound(c, "session "+id+" not found")
}

func (s *Server) handleCloseSession(c *echo.Context) error {
	id := c.Param("id")
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return writeNotFound(c, "session "+id+" not found")
	}
	sess.Close()
	s.log.Info("session closed", "session", id)
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSendMessage(c *echo.Context) error {
	id := c.Param("id")
	sess, ok := s.lookup(id)
	if !ok {
		return writeNotFound(c, "session "+id+" not found")
	}
	var req sendRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return writeBadRequest(c, "invalid JSON body: "+err.Error())
	}
	if req.Content == "" {
		return writeBadRequest(c, "content is required")
	}
	if sess.State() == session.Generating {
		return writeError(c, http.StatusConflict, "conflict", session.ErrBusy.Error())
	}

	ctx := c.Request().Context()
	if req.Stream != nil && !*req.Stream {
		reply, err := sess.Send(ctx, req.Content, nil)
		if err != nil {
			return writeTurnError(c, err)
		}
		return c.JSON(http.StatusOK, newReplyResponse(reply))
	}

	sse, err := newEventWriter(c)
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error())
	}
	start := time.Now()
	reply, err := sess.Send(ctx, req.Content, sse.Fragment)
	if err != nil {
		if !sse.Started() {
			return writeTurnError(c, err)
		}
		s.log.Warn("streamed turn failed", "session", id, "error", err, "elapsed", time.Since(start))
		if ferr := sse.FlushFragments(); ferr != nil {
			return ferr
		}
		return sse.Send("error", turnError(err))
	}
	if err := sse.FlushFragments(); err != nil {
		return err
	}
	return sse.Send("done", newReplyResponse(reply))
}
