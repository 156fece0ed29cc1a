package server

import (
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/parley/internal/filter"
)

// eventWriter writes named server-sent events. Headers are sent lazily with
// the first event so an early failure can still become a JSON error.
type eventWriter struct {
	c       *echo.Context
	w       io.Writer
	flush   func()
	started bool
	runes   filter.UTF8Assembler
}

func newEventWriter(c *echo.Context) (*eventWriter, error) {
	res := c.Response()
	flusher, ok := res.(interface{ Flush() })
	if !ok {
		return nil, errors.New("streaming unsupported")
	}
	return &eventWriter{c: c, w: res, flush: flusher.Flush}, nil
}

func (e *eventWriter) Started() bool { return e.started }

func (e *eventWriter) Send(event string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if !e.started {
		h := e.c.Response().Header()
		h.Set(echo.HeaderContentType, "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		e.started = true
	}
	if _, err := fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	e.flush()
	return nil
}

// Fragment sends text as a fragment event once it ends on a rune boundary.
// A byte-level token holding half a rune would otherwise be replaced with
// U+FFFD by the JSON encoder.
func (e *eventWriter) Fragment(text string) error {
	if text = e.runes.Push(text); text == "" {
		return nil
	}
	return e.Send("fragment", map[string]string{"text": text})
}

// FlushFragments sends any bytes still held by Fragment.
func (e *eventWriter) FlushFragments() error {
	tail := e.runes.Flush()
	if tail == "" {
		return nil
	}
	return e.Send("fragment", map[string]string{"text": tail})
}
