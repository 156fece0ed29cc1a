package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/samcharles93/parley/internal/filter"
)

type streamMode string

const (
	streamInstant    streamMode = "instant"
	streamSmooth     streamMode = "smooth"
	streamTypewriter streamMode = "typewriter"
	streamQuiet      streamMode = "quiet"
	// streamMarkdown buffers like quiet and renders the reply as markdown.
	streamMarkdown streamMode = "markdown"
)

func parseStreamMode(s string) (streamMode, error) {
	switch m := streamMode(strings.ToLower(strings.TrimSpace(s))); m {
	case streamInstant, streamSmooth, streamTypewriter, streamQuiet, streamMarkdown:
		return m, nil
	case "":
		return streamInstant, nil
	default:
		return "", fmt.Errorf("unknown stream mode %q (instant, smooth, typewriter, quiet, markdown)", s)
	}
}

// streamWriter renders reply fragments to the terminal in one of the
// stream modes. It also keeps the full visible text of the current reply.
type streamWriter struct {
	mode streamMode
	out  *bufio.Writer

	mu        sync.Mutex
	asm       filter.UTF8Assembler
	reply     strings.Builder
	batch     strings.Builder
	lastFlush time.Time
	interval  time.Duration
	batchSize int

	md *glamour.TermRenderer

	stop chan struct{}
	done chan struct{}
}

func newStreamWriter(w io.Writer, mode streamMode) *streamWriter {
	sw := &streamWriter{
		mode:      mode,
		out:       bufio.NewWriterSize(w, 4096),
		lastFlush: time.Now(),
		interval:  50 * time.Millisecond,
		batchSize: 5,
	}
	if mode == streamMarkdown {
		md, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err == nil {
			sw.md = md
		}
	}
	if mode == streamSmooth {
		sw.stop = make(chan struct{})
		sw.done = make(chan struct{})
		go sw.ticker()
	}
	return sw
}

// Write takes one filter fragment.
func (w *streamWriter) Write(fragment string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	text := w.asm.Push(fragment)
	if text == "" {
		return
	}
	w.reply.WriteString(text)
	switch w.mode {
	case streamInstant:
		_, _ = w.out.WriteString(text)
		_ = w.out.Flush()
	case streamSmooth:
		w.batch.WriteString(text)
		words := strings.Count(w.batch.String(), " ") + 1
		if words >= w.batchSize || time.Since(w.lastFlush) >= w.interval {
			w.flushBatch()
		}
	case streamTypewriter:
		for _, r := range text {
			_, _ = w.out.WriteRune(r)
			_ = w.out.Flush()
		}
	case streamQuiet, streamMarkdown:
	}
}

// Flush writes everything still held and returns the reply text shown,
// then resets for the next reply.
func (w *streamWriter) Flush() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if tail := w.asm.Flush(); tail != "" {
		w.reply.WriteString(tail)
		w.batch.WriteString(tail)
		if w.mode == streamInstant || w.mode == streamTypewriter {
			_, _ = w.out.WriteString(tail)
		}
	}
	switch w.mode {
	case streamSmooth:
		w.flushBatch()
	case streamQuiet:
		_, _ = w.out.WriteString(w.reply.String())
	case streamMarkdown:
		_, _ = w.out.WriteString(w.renderMarkdown(w.reply.String()))
	}
	_ = w.out.Flush()

	text := w.reply.String()
	w.reply.Reset()
	w.batch.Reset()
	return text
}

// Close stops the smooth-mode ticker.
func (w *streamWriter) Close() {
	if w.stop == nil {
		return
	}
	close(w.stop)
	<-w.done
	w.stop = nil
}

// flushBatch must be called with mu held.
func (w *streamWriter) flushBatch() {
	if w.batch.Len() == 0 {
		return
	}
	_, _ = w.out.WriteString(w.batch.String())
	_ = w.out.Flush()
	w.batch.Reset()
	w.lastFlush = time.Now()
}

func (w *streamWriter) ticker() {
	defer close(w.done)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			w.mu.Lock()
			if time.Since(w.lastFlush) >= w.interval {
				w.flushBatch()
			}
			w.mu.Unlock()
		}
	}
}

// renderMarkdown falls back to the raw text when no renderer is available.
func (w *streamWriter) renderMarkdown(text string) string {
	if w.md == nil || strings.TrimSpace(text) == "" {
		return text
	}
	out, err := w.md.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}
