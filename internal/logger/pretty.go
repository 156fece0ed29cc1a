package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

type prettyStyles struct {
	time  lipgloss.Style
	attrs lipgloss.Style
	debug lipgloss.Style
	info  lipgloss.Style
	warn  lipgloss.Style
	error lipgloss.Style
}

func newPrettyStyles(w io.Writer) prettyStyles {
	r := lipgloss.NewRenderer(w)
	level := r.NewStyle().Bold(true).Width(5)
	return prettyStyles{
		time:  r.NewStyle().Foreground(lipgloss.Color("8")),
		attrs: r.NewStyle().Foreground(lipgloss.Color("6")),
		debug: level.Foreground(lipgloss.Color("8")),
		info:  level.Foreground(lipgloss.Color("4")),
		warn:  level.Foreground(lipgloss.Color("3")),
		error: level.Foreground(lipgloss.Color("1")),
	}
}

func (s prettyStyles) level(l slog.Level) lipgloss.Style {
	switch {
	case l >= slog.LevelError:
		return s.error
	case l >= slog.LevelWarn:
		return s.warn
	case l >= slog.LevelInfo:
		return s.info
	default:
		return s.debug
	}
}

// PrettyHandler renders one coloured line per record:
//
//	[time] LEVEL message key=value ...
type PrettyHandler struct {
	opts   slog.HandlerOptions
	w      io.Writer
	mu     *sync.Mutex
	styles prettyStyles
	group  string
	attrs  []slog.Attr
}

func NewPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &PrettyHandler{
		opts:   *opts,
		w:      w,
		mu:     &sync.Mutex{},
		styles: newPrettyStyles(w),
	}
}

func (h *PrettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

func (h *PrettyHandler) Handle(_ context.Context, r slog.Record) error {
	var b strings.Builder
	b.WriteString(h.styles.time.Render("[" + r.Time.Format(time.DateTime) + "]"))
	b.WriteByte(' ')
	b.WriteString(h.styles.level(r.Level).Render(r.Level.String()))
	b.WriteByte(' ')
	b.WriteString(r.Message)

	attrs := make([]slog.Attr, 0, len(h.attrs)+r.NumAttrs())
	attrs = append(attrs, h.attrs...)
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, a)
		return true
	})
	if len(attrs) > 0 {
		parts := make([]string, 0, len(attrs))
		for _, a := range attrs {
			parts = append(parts, formatAttr(a, h.group))
		}
		b.WriteByte(' ')
		b.WriteString(h.styles.attrs.Render(strings.Join(parts, " ")))
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *PrettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &next
}

func (h *PrettyHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return &next
}

func formatAttr(attr slog.Attr, group string) string {
	key := attr.Key
	if group != "" {
		key = group + "." + key
	}
	switch attr.Value.Kind() {
	case slog.KindString:
		s := attr.Value.String()
		if needsQuoting(s) {
			s = fmt.Sprintf("%q", s)
		}
		return key + "=" + s
	case slog.KindTime:
		return key + "=" + attr.Value.Time().Format(time.RFC3339)
	case slog.KindGroup:
		inner := attr.Value.Group()
		parts := make([]string, len(inner))
		for i, a := range inner {
			parts[i] = formatAttr(a, "")
		}
		return key + "={" + strings.Join(parts, " ") + "}"
	default:
		return key + "=" + fmt.Sprint(attr.Value.Any())
	}
}

func needsQuoting(s string) bool {
	return strings.ContainsAny(s, " \t\n\"")
}
