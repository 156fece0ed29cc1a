package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/samcharles93/parley/internal/chat"
	"github.com/samcharles93/parley/internal/reasoning"
	"github.com/samcharles93/parley/internal/session"
)

// reasoningMode controls how <think> blocks are shown.
type reasoningMode string

const (
	reasoningShow reasoningMode = "show"
	reasoningDim  reasoningMode = "dim"
	reasoningHide reasoningMode = "hide"
)

func parseReasoningMode(s string) (reasoningMode, error) {
	switch m := reasoningMode(strings.ToLower(strings.TrimSpace(s))); m {
	case reasoningShow, reasoningDim, reasoningHide:
		return m, nil
	case "":
		return reasoningShow, nil
	default:
		return "", fmt.Errorf("unknown reasoning mode %q (show, dim, hide)", s)
	}
}

type lineReader interface {
	ReadLine(prompt string) (string, error)
}

type consoleStyles struct {
	prompt    lipgloss.Style
	assistant lipgloss.Style
	reasoning lipgloss.Style
	stats     lipgloss.Style
	err       lipgloss.Style
}

func newConsoleStyles(w io.Writer) consoleStyles {
	r := lipgloss.NewRenderer(w)
	return consoleStyles{
		prompt:    r.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		assistant: r.NewStyle().Foreground(lipgloss.Color("10")).Bold(true),
		reasoning: r.NewStyle().Faint(true).Italic(true),
		stats:     r.NewStyle().Faint(true),
		err:       r.NewStyle().Foreground(lipgloss.Color("9")),
	}
}

// terminalConsole drives session.Loop on a terminal: replies go to out,
// turn failures to errOut.
type terminalConsole struct {
	in        lineReader
	out       io.Writer
	errOut    io.Writer
	stream    *streamWriter
	styles    consoleStyles
	showStats bool
	thinkMode reasoningMode
	splitter  reasoning.Splitter
}

var _ session.Console = (*terminalConsole)(nil)

func newTerminalConsole(in lineReader, out, errOut io.Writer, mode streamMode, showStats bool) *terminalConsole {
	return &terminalConsole{
		in:        in,
		out:       out,
		errOut:    errOut,
		stream:    newStreamWriter(out, mode),
		styles:    newConsoleStyles(out),
		showStats: showStats,
		thinkMode: reasoningShow,
	}
}

func (c *terminalConsole) ReadLine(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return c.in.ReadLine(c.styles.prompt.Render("you") + " > ")
}

func (c *terminalConsole) BeginReply() {
	c.splitter = reasoning.Splitter{}
	fmt.Fprint(c.out, c.styles.assistant.Render("assistant")+" > ")
}

func (c *terminalConsole) Fragment(text string) error {
	if c.thinkMode == reasoningShow {
		c.stream.Write(text)
		return nil
	}
	c.writeParts(c.splitter.Push(text))
	return nil
}

func (c *terminalConsole) writeParts(parts []reasoning.Part) {
	for _, p := range parts {
		switch {
		case !p.Reasoning:
			c.stream.Write(p.Text)
		case c.thinkMode == reasoningDim:
			c.stream.Write(c.styles.reasoning.Render(p.Text))
		}
	}
}

func (c *terminalConsole) finishReply() {
	if c.thinkMode != reasoningShow {
		c.writeParts(c.splitter.Flush())
	}
	c.stream.Flush()
}

func (c *terminalConsole) EndReply(r session.Reply) {
	c.finishReply()
	fmt.Fprintln(c.out)
	if c.showStats {
		fmt.Fprintln(c.out, c.styles.stats.Render(formatStats(r)))
	}
	fmt.Fprintln(c.out)
}

func (c *terminalConsole) TurnFailed(err error) {
	c.finishReply()
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.errOut, c.styles.err.Render(describeTurnError(err)))
}

func (c *terminalConsole) Close() { c.stream.Close() }

func formatStats(r session.Reply) string {
	return fmt.Sprintf("[%s: %d generated, %d shown, %d suppressed, %d prompt tokens, %.1f tok/s]",
		r.Outcome, r.Generated, r.Emitted, r.Suppressed, r.PromptTokens, r.TokensPerSecond())
}

func describeTurnError(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "turn cancelled; the conversation is unchanged"
	case errors.Is(err, chat.ErrEngine):
		return fmt.Sprintf("engine failed: %v; the conversation is unchanged", err)
	case errors.Is(err, chat.ErrDecode):
		return fmt.Sprintf("could not decode output: %v", err)
	case errors.Is(err, session.ErrBusy):
		return "a reply is already being generated"
	default:
		return "turn failed: " + err.Error()
	}
}
