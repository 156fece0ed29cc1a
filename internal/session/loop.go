package session

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Console is the interactive surface driven by Loop.
type Console interface {
	// ReadLine returns the next user line, or io.EOF at end of input.
	ReadLine(ctx context.Context) (string, error)
	BeginReply()
	Fragment(text string) error
	EndReply(r Reply)
	TurnFailed(err error)
}

// LoopOptions tunes Loop.
type LoopOptions struct {
	// TurnContext derives the context of one turn, e.g. to cancel it on
	// SIGINT without ending the loop.
	TurnContext func(ctx context.Context) (context.Context, context.CancelFunc)
}

// Loop alternates between reading input and running turns until the input
// is empty, "/exit", or exhausted, then closes the session. Failed turns are
// reported to the console and the loop continues.
func (s *Session) Loop(ctx context.Context, c Console, opts LoopOptions) error {
	defer s.Close()
	for {
		line, err := c.ReadLine(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		input := strings.TrimSpace(line)
		if input == "" || input == "/exit" {
			return nil
		}

		turnCtx, cancel := ctx, context.CancelFunc(func() {})
		if opts.TurnContext != nil {
			turnCtx, cancel = opts.TurnContext(ctx)
		}
		c.BeginReply()
		reply, err := s.Send(turnCtx, input, c.Fragment)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.TurnFailed(err)
			continue
		}
		c.EndReply(reply)
	}
}
