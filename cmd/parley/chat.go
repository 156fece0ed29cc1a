package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/parley/internal/config"
	"github.com/samcharles93/parley/internal/logger"
	"github.com/samcharles93/parley/internal/session"
)

func chatCmd() *cli.Command {
	var (
		mode      string
		think     string
		resume    string
		showStats bool
	)

	return &cli.Command{
		Name:  "chat",
		Usage: "Start an interactive chat session",
		Flags: flagGroups(
			configFlags(),
			modelFlags(),
			tokenizerFlags(),
			generationFlags(),
			historyFlags(),
			loggingFlags(),
			[]cli.Flag{
				&cli.StringFlag{
					Name:        "stream-mode",
					Usage:       "reply rendering (instant, smooth, typewriter, quiet, markdown)",
					Value:       config.DefaultStreamMode,
					Destination: &mode,
				},
				&cli.StringFlag{
					Name:        "reasoning",
					Usage:       "how to show <think> blocks (show, dim, hide)",
					Value:       string(reasoningShow),
					Destination: &think,
				},
				&cli.StringFlag{
					Name:        "resume",
					Usage:       "continue a recorded session by id (needs --history-db)",
					Destination: &resume,
				},
				&cli.BoolFlag{
					Name:        "stats",
					Usage:       "print token statistics after each reply",
					Value:       true,
					Destination: &showStats,
				},
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, cfg, err := loadSettings(ctx, cmd)
			if err != nil {
				return err
			}
			if cfg.StreamMode != "" && !cmd.IsSet("stream-mode") {
				mode = cfg.StreamMode
			}
			sm, err := parseStreamMode(mode)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			tm, err := parseReasoningMode(think)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			log := logger.FromContext(ctx)

			b, err := newBackend(ctx)
			if err != nil {
				return err
			}
			defer b.Close()

			var sess *session.Session
			if resume != "" {
				sess, err = b.resumeSession(ctx, resume)
			} else {
				sess, err = b.newSession(ctx, "")
			}
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			log.Info("session started", "session", sess.ID(), "messages", len(sess.Messages()))

			console := newTerminalConsole(newLineEditor(os.Stdin, os.Stdout), os.Stdout, os.Stderr, sm, showStats)
			console.thinkMode = tm
			defer console.Close()

			return sess.Loop(ctx, console, session.LoopOptions{
				// Ctrl-C during a reply cancels that turn only.
				TurnContext: func(ctx context.Context) (context.Context, context.CancelFunc) {
					return signal.NotifyContext(ctx, os.Interrupt)
				},
			})
		},
	}
}
