package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/parley/internal/chat"
	"github.com/samcharles93/parley/internal/transcript"
)

func historyCmd() *cli.Command {
	var (
		limit  int64
		asJSON bool
	)
	open := func(ctx context.Context, cmd *cli.Command) (*transcript.Store, error) {
		if _, _, err := loadSettings(ctx, cmd); err != nil {
			return nil, err
		}
		if historyDB == "" {
			return nil, cli.Exit("no history database configured (--history-db or history_db)", 1)
		}
		st, err := openStore()
		if err != nil {
			return nil, cli.Exit(err.Error(), 1)
		}
		return st, nil
	}
	flags := func(extra ...cli.Flag) []cli.Flag {
		return flagGroups(configFlags(), historyFlags(), loggingFlags(), extra)
	}

	return &cli.Command{
		Name:  "history",
		Usage: "Inspect recorded chat sessions",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recorded sessions, newest first",
				Flags: flags(&cli.Int64Flag{
					Name:        "limit",
					Usage:       "maximum sessions to list",
					Value:       20,
					Destination: &limit,
				}),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					st, err := open(ctx, cmd)
					if err != nil {
						return err
					}
					defer st.Close()
					sums, err := st.Sessions(ctx, int(limit))
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					printSessions(os.Stdout, sums)
					return nil
				},
			},
			{
				Name:      "show",
				Usage:     "Print the messages of one session",
				ArgsUsage: "<session-id>",
				Flags: flags(&cli.BoolFlag{
					Name:        "json",
					Usage:       "print the messages as JSON, suitable for parley render",
					Destination: &asJSON,
				}),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if cmd.Args().Len() != 1 {
						return cli.Exit("show takes exactly one session id", 1)
					}
					st, err := open(ctx, cmd)
					if err != nil {
						return err
					}
					defer st.Close()
					id := cmd.Args().First()
					msgs, err := st.Messages(ctx, id)
					if errors.Is(err, transcript.ErrNotFound) {
						return cli.Exit(fmt.Sprintf("session %s not found", id), 1)
					}
					if err != nil {
						return cli.Exit(err.Error(), 1)
					}
					if asJSON {
						enc := json.NewEncoder(os.Stdout)
						enc.SetIndent("", "  ")
						return enc.Encode(msgs)
					}
					printMessages(os.Stdout, msgs)
					return nil
				},
			},
		},
	}
}

func printSessions(w io.Writer, sums []transcript.Summary) {
	if len(sums) == 0 {
		fmt.Fprintln(w, "no recorded sessions")
		return
	}
	for _, s := range sums {
		fmt.Fprintf(w, "%s  %-7s  %4d msgs  %s  %s\n",
			s.ID, s.Family, s.Messages, s.UpdatedAt.Local().Format(time.DateTime), s.RepoID)
	}
}

func printMessages(w io.Writer, msgs []chat.Message) {
	for i, m := range msgs {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "[%s]\n%s\n", m.Role, m.Content)
	}
}
