package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/parley/internal/chat"
	"github.com/samcharles93/parley/internal/engine/llamacpp"
	"github.com/samcharles93/parley/internal/logger"
	"github.com/samcharles93/parley/internal/prompt"
)

func renderCmd() *cli.Command {
	var showTokens bool

	return &cli.Command{
		Name:      "render",
		Usage:     "Render a conversation file into the model's prompt text",
		ArgsUsage: "<history.json|history.yaml|->",
		Flags: flagGroups(
			configFlags(),
			modelFlags(),
			tokenizerFlags(),
			[]cli.Flag{
				&cli.BoolFlag{
					Name:        "tokens",
					Usage:       "also print the encoded token ids",
					Destination: &showTokens,
				},
			},
			loggingFlags(),
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, _, err := loadSettings(ctx, cmd)
			if err != nil {
				return err
			}
			if cmd.Args().Len() != 1 {
				return cli.Exit("render takes exactly one history file (or - for stdin)", 1)
			}
			msgs, err := readHistoryFile(cmd.Args().First(), os.Stdin)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			text, err := renderHistory(family, repoID, systemPrompt, msgs)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Fprint(os.Stdout, text)
			if !strings.HasSuffix(text, "\n") {
				fmt.Fprintln(os.Stdout)
			}
			if !showTokens {
				return nil
			}

			var client *llamacpp.Client
			if engineTokenizer {
				client = llamacpp.New(engineURL, llamacpp.WithLogger(logger.FromContext(ctx)))
			}
			tok, err := loadTokenizer(ctx, client)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			ids, err := tok.Encode(text)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			fmt.Fprintf(os.Stdout, "\n%d tokens: %s\n", len(ids), joinInts(ids))
			return nil
		},
	}
}

// readHistoryFile decodes a message list from JSON or YAML, chosen by
// extension; "-" reads JSON from stdin.
func readHistoryFile(path string, stdin io.Reader) ([]chat.Message, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}

	var msgs []chat.Message
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &msgs)
	default:
		err = json.Unmarshal(data, &msgs)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, m := range msgs {
		if _, err := chat.ParseRole(string(m.Role)); err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
	}
	return msgs, nil
}

// renderHistory validates msgs as a history, prepending system when the
// file has no system message, and renders it for the resolved family.
func renderHistory(familyName, repo, system string, msgs []chat.Message) (string, error) {
	fam, err := prompt.ResolveFamily(familyName, repo)
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 || msgs[0].Role != chat.RoleSystem {
		msgs = append([]chat.Message{{Role: chat.RoleSystem, Content: system}}, msgs...)
	}
	hist, err := chat.Restore(msgs)
	if err != nil {
		return "", err
	}
	tmpl, err := prompt.ForFamily(fam)
	if err != nil {
		return "", err
	}
	return tmpl.Render(hist.Messages())
}
