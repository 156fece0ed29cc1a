package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/parley/internal/engine/llamacpp"
	"github.com/samcharles93/parley/internal/logger"
	"github.com/samcharles93/parley/internal/prompt"
	"github.com/samcharles93/parley/internal/stops"
	"github.com/samcharles93/parley/internal/tokenizer"
)

type stopsReport struct {
	Family      string             `json:"family"`
	SingleStops []int              `json:"single_stops"`
	Sequences   []sequenceReport   `json:"sequences"`
	Control     []int              `json:"control_tokens"`
	Resolved    []stops.Resolution `json:"resolved"`
}

type sequenceReport struct {
	IDs  []int  `json:"ids"`
	Text string `json:"text"`
}

func stopsCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "stops",
		Usage: "Print the stop tokens, stop sequences and control tokens for a model",
		Flags: flagGroups(
			configFlags(),
			modelFlags(),
			tokenizerFlags(),
			[]cli.Flag{
				&cli.StringSliceFlag{
					Name:        "stop",
					Usage:       "extra closing tag (repeatable)",
					Destination: &stopSequences,
				},
				&cli.BoolFlag{
					Name:        "json",
					Usage:       "print JSON",
					Destination: &asJSON,
				},
			},
			loggingFlags(),
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			ctx, _, err := loadSettings(ctx, cmd)
			if err != nil {
				return err
			}
			log := logger.FromContext(ctx)
			fam, err := prompt.ResolveFamily(family, repoID)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			var client *llamacpp.Client
			if engineTokenizer {
				client = llamacpp.New(engineURL, llamacpp.WithLogger(log))
			}
			tok, err := loadTokenizer(ctx, client)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			set, err := stops.Resolve(tok, fam, stops.Options{ExtraClosingTags: stopSequences, Logger: log})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			report := buildStopsReport(fam, set, tok)
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			printStopsReport(os.Stdout, report)
			return nil
		},
	}
}

func buildStopsReport(fam prompt.Family, set *stops.Set, tok tokenizer.Tokenizer) stopsReport {
	r := stopsReport{
		Family:      fam.String(),
		SingleStops: set.SingleStops(),
		Control:     set.ControlTokens(),
		Resolved:    set.Resolutions(),
	}
	for _, seq := range set.Sequences() {
		text, err := tok.Decode(seq)
		if err != nil {
			text = "<" + err.Error() + ">"
		}
		r.Sequences = append(r.Sequences, sequenceReport{IDs: seq, Text: text})
	}
	return r
}

func printStopsReport(w io.Writer, r stopsReport) {
	fmt.Fprintf(w, "family:          %s\n", r.Family)
	fmt.Fprintf(w, "single stops:    %s\n", joinInts(r.SingleStops))
	fmt.Fprintf(w, "control tokens:  %s\n", joinInts(r.Control))
	fmt.Fprintln(w, "stop sequences:")
	for _, s := range r.Sequences {
		fmt.Fprintf(w, "  [%s] %q\n", joinInts(s.IDs), s.Text)
	}
	fmt.Fprintln(w, "resolved markers:")
	for _, m := range r.Resolved {
		fmt.Fprintf(w, "  %-24s %7d  via %s\n", m.Literal, m.ID, m.Strategy)
	}
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, " ")
}
