// Package engine defines the generation collaborator the chat loop drives.
package engine

import (
	"context"
	"iter"
)

// Sampling carries the decoding knobs forwarded to the engine. Zero values
// leave the engine's own defaults in place.
type Sampling struct {
	Temperature   float64 `yaml:"temperature" toml:"temperature" json:"temperature,omitempty"`
	TopK          int     `yaml:"top_k" toml:"top_k" json:"top_k,omitempty"`
	TopP          float64 `yaml:"top_p" toml:"top_p" json:"top_p,omitempty"`
	MinP          float64 `yaml:"min_p" toml:"min_p" json:"min_p,omitempty"`
	RepeatPenalty float64 `yaml:"repeat_penalty" toml:"repeat_penalty" json:"repeat_penalty,omitempty"`
	RepeatLastN   int     `yaml:"repeat_last_n" toml:"repeat_last_n" json:"repeat_last_n,omitempty"`
	Seed          int64   `yaml:"seed" toml:"seed" json:"seed,omitempty"`
}

// Request is one bounded generation.
type Request struct {
	Prompt    []int
	MaxTokens int
	Sampling  Sampling
}

// Engine produces newly generated token ids lazily and in order. The
// sequence ends when the budget is spent or the engine stops on its own.
// A consumer that stops ranging early cancels the generation.
type Engine interface {
	Generate(ctx context.Context, req Request) iter.Seq2[int, error]
}

// Func adapts a function to Engine.
type Func func(ctx context.Context, req Request) iter.Seq2[int, error]

func (f Func) Generate(ctx context.Context, req Request) iter.Seq2[int, error] {
	return f(ctx, req)
}

// Script returns an Engine that replays ids for every request, honouring
// MaxTokens.
func Script(ids ...int) Engine {
	return Func(func(ctx context.Context, req Request) iter.Seq2[int, error] {
		return func(yield func(int, error) bool) {
			for i, id := range ids {
				if req.MaxTokens > 0 && i >= req.MaxTokens {
					return
				}
				if err := ctx.Err(); err != nil {
					yield(0, err)
					return
				}
				if !yield(id, nil) {
					return
				}
			}
		}
	})
}
