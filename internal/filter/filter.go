// Package filter turns a stream of generated token ids into visible text,
// holding back only the trailing tokens that could still grow into a stop
// sequence.
package filter

import (
	"context"
	"iter"
	"strings"

	"github.com/samcharles93/parley/internal/chat"
	"github.com/samcharles93/parley/internal/stops"
)

// Decoder turns token ids into text.
type Decoder interface {
	Decode(ids []int) (string, error)
}

// Outcome is the terminal state of one generation turn.
type Outcome int

const (
	// Stopped means a single-token stop or a full stop sequence was seen.
	Stopped Outcome = iota + 1
	// Exhausted means the stream ended first and the buffer was flushed.
	Exhausted
)

func (o Outcome) String() string {
	switch o {
	case Stopped:
		return "stopped"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Filter owns the pending buffer of a single turn. It is not safe for
// concurrent use and must not be reused across turns.
type Filter struct {
	set     *stops.Set
	dec     Decoder
	pending []int
	done    bool

	generated  int
	emitted    int
	suppressed int
}

func New(set *stops.Set, dec Decoder) *Filter {
	return &Filter{set: set, dec: dec}
}

// Push feeds the next generated token. It returns the fragments that became
// safe to show, in generation order, and whether the turn has stopped.
func (f *Filter) Push(id int) ([]string, bool, error) {
	if f.done {
		return nil, true, nil
	}
	f.generated++
	if f.set.IsStop(id) {
		// Held tokens can no longer complete a sequence.
		f.done = true
		out, err := f.releaseN(len(f.pending))
		return out, true, err
	}
	f.pending = append(f.pending, id)

	// A shorter sequence can end inside a held prefix of a longer one, so
	// every suffix is a candidate. The earliest start hides the most.
	for start := range f.pending {
		if f.set.MatchesSequence(f.pending[start:]) {
			f.done = true
			out, err := f.releaseN(start)
			f.pending = f.pending[:0]
			return out, true, err
		}
	}

	var out []string
	for len(f.pending) > 0 && !f.set.PrefixOfSequence(f.pending) {
		frag, ok, err := f.release()
		if err != nil {
			return out, false, err
		}
		if ok {
			out = append(out, frag)
		}
	}
	return out, false, nil
}

// Finish flushes whatever is still pending once the stream has ended.
func (f *Filter) Finish() ([]string, error) {
	if f.done {
		return nil, nil
	}
	f.done = true
	return f.releaseN(len(f.pending))
}

// Pending returns a copy of the withheld token ids.
func (f *Filter) Pending() []int {
	return append([]int(nil), f.pending...)
}

// releaseN releases the n oldest pending tokens.
func (f *Filter) releaseN(n int) ([]string, error) {
	var out []string
	for range n {
		frag, ok, err := f.release()
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, frag)
		}
	}
	return out, nil
}

// release removes the oldest pending token and decodes it unless it is a
// control token.
func (f *Filter) release() (string, bool, error) {
	id := f.pending[0]
	f.pending = f.pending[1:]
	if f.set.IsControl(id) {
		f.suppressed++
		return "", false, nil
	}
	text, err := f.dec.Decode([]int{id})
	if err != nil {
		return "", false, &chat.DecodeError{Token: id, Err: err}
	}
	f.emitted++
	return text, true, nil
}

// Result summarises a finished turn.
type Result struct {
	Outcome Outcome
	// Text is every emitted fragment concatenated, untrimmed.
	Text       string
	Generated  int
	Emitted    int
	Suppressed int
}

// Run drives stream through the filter, calling emit for every visible
// fragment as soon as it is safe. Leaving the range loop early cancels the
// producer at its next yield.
func (f *Filter) Run(ctx context.Context, stream iter.Seq2[int, error], emit func(string) error) (Result, error) {
	var text strings.Builder
	send := func(frags []string) error {
		for _, frag := range frags {
			text.WriteString(frag)
			if emit != nil {
				if err := emit(frag); err != nil {
					return err
				}
			}
		}
		return nil
	}
	result := func(o Outcome) Result {
		return Result{
			Outcome:    o,
			Text:       text.String(),
			Generated:  f.generated,
			Emitted:    f.emitted,
			Suppressed: f.suppressed,
		}
	}

	for id, err := range stream {
		if err != nil {
			return result(0), &chat.EngineError{Err: err}
		}
		if err := ctx.Err(); err != nil {
			return result(0), &chat.EngineError{Err: err}
		}
		frags, stopped, err := f.Push(id)
		if sendErr := send(frags); sendErr != nil {
			return result(0), sendErr
		}
		if err != nil {
			return result(0), err
		}
		if stopped {
			return result(Stopped), nil
		}
	}
	if err := ctx.Err(); err != nil {
		return result(0), &chat.EngineError{Err: err}
	}

	frags, err := f.Finish()
	if sendErr := send(frags); sendErr != nil {
		return result(0), sendErr
	}
	if err != nil {
		return result(0), err
	}
	return result(Exhausted), nil
}
