package stops

import (
	"errors"
	"slices"
	"testing"

	"github.com/samcharles93/parley/internal/chat"
	"github.com/samcharles93/parley/internal/prompt"
	"github.com/samcharles93/parley/internal/tokenizer/tokenizertest"
)

func llama3Vocab() *tokenizertest.Vocab {
	return tokenizertest.New(map[string]int{
		"<|end_of_text|>":     128001,
		"<|eot_id|>":          128009,
		"<|start_header_id|>": 128006,
		"<|end_header_id|>":   128007,
		"<|begin_of_text|>":   128000,
		" ":                   220,
		"[/":                  58,
		"RESP":                67,
		"]":                   60,
		"a":                   64,
	}, "<|end_of_text|>", "<|eot_id|>", "<|start_header_id|>", "<|end_header_id|>", "<|begin_of_text|>")
}

func TestResolveLlama3(t *testing.T) {
	t.Parallel()
	set, err := Resolve(llama3Vocab(), prompt.Llama3, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// eom is absent from the vocab, so the public default id is used.
	if got, want := set.SingleStops(), []int{128001, 128008, 128009}; !slices.Equal(got, want) {
		t.Fatalf("single stops = %v, want %v", got, want)
	}
	if got, want := set.ControlTokens(), []int{128000, 128006, 128007, 128008, 128009}; !slices.Equal(got, want) {
		t.Fatalf("control tokens = %v, want %v", got, want)
	}
	want := [][]int{{220, 58, 67, 60}, {58, 67, 60}}
	if got := set.Sequences(); !slices.EqualFunc(got, want, slices.Equal[[]int]) {
		t.Fatalf("sequences = %v, want %v", got, want)
	}

	var eom Resolution
	for _, r := range set.Resolutions() {
		if r.Literal == prompt.Llama3EndOfMessage {
			eom = r
		}
	}
	if eom.Strategy != "default" || eom.ID != 128008 {
		t.Fatalf("eom resolution = %+v, want default 128008", eom)
	}
}

func TestResolveOptionalBeginOfTextTolerated(t *testing.T) {
	t.Parallel()
	tok := tokenizertest.New(map[string]int{
		"<|end_of_text|>":     1,
		"<|eot_id|>":          2,
		"<|start_header_id|>": 3,
		"<|end_header_id|>":   4,
		"x":                   5,
	}, "<|end_of_text|>", "<|eot_id|>", "<|start_header_id|>", "<|end_header_id|>")

	set, err := Resolve(tok, prompt.Llama3, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for _, r := range set.Resolutions() {
		if r.Literal == prompt.Llama3BeginOfText {
			t.Fatalf("begin_of_text should be omitted, got %+v", r)
		}
	}
	// Closing tags cannot be encoded by this vocab, so no sequences.
	if n := len(set.Sequences()); n != 0 {
		t.Fatalf("expected no sequences, got %d", n)
	}
}

func TestResolveRequiredMarkerFails(t *testing.T) {
	t.Parallel()
	noDefaults := []Strategy{DefaultStrategies[0], DefaultStrategies[1]}
	tok := tokenizertest.New(map[string]int{"<|end_of_text|>": 1}, "<|end_of_text|>")

	_, err := Resolve(tok, prompt.Llama3, Options{Strategies: noDefaults})
	if !errors.Is(err, chat.ErrStopResolution) {
		t.Fatalf("expected ErrStopResolution, got %v", err)
	}
	var sre *chat.StopResolutionError
	if !errors.As(err, &sre) || sre.Marker != prompt.Llama3EndOfTurn {
		t.Fatalf("expected eot failure, got %v", err)
	}
	if !slices.Equal(sre.Tried, []string{"special", "encode"}) {
		t.Fatalf("tried = %v", sre.Tried)
	}
}

func TestResolveEncodeStrategyRequiresSingleID(t *testing.T) {
	t.Parallel()
	// "</s>" is not registered as special and encodes to two ids.
	tok := tokenizertest.New(map[string]int{"</": 10, "s>": 11})
	set, err := Resolve(tok, prompt.Llama2, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := set.Resolutions()[0]; got.Strategy != "default" || got.ID != 2 {
		t.Fatalf("eos resolution = %+v, want default 2", got)
	}

	tok = tokenizertest.New(map[string]int{"</s>": 7})
	set, err = Resolve(tok, prompt.Llama2, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := set.Resolutions()[0]; got.Strategy != "encode" || got.ID != 7 {
		t.Fatalf("eos resolution = %+v, want encode 7", got)
	}
}

func TestResolveDeclaredEOSAndExtraTags(t *testing.T) {
	t.Parallel()
	tok := tokenizertest.New(map[string]int{
		"</s>": 2, "<END>": 9, "[/": 3, "RESP": 4, "]": 5, " ": 6,
	}, "</s>").WithEOS(9)

	set, err := Resolve(tok, prompt.Llama2, Options{ExtraClosingTags: []string{"<END>", "[/RESP]"}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !set.IsStop(9) || !set.IsStop(2) {
		t.Fatalf("expected 2 and 9 as stops, got %v", set.SingleStops())
	}
	want := [][]int{{6, 3, 4, 5}, {3, 4, 5}, {9}}
	if got := set.Sequences(); !slices.EqualFunc(got, want, slices.Equal[[]int]) {
		t.Fatalf("sequences = %v, want %v (duplicates collapsed)", got, want)
	}
}

func TestSetMatching(t *testing.T) {
	t.Parallel()
	set := NewSet([]int{2}, [][]int{{91, 92}, {}, {91, 92}, {7}}, []int{3})

	if n := len(set.Sequences()); n != 2 {
		t.Fatalf("expected empty and duplicate sequences dropped, got %d", n)
	}

	tests := []struct {
		buf    []int
		match  bool
		prefix bool
	}{
		{[]int{91}, false, true},
		{[]int{91, 92}, true, true},
		{[]int{91, 50}, false, false},
		{[]int{7}, true, true},
		{[]int{91, 92, 1}, false, false},
	}
	for _, tc := range tests {
		if got := set.MatchesSequence(tc.buf); got != tc.match {
			t.Errorf("MatchesSequence(%v) = %v, want %v", tc.buf, got, tc.match)
		}
		if got := set.PrefixOfSequence(tc.buf); got != tc.prefix {
			t.Errorf("PrefixOfSequence(%v) = %v, want %v", tc.buf, got, tc.prefix)
		}
	}
	if !set.IsControl(3) || set.IsControl(2) {
		t.Fatal("control membership wrong")
	}
}

func TestSequencesReturnsCopy(t *testing.T) {
	t.Parallel()
	set := NewSet(nil, [][]int{{1, 2}}, nil)
	set.Sequences()[0][0] = 99
	if !set.MatchesSequence([]int{1, 2}) {
		t.Fatal("Sequences leaked internal storage")
	}
}
