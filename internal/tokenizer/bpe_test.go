package tokenizer

import (
	"slices"
	"sync"
	"testing"
)

func TestBPEMergeLowestRankFirst(t *testing.T) {
	t.Parallel()

	ranks := map[symbolPair]int{
		{"l", "o"}:    0,
		{"lo", "w"}:   1,
		{"e", "r"}:    2,
		{"low", "er"}: 3,
	}
	tests := []struct {
		in   string
		want []string
	}{
		{"lower", []string{"lower"}},
		{"lowlow", []string{"low", "low"}},
		{"xyz", []string{"x", "y", "z"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		got := bpeMerge(runeSymbols(tt.in), ranks)
		if !slices.Equal(got, tt.want) {
			t.Fatalf("bpeMerge(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestByteLevelAlphabetRoundTrip(t *testing.T) {
	t.Parallel()

	enc, dec := byteLevelAlphabet()
	if enc[' '] != "Ġ" || enc['\n'] != "Ċ" || enc['A'] != "A" {
		t.Fatalf("unexpected mapping: space=%q newline=%q", enc[' '], enc['\n'])
	}
	seen := make(map[string]bool, 256)
	for b := 0; b < 256; b++ {
		s := enc[b]
		if seen[s] {
			t.Fatalf("duplicate symbol %q", s)
		}
		seen[s] = true
		r := []rune(s)
		if len(r) != 1 || dec[r[0]] != byte(b) {
			t.Fatalf("byte %d does not round trip via %q", b, s)
		}
	}
}

func TestSegmentSpecials(t *testing.T) {
	t.Parallel()

	specials := sortSpecials(map[string]int{"<|a|>": 1, "<|a|>x": 2, "<s>": 3})
	got := segmentSpecials("hi<|a|>x<|a|> <s>", specials)
	want := []segment{
		{text: "hi"},
		{text: "<|a|>x", special: true},
		{text: "<|a|>", special: true},
		{text: " "},
		{text: "<s>", special: true},
	}
	if !slices.Equal(got, want) {
		t.Fatalf("got %+v\nwant %+v", got, want)
	}
	if got := segmentSpecials("plain", nil); len(got) != 1 || got[0].text != "plain" {
		t.Fatalf("no specials: %+v", got)
	}
}

func TestLooksSpecial(t *testing.T) {
	t.Parallel()

	for s, want := range map[string]bool{"<|im_end|>": true, "<||>": true, "<s>": false, "|>": false} {
		if looksSpecial(s) != want {
			t.Fatalf("looksSpecial(%q) = %v", s, !want)
		}
	}
}

func TestBPECacheConcurrentUse(t *testing.T) {
	t.Parallel()

	tok := &HFTokenizer{
		encoder:  map[string]int{"ab": 0},
		bpeRanks: map[symbolPair]int{{"a", "b"}: 0},
		cache:    make(map[string][]string),
	}
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				if got := tok.bpe("abab"); !slices.Equal(got, []string{"ab", "ab"}) {
					t.Errorf("bpe = %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}
