package reasoning

import (
	"strings"
	"testing"
)

func TestSplit(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		in            string
		wantContent   string
		wantReasoning string
	}{
		{name: "no thinking", in: "Hello world", wantContent: "Hello world"},
		{name: "closed block", in: "<think>internal</think>Hello", wantContent: "Hello", wantReasoning: "internal"},
		{name: "unclosed block", in: "<think>internal only", wantReasoning: "internal only"},
		{name: "interleaved", in: "A<think>r1</think>B<think>r2</think>C", wantContent: "ABC", wantReasoning: "r1r2"},
		{name: "stray close tag is content", in: "a</think>b", wantContent: "a</think>b"},
		{name: "trailing partial tag", in: "x <thi", wantContent: "x <thi"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			content, reasoning := Split(tc.in)
			if content != tc.wantContent || reasoning != tc.wantReasoning {
				t.Fatalf("got (%q, %q), want (%q, %q)", content, reasoning, tc.wantContent, tc.wantReasoning)
			}
		})
	}
}

func TestSplitterTagAcrossFragments(t *testing.T) {
	t.Parallel()

	var s Splitter
	var got []Part
	for _, d := range []string{"Hi <th", "ink>plan", "</thi", "nk> done"} {
		got = append(got, s.Push(d)...)
	}
	got = append(got, s.Flush()...)

	want := []Part{
		{Text: "Hi "},
		{Text: "plan", Reasoning: true},
		{Text: " done"},
	}
	if len(got) != len(want) {
		t.Fatalf("parts = %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("part %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSplitterHoldsOnlyTagPrefixes(t *testing.T) {
	t.Parallel()

	var s Splitter
	parts := s.Push("a < b <t")
	if len(parts) != 1 || parts[0].Text != "a < b " {
		t.Fatalf("parts = %+v", parts)
	}
	parts = s.Push("x")
	if len(parts) != 1 || parts[0].Text != "<tx" {
		t.Fatalf("parts = %+v", parts)
	}
}

func TestSplitterMatchesWholeString(t *testing.T) {
	t.Parallel()

	raw := "pre<think>one two</think>mid<think>three</think>post"
	for size := 1; size <= len(raw); size++ {
		var s Splitter
		var c, r strings.Builder
		for i := 0; i < len(raw); i += size {
			for _, p := range s.Push(raw[i:min(i+size, len(raw))]) {
				if p.Reasoning {
					r.WriteString(p.Text)
				} else {
					c.WriteString(p.Text)
				}
			}
		}
		for _, p := range s.Flush() {
			c.WriteString(p.Text)
		}
		if c.String() != "premidpost" || r.String() != "one twothree" {
			t.Fatalf("chunk %d: got (%q, %q)", size, c.String(), r.String())
		}
	}
}
