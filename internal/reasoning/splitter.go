// Package reasoning separates <think>...</think> blocks from streamed reply
// text so a console can show, dim or hide them.
package reasoning

import "strings"

const (
	OpenTag  = "<think>"
	CloseTag = "</think>"
)

// Part is a run of text that is either reasoning or visible content.
type Part struct {
	Text      string
	Reasoning bool
}

// Splitter tags streamed text incrementally. A fragment ending in a
// possible partial tag is held until the next Push or Flush, so tags split
// across fragments are still recognised.
type Splitter struct {
	thinking bool
	pending  string
}

// Push consumes delta and returns the parts that are now certain.
func (s *Splitter) Push(delta string) []Part {
	buf := s.pending + delta
	s.pending = ""

	var parts []Part
	for buf != "" {
		tag := OpenTag
		if s.thinking {
			tag = CloseTag
		}
		if i := strings.Index(buf, tag); i >= 0 {
			parts = s.appendPart(parts, buf[:i])
			buf = buf[i+len(tag):]
			s.thinking = !s.thinking
			continue
		}
		keep := partialSuffix(buf, tag)
		parts = s.appendPart(parts, buf[:len(buf)-keep])
		s.pending = buf[len(buf)-keep:]
		break
	}
	return parts
}

// Flush returns any held text. An unclosed block stays reasoning.
func (s *Splitter) Flush() []Part {
	tail := s.pending
	s.pending = ""
	return s.appendPart(nil, tail)
}

// Thinking reports whether the splitter is inside an open block.
func (s *Splitter) Thinking() bool { return s.thinking }

func (s *Splitter) appendPart(parts []Part, text string) []Part {
	if text == "" {
		return parts
	}
	if n := len(parts); n > 0 && parts[n-1].Reasoning == s.thinking {
		parts[n-1].Text += text
		return parts
	}
	return append(parts, Part{Text: text, Reasoning: s.thinking})
}

// partialSuffix is the length of the longest proper prefix of tag that
// ends buf.
func partialSuffix(buf, tag string) int {
	n := min(len(buf), len(tag)-1)
	for k := n; k > 0; k-- {
		if strings.HasSuffix(buf, tag[:k]) {
			return k
		}
	}
	return 0
}

// Split separates a complete reply into content and reasoning.
func Split(raw string) (content, reasoning string) {
	var s Splitter
	var c, r strings.Builder
	for _, p := range append(s.Push(raw), s.Flush()...) {
		if p.Reasoning {
			r.WriteString(p.Text)
		} else {
			c.WriteString(p.Text)
		}
	}
	return c.String(), r.String()
}
