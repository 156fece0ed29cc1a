package tokenizer

import (
	"cmp"
	"maps"
	"slices"
	"strings"
)

type symbolPair struct {
	left, right string
}

// segment is a run of input text, either a special-token literal or
// ordinary text that goes through BPE.
type segment struct {
	text    string
	special bool
}

// segmentSpecials cuts text around special literals. specials must be
// sorted longest first so the longest literal wins at a position.
func segmentSpecials(text string, specials []string) []segment {
	if len(specials) == 0 {
		return []segment{{text: text}}
	}
	var out []segment
	start := 0
	for i := 0; i < len(text); {
		lit := matchSpecial(text[i:], specials)
		if lit == "" {
			i++
			continue
		}
		if i > start {
			out = append(out, segment{text: text[start:i]})
		}
		out = append(out, segment{text: lit, special: true})
		i += len(lit)
		start = i
	}
	if start < len(text) {
		out = append(out, segment{text: text[start:]})
	}
	return out
}

func matchSpecial(s string, specials []string) string {
	for _, sp := range specials {
		if sp != "" && strings.HasPrefix(s, sp) {
			return sp
		}
	}
	return ""
}

func sortSpecials(specials map[string]int) []string {
	out := slices.Collect(maps.Keys(specials))
	slices.SortFunc(out, func(a, b string) int {
		if c := cmp.Compare(len(b), len(a)); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	})
	return out
}

// looksSpecial matches the <|name|> convention for added tokens that are
// not flagged special in tokenizer.json.
func looksSpecial(s string) bool {
	return len(s) >= 4 && strings.HasPrefix(s, "<|") && strings.HasSuffix(s, "|>")
}

func runeSymbols(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// bpeMerge repeatedly joins every occurrence of the lowest-ranked adjacent
// pair until no ranked pair remains.
func bpeMerge(symbols []string, ranks map[symbolPair]int) []string {
	for len(symbols) > 1 {
		best, bestRank := -1, 0
		for i := 0; i+1 < len(symbols); i++ {
			r, ok := ranks[symbolPair{symbols[i], symbols[i+1]}]
			if ok && (best < 0 || r < bestRank) {
				best, bestRank = i, r
			}
		}
		if best < 0 {
			break
		}
		p := symbolPair{symbols[best], symbols[best+1]}
		merged := make([]string, 0, len(symbols)-1)
		for i := 0; i < len(symbols); i++ {
			if i+1 < len(symbols) && symbols[i] == p.left && symbols[i+1] == p.right {
				merged = append(merged, p.left+p.right)
				i++
				continue
			}
			merged = append(merged, symbols[i])
		}
		symbols = merged
	}
	return symbols
}

// byteLevelAlphabet is the reversible byte to rune table of byte-level BPE:
// printable Latin-1 bytes stand for themselves, the rest are moved to runes
// from U+0100 upward in byte order.
func byteLevelAlphabet() (enc [256]string, dec map[rune]byte) {
	dec = make(map[rune]byte, 256)
	next := rune(256)
	for b := 0; b < 256; b++ {
		r := rune(b)
		if !printableByte(byte(b)) {
			r = next
			next++
		}
		enc[b] = string(r)
		dec[r] = byte(b)
	}
	return enc, dec
}

func printableByte(b byte) bool {
	return ('!' <= b && b <= '~') || (0xA1 <= b && b <= 0xAC) || 0xAE <= b
}
