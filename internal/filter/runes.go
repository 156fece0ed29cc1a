package filter

import "unicode/utf8"

// UTF8Assembler holds back the tail of a fragment that ends inside a
// multi-byte rune. Byte-level tokens can split a rune across two ids, so
// single-token fragments are not always valid UTF-8 on their own.
type UTF8Assembler struct {
	pending []byte
}

// Push returns the printable prefix of everything seen so far.
func (a *UTF8Assembler) Push(fragment string) string {
	a.pending = append(a.pending, fragment...)
	cut := completePrefix(a.pending)
	out := string(a.pending[:cut])
	a.pending = append(a.pending[:0], a.pending[cut:]...)
	return out
}

// Flush returns whatever is held back, complete or not.
func (a *UTF8Assembler) Flush() string {
	out := string(a.pending)
	a.pending = a.pending[:0]
	return out
}

// completePrefix is the length of b without a trailing incomplete rune.
func completePrefix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return len(b)
		}
		return i
	}
	return len(b)
}
