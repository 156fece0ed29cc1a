// Package tokenizertest provides an in-memory tokenizer for tests.
package tokenizertest

import (
	"fmt"
	"sort"
	"strings"
)

// Vocab encodes by greedy longest match over a fixed piece table. Pieces
// listed in Specials are reported by LookupSpecialToken.
type Vocab struct {
	pieces   map[string]int
	byID     map[int]string
	specials map[string]int
	order    []string
	eos      int
}

// New builds a Vocab from piece→id pairs. specials names the pieces that
// are special tokens.
func New(pieces map[string]int, specials ...string) *Vocab {
	v := &Vocab{
		pieces:   make(map[string]int, len(pieces)),
		byID:     make(map[int]string, len(pieces)),
		specials: make(map[string]int),
		eos:      -1,
	}
	for p, id := range pieces {
		v.pieces[p] = id
		v.byID[id] = p
		v.order = append(v.order, p)
	}
	sort.Slice(v.order, func(i, j int) bool {
		if len(v.order[i]) != len(v.order[j]) {
			return len(v.order[i]) > len(v.order[j])
		}
		return v.order[i] < v.order[j]
	})
	for _, s := range specials {
		if id, ok := pieces[s]; ok {
			v.specials[s] = id
		}
	}
	return v
}

// WithEOS makes the Vocab report id as its declared end-of-sequence token.
func (v *Vocab) WithEOS(id int) *Vocab {
	v.eos = id
	return v
}

func (v *Vocab) EOSID() int { return v.eos }

func (v *Vocab) Encode(text string) ([]int, error) {
	var ids []int
	for len(text) > 0 {
		matched := false
		for _, p := range v.order {
			if strings.HasPrefix(text, p) {
				ids = append(ids, v.pieces[p])
				text = text[len(p):]
				matched = true
				break
			}
		}
		if !matched {
			return nil, fmt.Errorf("no piece for %q", text)
		}
	}
	return ids, nil
}

func (v *Vocab) Decode(ids []int) (string, error) {
	var b strings.Builder
	for _, id := range ids {
		p, ok := v.byID[id]
		if !ok {
			return "", fmt.Errorf("unknown token id %d", id)
		}
		b.WriteString(p)
	}
	return b.String(), nil
}

func (v *Vocab) LookupSpecialToken(name string) (int, bool) {
	id, ok := v.specials[name]
	return id, ok
}
