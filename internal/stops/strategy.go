package stops

import "github.com/samcharles93/parley/internal/tokenizer"

// Strategy is one way of mapping a marker literal to a single token id.
type Strategy struct {
	Name    string
	Resolve func(tok tokenizer.Tokenizer, m Marker) (int, bool)
}

// DefaultStrategies are tried in order: special-token lookup, a single-id
// encoding of the literal, then the family's hard-coded default.
var DefaultStrategies = []Strategy{
	{Name: "special", Resolve: lookupSpecial},
	{Name: "encode", Resolve: encodeSingle},
	{Name: "default", Resolve: fallbackDefault},
}

func lookupSpecial(tok tokenizer.Tokenizer, m Marker) (int, bool) {
	return tok.LookupSpecialToken(m.Literal)
}

func encodeSingle(tok tokenizer.Tokenizer, m Marker) (int, bool) {
	ids, err := tok.Encode(m.Literal)
	if err != nil || len(ids) != 1 {
		return 0, false
	}
	return ids[0], true
}

func fallbackDefault(_ tokenizer.Tokenizer, m Marker) (int, bool) {
	if m.Default == NoDefault {
		return 0, false
	}
	return m.Default, true
}
