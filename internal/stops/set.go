package stops

import (
	"slices"
)

// Set is the immutable stop vocabulary of one session.
type Set struct {
	single    map[int]struct{}
	sequences [][]int
	control   map[int]struct{}
	resolved  []Resolution
}

// Resolution records how a marker was resolved.
type Resolution struct {
	Literal  string `json:"literal"`
	ID       int    `json:"id"`
	Strategy string `json:"strategy"`
}

// NewSet builds a Set directly from ids. Empty sequences are dropped and
// duplicates collapsed.
func NewSet(single []int, sequences [][]int, control []int) *Set {
	s := &Set{
		single:  make(map[int]struct{}, len(single)),
		control: make(map[int]struct{}, len(control)),
	}
	for _, id := range single {
		s.single[id] = struct{}{}
	}
	for _, id := range control {
		s.control[id] = struct{}{}
	}
	for _, seq := range sequences {
		s.addSequence(seq)
	}
	return s
}

func (s *Set) addSequence(seq []int) bool {
	if len(seq) == 0 {
		return false
	}
	for _, have := range s.sequences {
		if slices.Equal(have, seq) {
			return false
		}
	}
	s.sequences = append(s.sequences, slices.Clone(seq))
	return true
}

// IsStop reports whether id ends generation on its own.
func (s *Set) IsStop(id int) bool {
	_, ok := s.single[id]
	return ok
}

// IsControl reports whether id must never be rendered.
func (s *Set) IsControl(id int) bool {
	_, ok := s.control[id]
	return ok
}

// MatchesSequence reports whether buf equals a stop sequence exactly.
func (s *Set) MatchesSequence(buf []int) bool {
	for _, seq := range s.sequences {
		if slices.Equal(seq, buf) {
			return true
		}
	}
	return false
}

// PrefixOfSequence reports whether buf is a prefix of some stop sequence,
// i.e. more tokens could still complete a match.
func (s *Set) PrefixOfSequence(buf []int) bool {
	for _, seq := range s.sequences {
		if len(buf) <= len(seq) && slices.Equal(seq[:len(buf)], buf) {
			return true
		}
	}
	return false
}

// SingleStops returns the single-token stop ids in ascending order.
func (s *Set) SingleStops() []int { return sortedKeys(s.single) }

// ControlTokens returns the control ids in ascending order.
func (s *Set) ControlTokens() []int { return sortedKeys(s.control) }

// Sequences returns a copy of the multi-token stop sequences.
func (s *Set) Sequences() [][]int {
	out := make([][]int, len(s.sequences))
	for i, seq := range s.sequences {
		out[i] = slices.Clone(seq)
	}
	return out
}

// Resolutions returns how each marker was resolved.
func (s *Set) Resolutions() []Resolution { return slices.Clone(s.resolved) }

func sortedKeys(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
