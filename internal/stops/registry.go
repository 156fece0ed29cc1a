package stops

import "github.com/samcharles93/parley/internal/prompt"

// NoDefault marks a marker without a hard-coded fallback id.
const NoDefault = -1

// Marker is a special token literal the registry must turn into one id.
type Marker struct {
	Literal  string
	Default  int
	Required bool
	// Stop adds the id to the single-token stops.
	Stop bool
	// Control adds the id to the control set.
	Control bool
}

// Entry describes the stop vocabulary of one family.
type Entry struct {
	EOS     Marker
	Markers []Marker
	// ClosingTags are literals whose encodings become multi-token stops.
	ClosingTags []string
}

// defaultClosingTags covers instruct checkpoints that close a reply with a
// response tag instead of an end-of-sequence token.
var defaultClosingTags = []string{" [/RESP]", "[/RESP]"}

var registry = map[prompt.Family]Entry{
	prompt.Llama2: {
		EOS:         Marker{Literal: prompt.Llama2EOS, Default: 2, Required: true, Stop: true},
		ClosingTags: defaultClosingTags,
	},
	prompt.Llama3: {
		// Defaults are the Meta-Llama-3 public tokenizer ids.
		EOS: Marker{Literal: prompt.Llama3EndOfText, Default: 128001, Required: true, Stop: true},
		Markers: []Marker{
			{Literal: prompt.Llama3EndOfTurn, Default: 128009, Required: true, Stop: true, Control: true},
			{Literal: prompt.Llama3EndOfMessage, Default: 128008, Stop: true, Control: true},
			{Literal: prompt.Llama3StartHeader, Default: 128006, Required: true, Control: true},
			{Literal: prompt.Llama3EndHeader, Default: 128007, Required: true, Control: true},
			{Literal: prompt.Llama3BeginOfText, Default: NoDefault, Control: true},
		},
		ClosingTags: defaultClosingTags,
	},
	prompt.ChatML: {
		// Defaults are the Qwen2 public tokenizer ids.
		EOS: Marker{Literal: prompt.ChatMLEndOfText, Default: 151643, Required: true, Stop: true},
		Markers: []Marker{
			{Literal: prompt.ChatMLEnd, Default: 151645, Required: true, Stop: true, Control: true},
			{Literal: prompt.ChatMLStart, Default: 151644, Required: true, Control: true},
		},
		ClosingTags: defaultClosingTags,
	},
}

// EntryFor returns the registry entry for f.
func EntryFor(f prompt.Family) (Entry, bool) {
	e, ok := registry[f]
	return e, ok
}
