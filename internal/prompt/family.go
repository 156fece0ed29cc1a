package prompt

import (
	"fmt"
	"strings"
)

// Family is the closed set of supported chat prompt formats.
type Family int

const (
	// Llama2 is the two-turn [INST] style.
	Llama2 Family = iota + 1
	// Llama3 is the header-tagged style.
	Llama3
	// ChatML is the <|im_start|> style used by Qwen and LFM2 checkpoints.
	ChatML
)

var familyNames = map[Family]string{
	Llama2: "llama2",
	Llama3: "llama3",
	ChatML: "chatml",
}

func (f Family) String() string {
	if name, ok := familyNames[f]; ok {
		return name
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// HeaderTagged reports whether turns are delimited by header markers that
// must be resolved as special tokens.
func (f Family) HeaderTagged() bool {
	return f == Llama3 || f == ChatML
}

// ParseFamily maps a family name to a Family.
func ParseFamily(name string) (Family, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "llama2", "llama-2":
		return Llama2, nil
	case "llama3", "llama-3":
		return Llama3, nil
	case "chatml", "qwen", "lfm2":
		return ChatML, nil
	default:
		return 0, fmt.Errorf("unknown model family %q", name)
	}
}

// ResolveFamily picks the family once per session. An explicit name wins;
// otherwise the model repo id is inspected, defaulting to Llama2.
func ResolveFamily(explicit, repoID string) (Family, error) {
	if strings.TrimSpace(explicit) != "" {
		return ParseFamily(explicit)
	}
	id := strings.ToLower(repoID)
	switch {
	case strings.Contains(id, "llama-3"), strings.Contains(id, "llama3"):
		return Llama3, nil
	case strings.Contains(id, "llama-2"), strings.Contains(id, "llama2"):
		return Llama2, nil
	case strings.Contains(id, "qwen"), strings.Contains(id, "chatml"), strings.Contains(id, "lfm2"):
		return ChatML, nil
	default:
		return Llama2, nil
	}
}
