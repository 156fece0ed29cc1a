package chat

import (
	"fmt"
	"slices"
)

// History is the ordered, append-only message log of one session.
// Index 0 always holds the single system message.
type History struct {
	msgs []Message
}

// NewHistory starts a history with the given system prompt.
func NewHistory(system string) *History {
	return &History{msgs: []Message{{Role: RoleSystem, Content: system}}}
}

// Restore rebuilds a history from previously committed messages.
func Restore(msgs []Message) (*History, error) {
	if len(msgs) == 0 {
		return nil, &TemplateError{Reason: "history is empty"}
	}
	if msgs[0].Role != RoleSystem {
		return nil, &TemplateError{Reason: fmt.Sprintf("first message has role %q, want system", msgs[0].Role)}
	}
	for i, m := range msgs[1:] {
		if m.Role == RoleSystem {
			return nil, &TemplateError{Reason: fmt.Sprintf("system message at index %d", i+1)}
		}
	}
	return &History{msgs: slices.Clone(msgs)}, nil
}

// Len returns the number of committed messages.
func (h *History) Len() int { return len(h.msgs) }

// Messages returns a copy of the committed messages.
func (h *History) Messages() []Message { return slices.Clone(h.msgs) }

// Last returns the most recent message.
func (h *History) Last() Message { return h.msgs[len(h.msgs)-1] }

// System returns the system prompt.
func (h *History) System() string { return h.msgs[0].Content }

// With returns the committed messages followed by extra, without changing h.
func (h *History) With(extra ...Message) []Message {
	out := make([]Message, 0, len(h.msgs)+len(extra))
	out = append(out, h.msgs...)
	return append(out, extra...)
}

// Append commits messages. System messages are rejected.
func (h *History) Append(msgs ...Message) error {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			return &TemplateError{Reason: "system message may only appear at index 0"}
		}
	}
	h.msgs = append(h.msgs, msgs...)
	return nil
}
