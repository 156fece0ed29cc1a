package prompt

import (
	"fmt"

	"github.com/samcharles93/parley/internal/chat"
)

// Template serialises a conversation into a prompt string. Render must be a
// pure function of msgs.
type Template interface {
	Render(msgs []chat.Message) (string, error)
}

// ForFamily returns the template for f.
func ForFamily(f Family) (Template, error) {
	switch f {
	case Llama2:
		return llama2Template{}, nil
	case Llama3:
		return llama3Template{}, nil
	case ChatML:
		return chatMLTemplate{}, nil
	default:
		return nil, fmt.Errorf("no template for %s", f)
	}
}

func requireMessages(msgs []chat.Message) error {
	if len(msgs) == 0 {
		return &chat.TemplateError{Reason: "history is empty"}
	}
	return nil
}
