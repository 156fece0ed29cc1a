package prompt

import (
	"strings"

	"github.com/samcharles93/parley/internal/chat"
)

// ChatML markers.
const (
	ChatMLStart     = "<|im_start|>"
	ChatMLEnd       = "<|im_end|>"
	ChatMLEndOfText = "<|endoftext|>"
)

type chatMLTemplate struct{}

func (chatMLTemplate) Render(msgs []chat.Message) (string, error) {
	if err := requireMessages(msgs); err != nil {
		return "", err
	}
	var b strings.Builder
	for i, m := range msgs {
		if m.Role == chat.RoleSystem && i != 0 {
			continue
		}
		b.WriteString(ChatMLStart)
		b.WriteString(string(m.Role))
		b.WriteString("\n")
		b.WriteString(m.Content)
		b.WriteString(ChatMLEnd + "\n")
	}
	if msgs[len(msgs)-1].Role == chat.RoleUser {
		b.WriteString(ChatMLStart + string(chat.RoleAssistant) + "\n")
	}
	return b.String(), nil
}
