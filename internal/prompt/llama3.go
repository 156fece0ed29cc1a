package prompt

import (
	"strings"

	"github.com/samcharles93/parley/internal/chat"
)

// Llama-3 instruct markers.
const (
	Llama3BeginOfText  = "<|begin_of_text|>"
	Llama3EndOfText    = "<|end_of_text|>"
	Llama3StartHeader  = "<|start_header_id|>"
	Llama3EndHeader    = "<|end_header_id|>"
	Llama3EndOfTurn    = "<|eot_id|>"
	Llama3EndOfMessage = "<|eom_id|>"
)

type llama3Template struct{}

func (llama3Template) Render(msgs []chat.Message) (string, error) {
	if err := requireMessages(msgs); err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(Llama3BeginOfText)
	for i, m := range msgs {
		if m.Role == chat.RoleSystem && i != 0 {
			continue
		}
		writeLlama3Header(&b, m.Role)
		b.WriteString(m.Content)
		b.WriteString(Llama3EndOfTurn)
	}
	if msgs[len(msgs)-1].Role == chat.RoleUser {
		writeLlama3Header(&b, chat.RoleAssistant)
	}
	return b.String(), nil
}

func writeLlama3Header(b *strings.Builder, role chat.Role) {
	b.WriteString(Llama3StartHeader)
	b.WriteString(string(role))
	b.WriteString(Llama3EndHeader)
	b.WriteString("\n")
}
