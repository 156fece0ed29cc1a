package prompt

import (
	"strings"

	"github.com/samcharles93/parley/internal/chat"
)

// Llama-2 chat markers.
const (
	Llama2BOS      = "<s>"
	Llama2EOS      = "</s>"
	llama2InstOpen = "[INST]"
	llama2InstEnd  = "[/INST]"
	llama2SysOpen  = "<<SYS>>"
	llama2SysClose = "<</SYS>>"
)

type llama2Template struct{}

// Render produces a single running [INST] string. The system block is only
// emitted when the system message is first; each assistant turn closes the
// sequence and reopens the next instruction.
func (llama2Template) Render(msgs []chat.Message) (string, error) {
	if err := requireMessages(msgs); err != nil {
		return "", err
	}
	var b strings.Builder
	for i, m := range msgs {
		switch {
		case m.Role == chat.RoleSystem && i == 0:
			b.WriteString(Llama2BOS + llama2InstOpen + " " + llama2SysOpen + "\n")
			b.WriteString(m.Content)
			b.WriteString("\n" + llama2SysClose + "\n\n")
		case m.Role == chat.RoleUser:
			b.WriteString(m.Content)
			b.WriteString(" " + llama2InstEnd)
		case m.Role == chat.RoleAssistant:
			b.WriteString(" ")
			b.WriteString(m.Content)
			b.WriteString(Llama2EOS + Llama2BOS + llama2InstOpen + " ")
		}
	}
	return b.String(), nil
}
