package cliagent

import (
	"strings"

	"github.com/prasetya/lintas/pkg/chat"
)

// renderFullPrompt embeds the entire conversation: used for the first turn
// of a session and for the fresh retry after a lost thread, when the agent
// holds no context of its own.
func renderFullPrompt(messages []chat.Message, hints []string) string {
	var b strings.Builder

	for _, m := range messages {
		if m.IsSystem() && m.Content != "" {
			b.WriteString(m.Content)
			b.WriteString("\n\n")
		}
	}

	var history []string
	for _, m := range messages {
		switch m.Role {
		case chat.RoleUser:
			history = append(history, "User: "+m.Content)
		case chat.RoleAssistant:
			if m.Content != "" {
				history = append(history, "Assistant: "+m.Content)
			}
		}
	}

	if len(history) > 1 {
		b.WriteString("Conversation so far:\n")
		b.WriteString(strings.Join(history[:len(history)-1], "\n"))
		b.WriteString("\n\n")
	}
	if len(history) > 0 {
		b.WriteString(history[len(history)-1])
		b.WriteString("\n")
	}

	writeHints(&b, hints)
	return strings.TrimRight(b.String(), "\n")
}

// renderResumePrompt carries only the new request plus standing
// constraints; the resumed thread already holds the history.
func renderResumePrompt(messages []chat.Message, hints []string) string {
	var b strings.Builder

	for _, m := range messages {
		if m.IsSystem() && m.Content != "" {
			b.WriteString(m.Content)
			b.WriteString("\n\n")
		}
	}

	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleUser {
			b.WriteString(messages[i].Content)
			b.WriteString("\n")
			break
		}
	}

	writeHints(&b, hints)
	return strings.TrimRight(b.String(), "\n")
}

func writeHints(b *strings.Builder, hints []string) {
	for _, h := range hints {
		b.WriteString(h)
		b.WriteString("\n")
	}
}
