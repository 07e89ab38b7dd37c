package hosted

import (
	"fmt"
	"strings"

	"github.com/prasetya/lintas/pkg/chat"
)

// Sentinel markers wrapping tool results in the flattened transcript.
// A gateway that mishandles structured content still produces an
// unambiguous, parseable transcript this way.
const (
	toolResultOpen  = "<<<LINTAS_TOOL_RESULT"
	toolResultClose = "<<<END_LINTAS_TOOL_RESULT>>>"
)

// fallbackInstructions is sent when no system message exists; some
// gateways reject an empty instructions field.
const fallbackInstructions = "You are a helpful assistant."

// BuildInstructions joins all system messages into the instructions field,
// never returning an empty string.
func BuildInstructions(messages []chat.Message) string {
	var parts []string
	for _, m := range messages {
		if m.IsSystem() && strings.TrimSpace(m.Content) != "" {
			parts = append(parts, m.Content)
		}
	}
	if len(parts) == 0 {
		return fallbackInstructions
	}
	return strings.Join(parts, "\n\n")
}

// FlattenTranscript renders the non-system history into one plain-text
// transcript. Assistant tool calls become tagged lines and tool results are
// wrapped in sentinel markers.
func FlattenTranscript(messages []chat.Message) string {
	var b strings.Builder
	for _, m := range messages {
		switch m.Role {
		case chat.RoleSystem:
			continue
		case chat.RoleUser:
			b.WriteString("USER: ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		case chat.RoleAssistant:
			if m.Content != "" {
				b.WriteString("ASSISTANT: ")
				b.WriteString(m.Content)
				b.WriteString("\n")
			}
			for _, tc := range m.ToolCalls {
				fmt.Fprintf(&b, "ASSISTANT_TOOL_CALL id=%s name=%s args=%s\n", tc.ID, tc.Name, tc.Arguments)
			}
		case chat.RoleTool:
			fmt.Fprintf(&b, "%s id=%s>>>\n%s\n%s\n", toolResultOpen, m.ToolCallID, m.Content, toolResultClose)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// sanitize escapes embedded newlines to literal \n sequences. Some
// gateways emit invalid JSON when message or tool text contains raw
// newlines; retrying with sanitized strings recovers from that.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\\n")
	return strings.ReplaceAll(s, "\n", "\\n")
}
