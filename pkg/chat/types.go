package chat

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Attachment references a file produced or referenced during a turn.
type Attachment struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	MimeType string `json:"mime_type,omitempty"`
}

// ToolCall represents a tool invocation requested by the assistant.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON text
}

// Message is a single conversation turn entry. Messages are immutable once
// appended to a session's history; trimming drops whole messages, never
// rewrites them.
type Message struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`   // assistant only
	ToolCallID  string       `json:"tool_call_id,omitempty"` // tool role only
}

// messageOverhead is the fixed per-message cost used by character budgeting,
// covering role/framing that is not part of the content itself.
const messageOverhead = 8

// System returns a system message with the given prompt.
func System(prompt string) Message {
	return Message{Role: RoleSystem, Content: prompt}
}

// User returns a user message with the given content.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// CharCost estimates the character budget a message consumes: content
// length plus attachment metadata plus a fixed overhead.
func (m Message) CharCost() int {
	cost := len(m.Content) + messageOverhead
	for _, a := range m.Attachments {
		cost += len(a.ID) + len(a.Filename) + len(a.MimeType)
	}
	for _, tc := range m.ToolCalls {
		cost += len(tc.ID) + len(tc.Name) + len(tc.Arguments)
	}
	return cost
}

// IsSystem reports whether the message carries the system role.
func (m Message) IsSystem() bool {
	return m.Role == RoleSystem
}
