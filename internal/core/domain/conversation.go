package domain

// MessageRole defines who authored a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is a single role-tagged entry of a conversation.
type Message struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`
}

// ConversationMemory is the ordered, append-only history of one session.
// It is owned by a single agent loop and must not be shared.
type ConversationMemory struct {
	messages []Message
}

func (m *ConversationMemory) Append(role MessageRole, content string) {
	m.messages = append(m.messages, Message{Role: role, Content: content})
}

// Messages returns a copy of the history in insertion order.
func (m *ConversationMemory) Messages() []Message {
	out := make([]Message, len(m.messages))
	copy(out, m.messages)
	return out
}

func (m *ConversationMemory) Len() int { return len(m.messages) }
