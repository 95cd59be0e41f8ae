// Package message defines a single role-tagged text message in a conversation.
package message

import "github.com/parleyhq/parley/pkg/chats/role"

// Message is one entry in a conversation. Treat it as immutable once
// constructed: adapters only read it, and metadata is the only field with
// mutating accessors.
type Message struct {
	Sender   string
	Role     role.Role
	Content  string
	Metadata map[string]any
}

// New creates a message with the given sender, role, and text content.
func New(sender string, r role.Role, content string) Message {
	return Message{Sender: sender, Role: r, Content: content}
}

// SetMeta attaches an arbitrary key/value pair to the message, allocating the
// metadata map on first use.
func (m *Message) SetMeta(key string, value any) {
	if m.Metadata == nil {
		m.Metadata = make(map[string]any)
	}
	m.Metadata[key] = value
}

// GetMeta returns the metadata value for key and whether it was present.
func (m *Message) GetMeta(key string) (any, bool) {
	v, ok := m.Metadata[key]
	return v, ok
}
