// Package domain contains core domain types for the Move It chat widget.
package domain

import (
	"fmt"
	"time"
)

// Role identifies who authored a chat message.
type Role string

const (
	// RoleUser marks a message typed by the visitor.
	RoleUser Role = "user"
	// RoleOperator marks a canned reply from the assistant.
	RoleOperator Role = "operator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleOperator
}

// ChatMessage is one persisted transcript entry.
type ChatMessage struct {
	ID        int64     `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChatMessage builds a message stamped at now, truncated to millisecond
// precision so that it survives a round trip through the store unchanged.
func NewChatMessage(role Role, text string, now time.Time) *ChatMessage {
	return &ChatMessage{
		Role:      role,
		Text:      text,
		Timestamp: now.Truncate(time.Millisecond),
	}
}

// TimestampMillis returns the creation time in milliseconds since epoch.
func (m *ChatMessage) TimestampMillis() int64 {
	return m.Timestamp.UnixMilli()
}

// ParseRole converts a stored type tag into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown message role %q", s)
	}
	return r, nil
}
