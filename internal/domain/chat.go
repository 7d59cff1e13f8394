package domain

import (
	"time"
)

// Chat roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one entry of a report conversation. A message with
// IsLoading set is a placeholder for an in-flight reply and is never persisted.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	IsLoading bool      `json:"is_loading,omitempty"`
}

// StoredMessage is a serialized chat turn as returned by remote history.
type StoredMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
