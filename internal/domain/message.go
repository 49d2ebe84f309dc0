package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MessageRole represents the sender of a message
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Validate returns ErrInvalidRole for anything other than user or assistant.
func (r MessageRole) Validate() error {
	switch r {
	case RoleUser, RoleAssistant:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRole, string(r))
	}
}

// Message is one immutable turn half within a session.
type Message struct {
	ID        uuid.UUID   `json:"id"`
	SessionID uuid.UUID   `json:"session_id"`
	Role      MessageRole `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	// Append stores a message stamped with the capture time. The timestamp never
	// goes backwards within a session.
	Append(ctx context.Context, sessionID uuid.UUID, role MessageRole, content string) (*Message, error)
	// ListBySession returns messages oldest first; an empty slice if there are none.
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Message, error)
}
