package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is one visitor's conversation with one chatbot, from the first turn
// until the sweeper finds it idle.
type Session struct {
	ID           uuid.UUID `json:"id"`
	ChatbotID    string    `json:"chatbot_id"`
	VisitorID    string    `json:"visitor_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Active       bool      `json:"active"`
}

// IdleFor reports whether the session has been inactive for at least timeout at now.
func (s *Session) IdleFor(now time.Time, timeout time.Duration) bool {
	return s.Active && now.Sub(s.LastActivity) >= timeout
}

// SessionRepository defines the interface for session storage.
//
// At most one active session may exist per (chatbot, visitor) pair. The
// interactive path only mutates LastActivity; sessions are closed by the sweeper.
type SessionRepository interface {
	// ResolveOrCreate returns the active session for the pair, refreshing its
	// last activity, or atomically creates one. created is true for a new session.
	ResolveOrCreate(ctx context.Context, chatbotID, visitorID string) (session *Session, created bool, err error)
	Get(ctx context.Context, id uuid.UUID) (*Session, error)
	// Touch sets last activity to now. Returns ErrSessionNotFound if the session is gone.
	Touch(ctx context.Context, id uuid.UUID) (*Session, error)
	// Close marks the session inactive. Closing twice is a no-op.
	Close(ctx context.Context, id uuid.UUID) (*Session, error)
	// CloseIfIdle closes the session only if it is still active and its last
	// activity is not after cutoff.
	CloseIfIdle(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error)
	// FindIdle returns active sessions whose last activity is at least timeout ago.
	FindIdle(ctx context.Context, timeout time.Duration) ([]Session, error)
	ListByChatbot(ctx context.Context, chatbotID string, limit, offset int) ([]Session, error)
}
