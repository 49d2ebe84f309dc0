package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/google/uuid"
)

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	mu       sync.RWMutex
	messages map[uuid.UUID][]domain.Message
	now      func() time.Time
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(opts ...Option) *MessageRepository {
	o := applyOptions(opts)
	return &MessageRepository{
		messages: make(map[uuid.UUID][]domain.Message),
		now:      o.now,
	}
}

func (r *MessageRepository) Append(ctx context.Context, sessionID uuid.UUID, role domain.MessageRole, content string) (*domain.Message, error) {
	if err := role.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ts := r.now()
	log := r.messages[sessionID]
	if n := len(log); n > 0 && ts.Before(log[n-1].CreatedAt) {
		ts = log[n-1].CreatedAt
	}

	m := domain.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: ts,
	}
	r.messages[sessionID] = append(log, m)
	return &m, nil
}

func (r *MessageRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.messages[sessionID]
	out := make([]domain.Message, len(log))
	copy(out, log)
	return out, nil
}
