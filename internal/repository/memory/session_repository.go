// Package memory holds in-process repositories for tests and single-node
// deployments. State lives only as long as the repository value.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/google/uuid"
)

// Option configures a memory repository.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func applyOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type pairKey struct {
	chatbotID string
	visitorID string
}

// SessionRepository implements domain.SessionRepository
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*domain.Session
	active   map[pairKey]uuid.UUID
	now      func() time.Time
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(opts ...Option) *SessionRepository {
	o := applyOptions(opts)
	return &SessionRepository{
		sessions: make(map[uuid.UUID]*domain.Session),
		active:   make(map[pairKey]uuid.UUID),
		now:      o.now,
	}
}

func (r *SessionRepository) ResolveOrCreate(ctx context.Context, chatbotID, visitorID string) (*domain.Session, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	key := pairKey{chatbotID: chatbotID, visitorID: visitorID}
	if id, ok := r.active[key]; ok {
		s := r.sessions[id]
		s.LastActivity = now
		out := *s
		return &out, false, nil
	}

	s := &domain.Session{
		ID:           uuid.New(),
		ChatbotID:    chatbotID,
		VisitorID:    visitorID,
		CreatedAt:    now,
		LastActivity: now,
		Active:       true,
	}
	r.sessions[s.ID] = s
	r.active[key] = s.ID

	out := *s
	return &out, true, nil
}

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := *s
	return &out, nil
}

func (r *SessionRepository) Touch(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	s.LastActivity = r.now()
	out := *s
	return &out, nil
}

func (r *SessionRepository) Close(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	r.deactivate(s)
	out := *s
	return &out, nil
}

func (r *SessionRepository) CloseIfIdle(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false, domain.ErrSessionNotFound
	}
	if !s.Active || s.LastActivity.After(cutoff) {
		return false, nil
	}
	r.deactivate(s)
	return true, nil
}

// deactivate requires r.mu held.
func (r *SessionRepository) deactivate(s *domain.Session) {
	if !s.Active {
		return
	}
	s.Active = false
	key := pairKey{chatbotID: s.ChatbotID, visitorID: s.VisitorID}
	if r.active[key] == s.ID {
		delete(r.active, key)
	}
}

func (r *SessionRepository) FindIdle(ctx context.Context, timeout time.Duration) ([]domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	now := r.now()
	var idle []domain.Session
	for _, id := range r.active {
		s := r.sessions[id]
		if s.IdleFor(now, timeout) {
			idle = append(idle, *s)
		}
	}
	return idle, nil
}

func (r *SessionRepository) ListByChatbot(ctx context.Context, chatbotID string, limit, offset int) ([]domain.Session, error) {
	r.mu.RLock()
	var sessions []domain.Session
	for _, s := range r.sessions {
		if s.ChatbotID == chatbotID {
			sessions = append(sessions, *s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivity.After(sessions[j].LastActivity)
	})
	return paginate(sessions, limit, offset), nil
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
