package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/google/uuid"
)

// InsightRepository implements domain.InsightRepository
type InsightRepository struct {
	mu        sync.RWMutex
	bySession map[uuid.UUID]domain.Insight
	order     []uuid.UUID
	now       func() time.Time
}

// NewInsightRepository creates a new insight repository
func NewInsightRepository(opts ...Option) *InsightRepository {
	o := applyOptions(opts)
	return &InsightRepository{
		bySession: make(map[uuid.UUID]domain.Insight),
		now:       o.now,
	}
}

func (r *InsightRepository) Create(ctx context.Context, insight *domain.Insight) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySession[insight.SessionID]; exists {
		return domain.ErrInsightExists
	}
	if insight.ID == uuid.Nil {
		insight.ID = uuid.New()
	}
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = r.now()
	}

	r.bySession[insight.SessionID] = *insight
	r.order = append(r.order, insight.SessionID)
	return nil
}

func (r *InsightRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*domain.Insight, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	in, ok := r.bySession[sessionID]
	if !ok {
		return nil, domain.ErrInsightNotFound
	}
	return &in, nil
}

// List returns insights in creation order.
func (r *InsightRepository) List(ctx context.Context, filter domain.InsightFilter) ([]domain.Insight, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Insight
	for _, id := range r.order {
		in := r.bySession[id]
		if filter.ChatbotID != "" && in.ChatbotID != filter.ChatbotID {
			continue
		}
		out = append(out, in)
	}
	return paginate(out, filter.Limit, filter.Offset), nil
}
