package sweeper

import (
	"context"
	"errors"
	"sync"

	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/Rrens/chatbot-insights/internal/llm"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockExtractor mocks the Extractor interface
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, session domain.Session, messages []domain.Message) *domain.Insight {
	args := m.Called(ctx, session, messages)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*domain.Insight)
}

// failingMessages fails ListBySession for one session and delegates the rest.
type failingMessages struct {
	domain.MessageRepository
	failFor uuid.UUID
}

func (f *failingMessages) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Message, error) {
	if sessionID == f.failFor {
		return nil, errors.New("disk on fire")
	}
	return f.MessageRepository.ListBySession(ctx, sessionID)
}

type published struct {
	subject string
	payload any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingNotifier) Publish(_ context.Context, subject string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{subject: subject, payload: payload})
	return nil
}

func (r *recordingNotifier) Close() {}

func (r *recordingNotifier) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.subject
	}
	return out
}

// blockingProvider holds Complete open until the caller's context ends.
type blockingProvider struct {
	once    sync.Once
	started chan struct{}
}

func newBlockingProvider() *blockingProvider {
	return &blockingProvider{started: make(chan struct{})}
}

func (p *blockingProvider) Name() string              { return "blocking" }
func (p *blockingProvider) AvailableModels() []string { return []string{"m"} }
func (p *blockingProvider) DefaultModel() string      { return "m" }
func (p *blockingProvider) IsConfigured() bool        { return true }

func (p *blockingProvider) Complete(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.once.Do(func() { close(p.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}
