package service

import (
	"context"
	"time"

	"github.com/Rrens/chatbot-insights/internal/chatbot"
	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockMessageRepository mocks the MessageRepository interface
type MockMessageRepository struct {
	mock.Mock
}

func (m *MockMessageRepository) Append(ctx context.Context, sessionID uuid.UUID, role domain.MessageRole, content string) (*domain.Message, error) {
	args := m.Called(ctx, sessionID, role, content)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Message, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).([]domain.Message), args.Error(1)
}

// MockSessionRepository mocks the SessionRepository interface
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) ResolveOrCreate(ctx context.Context, chatbotID, visitorID string) (*domain.Session, bool, error) {
	args := m.Called(ctx, chatbotID, visitorID)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*domain.Session), args.Bool(1), args.Error(2)
}

func (m *MockSessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) Touch(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) Close(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Session), args.Error(1)
}

func (m *MockSessionRepository) CloseIfIdle(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	args := m.Called(ctx, id, cutoff)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepository) FindIdle(ctx context.Context, timeout time.Duration) ([]domain.Session, error) {
	args := m.Called(ctx, timeout)
	return args.Get(0).([]domain.Session), args.Error(1)
}

func (m *MockSessionRepository) ListByChatbot(ctx context.Context, chatbotID string, limit, offset int) ([]domain.Session, error) {
	args := m.Called(ctx, chatbotID, limit, offset)
	return args.Get(0).([]domain.Session), args.Error(1)
}

// MockDirectory mocks the chatbot.Directory interface
type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) Lookup(ctx context.Context, chatbotID string) (*chatbot.Profile, error) {
	args := m.Called(ctx, chatbotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*chatbot.Profile), args.Error(1)
}

// MockGenerator mocks the answer.Generator interface
type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Answer(ctx context.Context, query string, profile *chatbot.Profile) (string, error) {
	args := m.Called(ctx, query, profile)
	return args.String(0), args.Error(1)
}
