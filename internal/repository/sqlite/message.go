package sqlite

import (
	"context"
	"fmt"

	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/google/uuid"
)

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	store *Store
}

func (r *MessageRepository) Append(ctx context.Context, sessionID uuid.UUID, role domain.MessageRole, content string) (*domain.Message, error) {
	if err := role.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO chat_messages (id, session_id, role, content, created_at)
		SELECT ?1, ?2, ?3, ?4, max(?5, COALESCE(MAX(created_at), ?5))
		FROM chat_messages
		WHERE session_id = ?2
		RETURNING created_at`

	m := &domain.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}
	now := toNanos(r.store.now())

	var createdAt int64
	err := r.store.withRetry(ctx, "append_message", func() error {
		return r.store.db.QueryRowContext(ctx, query, m.ID, sessionID, string(role), content, now).Scan(&createdAt)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	m.CreatedAt = fromNanos(createdAt)
	return m, nil
}

func (r *MessageRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Message, error) {
	query := `
		SELECT id, session_id, role, content, created_at
		FROM chat_messages
		WHERE session_id = ?
		ORDER BY created_at, seq`

	rows, err := r.store.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var (
			m         domain.Message
			role      string
			createdAt int64
		)
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = domain.MessageRole(role)
		m.CreatedAt = fromNanos(createdAt)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
