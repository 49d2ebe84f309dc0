package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MessageRepository implements domain.MessageRepository
type MessageRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool, now: time.Now}
}

// Append clamps created_at to the newest message in the session so the log
// never goes backwards when the wall clock does.
func (r *MessageRepository) Append(ctx context.Context, sessionID uuid.UUID, role domain.MessageRole, content string) (*domain.Message, error) {
	if err := role.Validate(); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO chat_messages (id, session_id, role, content, created_at)
		SELECT $1, $2, $3, $4, GREATEST($5::timestamptz, COALESCE(MAX(created_at), $5::timestamptz))
		FROM chat_messages
		WHERE session_id = $2
		RETURNING created_at
	`
	m := &domain.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}
	err := r.pool.QueryRow(ctx, query, m.ID, sessionID, string(role), content, r.now().UTC()).Scan(&m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	return m, nil
}

func (r *MessageRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]domain.Message, error) {
	query := `
		SELECT id, session_id, role, content, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY created_at, seq
	`
	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []domain.Message{}
	for rows.Next() {
		var m domain.Message
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = domain.MessageRole(role)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}
