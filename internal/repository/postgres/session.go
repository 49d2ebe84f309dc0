package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const sessionColumns = `id, chatbot_id, visitor_id, created_at, last_activity, active`

// SessionRepository implements domain.SessionRepository
type SessionRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool, now: time.Now}
}

// ResolveOrCreate relies on the partial unique index over active sessions so
// concurrent first turns for the same pair converge on one row.
func (r *SessionRepository) ResolveOrCreate(ctx context.Context, chatbotID, visitorID string) (*domain.Session, bool, error) {
	query := `
		INSERT INTO chat_sessions (id, chatbot_id, visitor_id, created_at, last_activity, active)
		VALUES ($1, $2, $3, $4, $4, TRUE)
		ON CONFLICT (chatbot_id, visitor_id) WHERE active
		DO UPDATE SET last_activity = GREATEST(chat_sessions.last_activity, EXCLUDED.last_activity)
		RETURNING ` + sessionColumns

	newID := uuid.New()
	s, err := scanSession(r.pool.QueryRow(ctx, query, newID, chatbotID, visitorID, r.now().UTC()))
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve session: %w", err)
	}
	return s, s.ID == newID, nil
}

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = $1`

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "failed to get session")
	}
	return s, nil
}

func (r *SessionRepository) Touch(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		UPDATE chat_sessions SET last_activity = GREATEST(last_activity, $2)
		WHERE id = $1
		RETURNING ` + sessionColumns

	s, err := scanSession(r.pool.QueryRow(ctx, query, id, r.now().UTC()))
	if err != nil {
		return nil, notFound(err, "failed to touch session")
	}
	return s, nil
}

func (r *SessionRepository) Close(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		UPDATE chat_sessions SET active = FALSE
		WHERE id = $1
		RETURNING ` + sessionColumns

	s, err := scanSession(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err, "failed to close session")
	}
	return s, nil
}

func (r *SessionRepository) CloseIfIdle(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	query := `
		UPDATE chat_sessions SET active = FALSE
		WHERE id = $1 AND active AND last_activity <= $2
	`
	tag, err := r.pool.Exec(ctx, query, id, cutoff.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to close idle session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *SessionRepository) FindIdle(ctx context.Context, timeout time.Duration) ([]domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE active AND last_activity <= $1
		ORDER BY last_activity
	`
	rows, err := r.pool.Query(ctx, query, r.now().Add(-timeout).UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to find idle sessions: %w", err)
	}
	return collectSessions(rows)
}

func (r *SessionRepository) ListByChatbot(ctx context.Context, chatbotID string, limit, offset int) ([]domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE chatbot_id = $1
		ORDER BY last_activity DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, chatbotID, limitOrAll(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return collectSessions(rows)
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(&s.ID, &s.ChatbotID, &s.VisitorID, &s.CreatedAt, &s.LastActivity, &s.Active); err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSessions(rows pgx.Rows) ([]domain.Session, error) {
	defer rows.Close()

	sessions := []domain.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return sessions, nil
}

// limitOrAll maps a non-positive limit to NULL, which LIMIT treats as no limit.
func limitOrAll(limit int) *int {
	if limit <= 0 {
		return nil
	}
	return &limit
}

func notFound(err error, msg string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrSessionNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
