package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/google/uuid"
)

const sessionColumns = `id, chatbot_id, visitor_id, created_at, last_activity, active`

type rowScanner interface {
	Scan(dest ...any) error
}

// SessionRepository implements domain.SessionRepository
type SessionRepository struct {
	store *Store
}

func (r *SessionRepository) ResolveOrCreate(ctx context.Context, chatbotID, visitorID string) (*domain.Session, bool, error) {
	query := `
		INSERT INTO chat_sessions (id, chatbot_id, visitor_id, created_at, last_activity, active)
		VALUES (?, ?, ?, ?, ?, 1)
		ON CONFLICT (chatbot_id, visitor_id) WHERE active = 1
		DO UPDATE SET last_activity = max(last_activity, excluded.last_activity)
		RETURNING ` + sessionColumns

	newID := uuid.New()
	now := toNanos(r.store.now())

	var s *domain.Session
	err := r.store.withRetry(ctx, "resolve_session", func() error {
		var err error
		s, err = scanSession(r.store.db.QueryRowContext(ctx, query, newID, chatbotID, visitorID, now, now))
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to resolve session: %w", err)
	}
	return s, s.ID == newID, nil
}

func (r *SessionRepository) Get(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM chat_sessions WHERE id = ?`

	s, err := scanSession(r.store.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, sessionErr(err, "failed to get session")
	}
	return s, nil
}

func (r *SessionRepository) Touch(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `
		UPDATE chat_sessions SET last_activity = max(last_activity, ?)
		WHERE id = ?
		RETURNING ` + sessionColumns

	now := toNanos(r.store.now())
	var s *domain.Session
	err := r.store.withRetry(ctx, "touch_session", func() error {
		var err error
		s, err = scanSession(r.store.db.QueryRowContext(ctx, query, now, id))
		return err
	})
	if err != nil {
		return nil, sessionErr(err, "failed to touch session")
	}
	return s, nil
}

func (r *SessionRepository) Close(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	query := `UPDATE chat_sessions SET active = 0 WHERE id = ? RETURNING ` + sessionColumns

	var s *domain.Session
	err := r.store.withRetry(ctx, "close_session", func() error {
		var err error
		s, err = scanSession(r.store.db.QueryRowContext(ctx, query, id))
		return err
	})
	if err != nil {
		return nil, sessionErr(err, "failed to close session")
	}
	return s, nil
}

func (r *SessionRepository) CloseIfIdle(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	query := `UPDATE chat_sessions SET active = 0 WHERE id = ? AND active = 1 AND last_activity <= ?`

	var affected int64
	err := r.store.withRetry(ctx, "close_idle_session", func() error {
		res, err := r.store.db.ExecContext(ctx, query, id, toNanos(cutoff))
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("failed to close idle session: %w", err)
	}
	return affected == 1, nil
}

func (r *SessionRepository) FindIdle(ctx context.Context, timeout time.Duration) ([]domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE active = 1 AND last_activity <= ?
		ORDER BY last_activity`

	rows, err := r.store.db.QueryContext(ctx, query, toNanos(r.store.now().Add(-timeout)))
	if err != nil {
		return nil, fmt.Errorf("failed to find idle sessions: %w", err)
	}
	return collectSessions(rows)
}

func (r *SessionRepository) ListByChatbot(ctx context.Context, chatbotID string, limit, offset int) ([]domain.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM chat_sessions
		WHERE chatbot_id = ?
		ORDER BY last_activity DESC
		LIMIT ? OFFSET ?`

	rows, err := r.store.db.QueryContext(ctx, query, chatbotID, limitOrAll(limit), max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return collectSessions(rows)
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		s                     domain.Session
		createdAt, lastActive int64
	)
	if err := row.Scan(&s.ID, &s.ChatbotID, &s.VisitorID, &createdAt, &lastActive, &s.Active); err != nil {
		return nil, err
	}
	s.CreatedAt = fromNanos(createdAt)
	s.LastActivity = fromNanos(lastActive)
	return &s, nil
}

func collectSessions(rows *sql.Rows) ([]domain.Session, error) {
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

func sessionErr(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrSessionNotFound
	}
	return fmt.Errorf("%s: %w", msg, err)
}
