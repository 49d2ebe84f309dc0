package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/google/uuid"
)

const insightColumns = `id, session_id, chatbot_id, name, email, problem_summary, bot_solved, human_needed, emotion, created_at`

// InsightRepository implements domain.InsightRepository
type InsightRepository struct {
	store *Store
}

func (r *InsightRepository) Create(ctx context.Context, insight *domain.Insight) error {
	if insight.ID == uuid.Nil {
		insight.ID = uuid.New()
	}
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = r.store.now().UTC()
	}

	query := `INSERT INTO insights (` + insightColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	err := r.store.withRetry(ctx, "create_insight", func() error {
		_, err := r.store.db.ExecContext(ctx, query,
			insight.ID,
			insight.SessionID,
			insight.ChatbotID,
			insight.Name,
			insight.Email,
			insight.ProblemSummary,
			nullBool(insight.BotSolved),
			nullBool(insight.HumanNeeded),
			string(insight.Emotion),
			toNanos(insight.CreatedAt),
		)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrInsightExists
		}
		return fmt.Errorf("failed to create insight: %w", err)
	}
	return nil
}

func (r *InsightRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*domain.Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM insights WHERE session_id = ?`

	in, err := scanInsight(r.store.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrInsightNotFound
		}
		return nil, fmt.Errorf("failed to get insight: %w", err)
	}
	return in, nil
}

func (r *InsightRepository) List(ctx context.Context, filter domain.InsightFilter) ([]domain.Insight, error) {
	query := `
		SELECT ` + insightColumns + `
		FROM insights
		WHERE (?1 = '' OR chatbot_id = ?1)
		ORDER BY created_at, rowid
		LIMIT ?2 OFFSET ?3`

	rows, err := r.store.db.QueryContext(ctx, query, filter.ChatbotID, limitOrAll(filter.Limit), max(filter.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to list insights: %w", err)
	}
	defer rows.Close()

	insights := []domain.Insight{}
	for rows.Next() {
		in, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		insights = append(insights, *in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate insights: %w", err)
	}
	return insights, nil
}

func scanInsight(row rowScanner) (*domain.Insight, error) {
	var (
		in                     domain.Insight
		botSolved, humanNeeded sql.NullBool
		emotion                string
		createdAt              int64
	)
	err := row.Scan(
		&in.ID,
		&in.SessionID,
		&in.ChatbotID,
		&in.Name,
		&in.Email,
		&in.ProblemSummary,
		&botSolved,
		&humanNeeded,
		&emotion,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	in.BotSolved = triState(botSolved)
	in.HumanNeeded = triState(humanNeeded)
	in.Emotion = domain.ParseEmotion(emotion)
	in.CreatedAt = fromNanos(createdAt)
	return &in, nil
}

func nullBool(t domain.TriState) sql.NullBool {
	if p := t.Ptr(); p != nil {
		return sql.NullBool{Bool: *p, Valid: true}
	}
	return sql.NullBool{}
}

func triState(b sql.NullBool) domain.TriState {
	if !b.Valid {
		return domain.Unknown
	}
	return domain.TriStateOf(b.Bool)
}
