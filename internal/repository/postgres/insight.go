package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const insightColumns = `id, session_id, chatbot_id, name, email, problem_summary, bot_solved, human_needed, emotion, created_at`

// InsightRepository implements domain.InsightRepository
type InsightRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewInsightRepository creates a new insight repository
func NewInsightRepository(pool *pgxpool.Pool) *InsightRepository {
	return &InsightRepository{pool: pool, now: time.Now}
}

func (r *InsightRepository) Create(ctx context.Context, insight *domain.Insight) error {
	if insight.ID == uuid.Nil {
		insight.ID = uuid.New()
	}
	if insight.CreatedAt.IsZero() {
		insight.CreatedAt = r.now().UTC()
	}

	query := `
		INSERT INTO insights (` + insightColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.pool.Exec(ctx, query,
		insight.ID,
		insight.SessionID,
		insight.ChatbotID,
		insight.Name,
		insight.Email,
		insight.ProblemSummary,
		insight.BotSolved.Ptr(),
		insight.HumanNeeded.Ptr(),
		string(insight.Emotion),
		insight.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrInsightExists
		}
		return fmt.Errorf("failed to create insight: %w", err)
	}
	return nil
}

func (r *InsightRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*domain.Insight, error) {
	query := `SELECT ` + insightColumns + ` FROM insights WHERE session_id = $1`

	in, err := scanInsight(r.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
		WHERE ($1 = '' OR chatbot_id = $1)
		ORDER BY created_at, id
		LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, filter.ChatbotID, limitOrAll(filter.Limit), max(filter.Offset, 0))
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

func scanInsight(row pgx.Row) (*domain.Insight, error) {
	var (
		in          domain.Insight
		botSolved   *bool
		humanNeeded *bool
		emotion     string
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
		&in.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	in.BotSolved = domain.TriStateFromPtr(botSolved)
	in.HumanNeeded = domain.TriStateFromPtr(humanNeeded)
	in.Emotion = domain.ParseEmotion(emotion)
	return &in, nil
}
