// Package sqlite stores sessions, messages and insights in a single SQLite
// file. Timestamps are kept as INTEGER unix nanoseconds.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id TEXT PRIMARY KEY,
	chatbot_id TEXT NOT NULL,
	visitor_id TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	last_activity INTEGER NOT NULL,
	active INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_chat_sessions_active_pair
	ON chat_sessions(chatbot_id, visitor_id) WHERE active = 1;
CREATE INDEX IF NOT EXISTS idx_chat_sessions_idle
	ON chat_sessions(last_activity) WHERE active = 1;

CREATE TABLE IF NOT EXISTS chat_messages (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT NOT NULL UNIQUE,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
	content TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chat_messages_session
	ON chat_messages(session_id, created_at, seq);

CREATE TABLE IF NOT EXISTS insights (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL UNIQUE,
	chatbot_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	problem_summary TEXT NOT NULL DEFAULT '',
	bot_solved INTEGER,
	human_needed INTEGER,
	emotion TEXT NOT NULL DEFAULT 'neutral',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_insights_chatbot ON insights(chatbot_id, created_at);
`

const (
	busyRetries = 5
	busyBackoff = 20 * time.Millisecond
)

// Store owns the SQLite handle shared by the repositories.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file if needed and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Ping verifies database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Sessions returns the session repository backed by this store.
func (s *Store) Sessions() *SessionRepository {
	return &SessionRepository{store: s}
}

// Messages returns the message repository backed by this store.
func (s *Store) Messages() *MessageRepository {
	return &MessageRepository{store: s}
}

// Insights returns the insight repository backed by this store.
func (s *Store) Insights() *InsightRepository {
	return &InsightRepository{store: s}
}

// withRetry reruns fn while SQLite reports lock contention.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; attempt <= busyRetries; attempt++ {
		if err = fn(); err == nil || !isConflict(err) {
			return err
		}
		log.Debug().Err(err).Str("op", op).Int("attempt", attempt+1).Msg("SQLite busy, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(busyBackoff * time.Duration(attempt+1)):
		}
	}
	return err
}

func isConflict(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
