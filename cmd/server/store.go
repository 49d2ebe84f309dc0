package main

import (
	"context"
	"fmt"

	"github.com/Rrens/chatbot-insights/internal/config"
	"github.com/Rrens/chatbot-insights/internal/domain"
	"github.com/Rrens/chatbot-insights/internal/repository/memory"
	"github.com/Rrens/chatbot-insights/internal/repository/postgres"
	"github.com/Rrens/chatbot-insights/internal/repository/sqlite"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// store bundles the repositories of one backend with its lifecycle.
type store struct {
	sessions domain.SessionRepository
	messages domain.MessageRepository
	insights domain.InsightRepository
	pinger   pinger
	close    func()
}

func (s *store) Close() {
	if s.close != nil {
		s.close()
	}
}

type alwaysReady struct{}

func (alwaysReady) Ping(context.Context) error { return nil }

func openStore(ctx context.Context, cfg config.DatabaseConfig) (*store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if err := postgres.RunMigrations(cfg.DSN(), cfg.Migrations); err != nil {
			return nil, err
		}
		db, err := postgres.NewDB(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &store{
			sessions: postgres.NewSessionRepository(db.Pool),
			messages: postgres.NewMessageRepository(db.Pool),
			insights: postgres.NewInsightRepository(db.Pool),
			pinger:   db,
			close:    db.Close,
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &store{
			sessions: db.Sessions(),
			messages: db.Messages(),
			insights: db.Insights(),
			pinger:   db,
			close:    func() { _ = db.Close() },
		}, nil

	case config.DriverMemory:
		return &store{
			sessions: memory.NewSessionRepository(),
			messages: memory.NewMessageRepository(),
			insights: memory.NewInsightRepository(),
			pinger:   alwaysReady{},
		}, nil
	}
	return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
}
