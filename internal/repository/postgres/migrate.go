package postgres

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/rs/zerolog/log"
)

// RunMigrations brings the schema up to the latest version in sourceURL.
func RunMigrations(dsn string, sourceURL string) error {
	return withMigrate(dsn, sourceURL, func(m *migrate.Migrate) error {
		if err := m.Up(); err != nil {
			if errors.Is(err, migrate.ErrNoChange) {
				log.Info().Msg("Database migration: no changes")
				return nil
			}
			return fmt.Errorf("failed to run migrate up: %w", err)
		}
		return nil
	})
}

// RollbackMigrations reverts every applied migration.
func RollbackMigrations(dsn string, sourceURL string) error {
	return withMigrate(dsn, sourceURL, func(m *migrate.Migrate) error {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("failed to run migrate down: %w", err)
		}
		return nil
	})
}

func withMigrate(dsn, sourceURL string, fn func(*migrate.Migrate) error) error {
	m, err := migrate.New(sourceURL, dsn)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	if err := fn(m); err != nil {
		return err
	}

	version, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		log.Info().Str("source", sourceURL).Msg("Database migration: schema empty")
	case err != nil:
		return fmt.Errorf("failed to read schema version: %w", err)
	case dirty:
		return fmt.Errorf("schema version %d is dirty, fix it manually before retrying", version)
	default:
		log.Info().Str("source", sourceURL).Uint("version", version).Msg("Database migration: success")
	}
	return nil
}
