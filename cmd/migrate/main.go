package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Rrens/chatbot-insights/internal/config"
	"github.com/Rrens/chatbot-insights/internal/logger"
	"github.com/Rrens/chatbot-insights/internal/repository/postgres"
)

func main() {
	down := flag.Bool("down", false, "roll back every applied migration")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	closer, err := logger.Setup(cfg.Env, cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logging: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	if cfg.Database.Driver != config.DriverPostgres {
		log.Info().Str("driver", cfg.Database.Driver).Msg("Schema is applied on open for this driver, nothing to migrate")
		return
	}

	log.Info().
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("source", cfg.Database.Migrations).
		Bool("down", *down).
		Msg("Running migrations")

	if *down {
		err = postgres.RollbackMigrations(cfg.Database.DSN(), cfg.Database.Migrations)
	} else {
		err = postgres.RunMigrations(cfg.Database.DSN(), cfg.Database.Migrations)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}
