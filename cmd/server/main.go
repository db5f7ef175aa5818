// Package main implements the backend service: the task manager that
// governs transcription and report work, the STT record store, and the
// provider webhook that completes asynchronous transcription jobs.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/ginzlabs/tg-ai-agent/internal/config"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/logger"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/postgres"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	appLogger.Info("backend configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel)

	db, err := setupDatabase(cfg, appLogger)
	if err != nil {
		return err
	}

	if os.Getenv("TGAGENT_SKIP_MIGRATIONS") != "true" {
		if err := postgres.RunMigrations(db, appLogger); err != nil {
			return err
		}
	}

	ctx := context.Background()
	app, err := newApplication(ctx, cfg, appLogger, db)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}
