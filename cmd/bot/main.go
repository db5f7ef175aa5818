// Package main implements the bot service: Telegram update intake, the
// per-user single-flight policy for agent turns, and the internal endpoints
// the backend calls to reach users.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/ginzlabs/tg-ai-agent/internal/config"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/logger"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("bot failed: %v", err)
	}
}

func run() error {
	cfg, err := config.LoadBot()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger, err := logger.Setup(cfg.Server.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to set up logger: %w", err)
	}
	appLogger.Info("bot configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"queuing_enabled", cfg.Queue.Enabled)

	ctx := context.Background()
	app, err := newBotApplication(ctx, cfg, appLogger)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return app.Run(ctx)
}
