package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ginzlabs/tg-ai-agent/internal/config"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/gemini"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/telegram"
	"github.com/ginzlabs/tg-ai-agent/internal/serverclient"
	"github.com/ginzlabs/tg-ai-agent/internal/service"
	"github.com/ginzlabs/tg-ai-agent/internal/singleflight"
)

// botApplication holds the bot service's shared dependencies.
type botApplication struct {
	config *config.BotConfig
	logger *slog.Logger

	transport *telegram.Client
	agent     *gemini.Client
	relay     *serverclient.Client

	flights  *singleflight.Manager
	messages *service.MessageService
}

// newBotApplication initializes all bot dependencies.
func newBotApplication(ctx context.Context, cfg *config.BotConfig, logger *slog.Logger) (*botApplication, error) {
	app := &botApplication{
		config: cfg,
		logger: logger,
	}

	app.transport = telegram.NewClient(telegram.Config{BotToken: cfg.Telegram.BotToken}, nil, logger)
	app.relay = serverclient.NewClient(serverclient.Config{
		BaseURL:     cfg.Backend.BaseURL,
		SecretToken: cfg.Backend.APIKey,
	}, nil, logger)

	var err error
	app.agent, err = gemini.NewClient(ctx, gemini.Config{
		APIKey:    cfg.Gemini.APIKey,
		ModelName: cfg.Gemini.ModelName,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	app.flights = singleflight.NewManager(cfg.Queue.Enabled, logger)
	app.messages = service.NewMessageService(
		app.transport,
		app.agent,
		app.relay,
		app.flights,
		templatesFromConfig(cfg.Messages),
		logger,
	)

	logger.Info("bot application initialized")
	return app, nil
}

// templatesFromConfig overlays configured message texts on the defaults.
func templatesFromConfig(m config.MessageConfig) service.MessageTemplates {
	t := service.DefaultMessageTemplates()
	if m.Processing != "" {
		t.Processing = m.Processing
	}
	if m.ProcessingAudio != "" {
		t.ProcessingAudio = m.ProcessingAudio
	}
	if m.AlreadyRunning != "" {
		t.AlreadyRunning = m.AlreadyRunning
	}
	if m.CancelledByUser != "" {
		t.CancelledByUser = m.CancelledByUser
	}
	if m.Rejected != "" {
		t.Rejected = m.Rejected
	}
	if m.AgentFailure != "" {
		t.AgentFailure = m.AgentFailure
	}
	if m.STTFailure != "" {
		t.STTFailure = m.STTFailure
	}
	if m.CancelButton != "" {
		t.CancelButton = m.CancelButton
	}
	return t
}

// Run starts the HTTP server and blocks until shutdown. On shutdown every
// in-flight agent turn is cancelled before the process exits.
func (app *botApplication) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.setupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverCtx, cancelServer := context.WithCancel(ctx)
	defer cancelServer()

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		app.logger.Info("starting bot server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error("server failed", "error", err)
			cancelServer()
		}
	}()

	select {
	case <-shutdownCh:
		app.logger.Info("shutdown signal received")
	case <-serverCtx.Done():
		app.logger.Info("server context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("server shutdown failed", "error", err)
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	app.flights.CancelAll()
	app.logger.Info("bot shutdown completed")
	return nil
}
