package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/ginzlabs/tg-ai-agent/internal/botclient"
	"github.com/ginzlabs/tg-ai-agent/internal/config"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/assemblyai"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/gemini"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/postgres"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/reportgen"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/telegram"
	"github.com/ginzlabs/tg-ai-agent/internal/service"
	"github.com/ginzlabs/tg-ai-agent/internal/store"
	"github.com/ginzlabs/tg-ai-agent/internal/task"
)

// application holds the backend's shared dependencies so that setup and
// shutdown stay in one place.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	sttStore store.STTRecordStore

	provider  *assemblyai.Client
	transport *telegram.Client
	llm       *gemini.Client
	botClient *botclient.Client

	taskManager *task.Manager

	sttService     *service.STTService
	webhookService *service.WebhookService
	reportService  *service.ReportService
}

// newApplication initializes all backend dependencies. The task manager is
// started here; Run's shutdown path stops it.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		db:     db,
	}

	app.sttStore = postgres.NewPostgresSTTRecordStore(db, logger)

	app.provider = assemblyai.NewClient(assemblyai.Config{
		APIKey:         cfg.AssemblyAI.APIKey,
		BaseURL:        cfg.AssemblyAI.BaseURL,
		WebhookBaseURL: cfg.AssemblyAI.WebhookBaseURL,
		WebhookSecret:  cfg.Auth.WebhookSecret,
		DefaultModel:   cfg.AssemblyAI.DefaultModel,
	}, nil, logger)

	app.transport = telegram.NewClient(telegram.Config{BotToken: cfg.Telegram.BotToken}, nil, logger)
	app.botClient = botclient.NewClient(botclient.Config{
		BaseURL:     cfg.Bot.BaseURL,
		SecretToken: cfg.Bot.SecretToken,
	}, nil, logger)

	var err error
	app.llm, err = gemini.NewClient(ctx, gemini.Config{
		APIKey:    cfg.Gemini.APIKey,
		ModelName: cfg.Gemini.ModelName,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}

	managerCfg := task.DefaultManagerConfig()
	managerCfg.ConcurrencyLimits = map[task.Category]int{
		task.CategoryTranscription: cfg.Tasks.TranscriptionLimit,
		task.CategoryReport:        cfg.Tasks.ReportLimit,
		task.CategoryDefault:       cfg.Tasks.DefaultLimit,
	}
	managerCfg.Retention = time.Duration(cfg.Tasks.RetentionMinutes) * time.Minute
	app.taskManager, err = task.NewManager(managerCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create task manager: %w", err)
	}
	if err := app.taskManager.Start(); err != nil {
		return nil, fmt.Errorf("failed to start task manager: %w", err)
	}

	app.sttService = service.NewSTTService(app.sttStore, app.provider, logger)
	app.webhookService = service.NewWebhookService(
		app.sttStore,
		app.provider,
		app.transport,
		app.llm,
		app.botClient,
		service.WebhookConfig{},
		logger,
	)
	app.reportService = service.NewReportService(
		reportgen.NewGenerator(app.llm, logger),
		app.transport,
		"",
		logger,
	)

	logger.Info("application initialized")
	return app, nil
}

// Run starts the HTTP server and blocks until shutdown.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup stops background work and closes shared resources. CancelAll
// inside Stop fails queued tasks and cancels running ones before the
// manager's loops exit.
func (app *application) cleanup() {
	if app.taskManager != nil {
		app.taskManager.Stop()
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", "error", err)
		}
	}
	app.logger.Info("application shutdown completed")
}
