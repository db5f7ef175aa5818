package main

import (
	"net/http"

	"github.com/ginzlabs/tg-ai-agent/internal/api"
	apimiddleware "github.com/ginzlabs/tg-ai-agent/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// setupRouter wires all backend routes. The /api/v1 surface is guarded by
// the API key; the provider webhook has its own shared secret; health is
// open for probes.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	taskHandler := api.NewTaskHandler(app.taskManager)
	sttHandler := api.NewSTTHandler(app.sttService, app.provider, app.taskManager)
	reportHandler := api.NewReportHandler(app.reportService, app.taskManager)
	webhookHandler := api.NewWebhookHandler(app.webhookService)
	healthHandler := api.NewHealthHandler(app.db)

	apiAuth := apimiddleware.NewSecretAuth("X-API-Key", app.config.Auth.APIKey)
	webhookAuth := apimiddleware.NewSecretAuth("X-Webhook-Secret", app.config.Auth.WebhookSecret)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Health)

		r.Group(func(r chi.Router) {
			r.Use(apiAuth.Require)

			r.Post("/stt", sttHandler.SubmitSTT)
			r.Post("/transcribe", sttHandler.Transcribe)
			r.Get("/stt/{transcript_id}", sttHandler.GetTranscript)
			r.Get("/stt-records", sttHandler.ListRecords)

			r.Post("/generate-market-report", reportHandler.GenerateReport)

			r.Get("/task/{id}", taskHandler.GetTask)
			r.Post("/task/{id}/cancel", taskHandler.CancelTask)
			r.Get("/queue-status", taskHandler.QueueStatus)
		})
	})

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(webhookAuth.Require)
		r.Post("/assemblyai", webhookHandler.TranscriptWebhook)
	})

	return r
}
