package main

import (
	"net/http"

	apimiddleware "github.com/ginzlabs/tg-ai-agent/internal/api/middleware"
	"github.com/ginzlabs/tg-ai-agent/internal/api/shared"
	"github.com/ginzlabs/tg-ai-agent/internal/botapi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// setupRouter wires the bot's routes. The Telegram webhook authenticates
// with the secret token Telegram echoes on each delivery; the internal
// endpoints use the backend's shared secret.
func (app *botApplication) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apimiddleware.TraceMiddleware)

	handler := botapi.NewHandler(app.messages, app.logger)

	telegramAuth := apimiddleware.NewSecretAuth(
		"X-Telegram-Bot-Api-Secret-Token", app.config.Telegram.WebhookSecret)
	internalAuth := apimiddleware.NewSecretAuth(
		"X-Secret-Token", app.config.Auth.SecretToken)

	r.Group(func(r chi.Router) {
		r.Use(telegramAuth.Require)
		r.Post("/webhook", handler.TelegramWebhook)
	})

	r.Group(func(r chi.Router) {
		r.Use(internalAuth.Require)
		r.Post("/process_message", handler.ProcessMessage)
		r.Post("/send_message_to_user", handler.SendMessageToUser)
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		shared.RespondWithJSON(w, req, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
