// Package botapi contains the bot service's HTTP handlers: the Telegram
// update webhook and the internal endpoints the backend calls.
package botapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ginzlabs/tg-ai-agent/internal/api/shared"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/telegram"
	"github.com/ginzlabs/tg-ai-agent/internal/service"
)

// MessageProcessor is the slice of the message service the handlers need.
type MessageProcessor interface {
	HandleUpdate(ctx context.Context, update *telegram.Update) error
	ProcessText(ctx context.Context, chatID int64, dbThreadID, text string, messageID int64) error
	SendToUser(ctx context.Context, req service.SendToUserRequest) error
}

// Handler serves the bot's HTTP surface.
type Handler struct {
	messages MessageProcessor
	logger   *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(messages MessageProcessor, log *slog.Logger) *Handler {
	return &Handler{
		messages: messages,
		logger:   log.With(slog.String("component", "bot_api")),
	}
}

// ack is the body returned to internal callers.
type ack struct {
	Success bool `json:"success"`
}

// TelegramWebhook handles POST /webhook requests from Telegram. Processing
// errors are logged but acknowledged with 200, since a non-2xx answer makes
// Telegram redeliver the same update.
func (h *Handler) TelegramWebhook(w http.ResponseWriter, r *http.Request) {
	var update telegram.Update
	if err := shared.DecodeJSON(r, &update); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid update payload")
		return
	}

	if err := h.messages.HandleUpdate(r.Context(), &update); err != nil {
		h.logger.Error("failed to handle telegram update",
			slog.Int64("update_id", update.UpdateID),
			slog.String("error", err.Error()))
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ack{Success: true})
}

// ProcessMessageRequest is the body of POST /process_message, used by the
// backend to feed text (e.g. a fresh transcript) into the agent.
type ProcessMessageRequest struct {
	ChatID     int64  `json:"chat_id"      validate:"required"`
	DBThreadID string `json:"db_thread_id"`
	Text       string `json:"text"         validate:"required,min=1"`
	MessageID  *int64 `json:"message_id"`
}

// ProcessMessage handles POST /process_message requests.
func (h *Handler) ProcessMessage(w http.ResponseWriter, r *http.Request) {
	var req ProcessMessageRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	var messageID int64
	if req.MessageID != nil {
		messageID = *req.MessageID
	}

	if err := h.messages.ProcessText(r.Context(), req.ChatID, req.DBThreadID, req.Text, messageID); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to process message", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ack{Success: true})
}

// SendMessageRequest is the body of POST /send_message_to_user.
type SendMessageRequest struct {
	ChatID    int64  `json:"chat_id"     validate:"required"`
	Message   string `json:"message"`
	MessageID int64  `json:"message_id"`
	TempMsgID int64  `json:"temp_msg_id"`
	FileURL   string `json:"file_url"`
	FileName  string `json:"file_name"`
	FileType  string `json:"file_type"`
}

// SendMessageToUser handles POST /send_message_to_user requests: dispatch
// a text or file message to a chat and clean up any placeholder message.
func (h *Handler) SendMessageToUser(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}
	if req.Message == "" && req.FileURL == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Either message or file_url is required")
		return
	}

	err := h.messages.SendToUser(r.Context(), service.SendToUserRequest{
		ChatID:    req.ChatID,
		Message:   req.Message,
		MessageID: req.MessageID,
		TempMsgID: req.TempMsgID,
		FileURL:   req.FileURL,
		FileName:  req.FileName,
		FileType:  req.FileType,
	})
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to send message", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ack{Success: true})
}
