package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ginzlabs/tg-ai-agent/internal/api/shared"
	"github.com/ginzlabs/tg-ai-agent/internal/service"
	"github.com/google/uuid"
)

// WebhookProcessor completes a transcription job from a provider callback.
type WebhookProcessor interface {
	HandleTranscriptResult(ctx context.Context, cb service.TranscriptCallback) error
}

// WebhookHandler receives provider callbacks for finished transcription
// jobs. Authentication (the shared-secret header) lives in middleware; this
// handler validates correlation parameters and hands off to the rendezvous.
type WebhookHandler struct {
	processor WebhookProcessor
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(processor WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// webhookBody is the provider's callback payload. AssemblyAI posts
// transcript_id; job_id is accepted as an alias.
type webhookBody struct {
	TranscriptID string `json:"transcript_id"`
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
}

// WebhookAck is the JSON acknowledgement returned to the provider.
type WebhookAck struct {
	Success bool `json:"success"`
}

// TranscriptWebhook handles POST /webhooks/assemblyai requests. Correlation
// identifiers ride on query parameters that were embedded in the callback
// URL at submission time. Malformed correlation is a 400; failures past
// validation return 500 so the provider retries, which the delivered-flag
// check keeps idempotent.
func (h *WebhookHandler) TranscriptWebhook(w http.ResponseWriter, r *http.Request) {
	cb, err := callbackFromRequest(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.processor.HandleTranscriptResult(r.Context(), cb); err != nil {
		if errors.Is(err, service.ErrUnknownWebhookStatus) {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Unknown webhook status: "+cb.Status)
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to process webhook", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, WebhookAck{Success: true})
}

// callbackFromRequest extracts and validates the correlation identifiers
// and the provider payload.
func callbackFromRequest(r *http.Request) (service.TranscriptCallback, error) {
	var cb service.TranscriptCallback
	q := r.URL.Query()

	rawID := q.Get("t_id")
	if rawID == "" {
		return cb, fmt.Errorf("%w: t_id", service.ErrMissingCorrelation)
	}
	recordID, err := uuid.Parse(rawID)
	if err != nil {
		return cb, errInvalidQueryParam("t_id")
	}

	rawChat := q.Get("chat_id")
	if rawChat == "" {
		return cb, fmt.Errorf("%w: chat_id", service.ErrMissingCorrelation)
	}
	chatID, err := strconv.ParseInt(rawChat, 10, 64)
	if err != nil {
		return cb, errInvalidQueryParam("chat_id")
	}

	messageID, err := optionalInt64(q.Get("message_id"))
	if err != nil {
		return cb, errInvalidQueryParam("message_id")
	}
	tempMsgID, err := optionalInt64(q.Get("temp_msg_id"))
	if err != nil {
		return cb, errInvalidQueryParam("temp_msg_id")
	}

	var body webhookBody
	if err := shared.DecodeJSON(r, &body); err != nil {
		return cb, errors.New("invalid webhook payload")
	}
	transcriptID := body.TranscriptID
	if transcriptID == "" {
		transcriptID = body.JobID
	}
	if transcriptID == "" || body.Status == "" {
		return cb, errors.New("webhook payload missing transcript id or status")
	}

	return service.TranscriptCallback{
		RecordID:      recordID,
		ChatID:        chatID,
		DBThreadID:    q.Get("db_thread_id"),
		MessageID:     messageID,
		TempMessageID: tempMsgID,
		TranscriptID:  transcriptID,
		Status:        body.Status,
	}, nil
}

func optionalInt64(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
