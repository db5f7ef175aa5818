package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ginzlabs/tg-ai-agent/internal/api/shared"
	"github.com/ginzlabs/tg-ai-agent/internal/domain"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/assemblyai"
	"github.com/ginzlabs/tg-ai-agent/internal/service"
	"github.com/ginzlabs/tg-ai-agent/internal/store"
	"github.com/ginzlabs/tg-ai-agent/internal/task"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// STTManager is the slice of the STT service the handlers need.
type STTManager interface {
	Submit(ctx context.Context, req service.SubmitRequest) (*domain.STTRecord, error)
	GetTranscript(ctx context.Context, transcriptID string) (*domain.STTRecord, *assemblyai.Transcript, error)
	ListRecords(ctx context.Context, filter store.STTRecordFilter) ([]*domain.STTRecord, error)
}

// STTHandler serves transcription submission and lookup requests. Webhook
// submissions go through the task manager so the per-category concurrency
// ceiling applies to outbound provider jobs.
type STTHandler struct {
	stt      STTManager
	provider service.TranscriptionProvider
	tasks    TaskManager
}

// NewSTTHandler creates an STTHandler.
func NewSTTHandler(stt STTManager, provider service.TranscriptionProvider, tasks TaskManager) *STTHandler {
	return &STTHandler{stt: stt, provider: provider, tasks: tasks}
}

// SubmitSTTRequest is the body of POST /api/v1/stt.
type SubmitSTTRequest struct {
	AudioInput    string `json:"audio_input"   validate:"required,min=1"`
	ChatID        int64  `json:"chat_id"       validate:"required"`
	DBThreadID    string `json:"db_thread_id"`
	MessageID     int64  `json:"message_id"`
	TempMsgID     int64  `json:"temp_msg_id"`
	SpeakerLabels bool   `json:"speaker_labels"`
	Model         string `json:"model"`
}

// SubmitSTT handles POST /api/v1/stt requests. The submission runs as a
// transcription-category task; the transcript itself arrives later through
// the provider webhook.
func (h *STTHandler) SubmitSTT(w http.ResponseWriter, r *http.Request) {
	var req SubmitSTTRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	work := func(ctx context.Context) (any, error) {
		rec, err := h.stt.Submit(ctx, service.SubmitRequest{
			AudioURL:      req.AudioInput,
			ChatID:        req.ChatID,
			DBThreadID:    req.DBThreadID,
			MessageID:     req.MessageID,
			TempMessageID: req.TempMsgID,
			SpeakerLabels: req.SpeakerLabels,
			Model:         req.Model,
		})
		if err != nil {
			return nil, err
		}
		return rec, nil
	}

	h.respondWithNewTask(w, r, work, task.CategoryTranscription)
}

// TranscribeRequest is the body of POST /api/v1/transcribe.
type TranscribeRequest struct {
	AudioURL      string `json:"audio_url"     validate:"required,min=1"`
	SpeakerLabels bool   `json:"speaker_labels"`
	Model         string `json:"model"`
	LanguageCode  string `json:"language_code"`
}

// Transcribe handles POST /api/v1/transcribe requests: a synchronous
// provider transcription (submit then poll) run as a transcription task,
// with the transcript stored on the task result.
func (h *STTHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	var req TranscribeRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: "+err.Error())
		return
	}

	work := func(ctx context.Context) (any, error) {
		transcript, err := h.provider.Transcribe(ctx, req.AudioURL, assemblyai.SubmitOptions{
			SpeakerLabels:     req.SpeakerLabels,
			Model:             req.Model,
			LanguageDetection: req.LanguageCode == "",
			LanguageCode:      req.LanguageCode,
		})
		if err != nil {
			return nil, err
		}
		return transcript, nil
	}

	h.respondWithNewTask(w, r, work, task.CategoryTranscription)
}

// respondWithNewTask enqueues the work and answers 202 with the task's
// initial snapshot, so callers learn the task id and queue position.
func (h *STTHandler) respondWithNewTask(w http.ResponseWriter, r *http.Request, work task.WorkFunc, category task.Category) {
	id, err := h.tasks.AddTask(work, category, uuid.New().String())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to enqueue task", err)
		return
	}

	_, snapshot := h.tasks.GetTaskStatus(id)
	shared.RespondWithJSON(w, r, http.StatusAccepted, snapshot)
}

// TranscriptResponse pairs the persisted record with a live provider view
// when the job is still in flight.
type TranscriptResponse struct {
	Record *domain.STTRecord      `json:"record"`
	Live   *assemblyai.Transcript `json:"live,omitempty"`
}

// GetTranscript handles GET /api/v1/stt/{transcript_id} requests.
func (h *STTHandler) GetTranscript(w http.ResponseWriter, r *http.Request) {
	transcriptID := chi.URLParam(r, "transcript_id")

	rec, live, err := h.stt.GetTranscript(r.Context(), transcriptID)
	if err != nil {
		if store.IsNotFoundError(err) {
			shared.RespondWithError(w, r, http.StatusNotFound, "Transcript not found")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to fetch transcript", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TranscriptResponse{Record: rec, Live: live})
}

// ListRecordsResponse is the body of GET /api/v1/stt-records.
type ListRecordsResponse struct {
	Records []*domain.STTRecord `json:"records"`
	Count   int                 `json:"count"`
}

// ListRecords handles GET /api/v1/stt-records requests with optional
// chat_id, status and limit filters.
func (h *STTHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	filter, err := recordFilterFromQuery(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.stt.ListRecords(r.Context(), filter)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Failed to list records", err)
		return
	}
	if records == nil {
		records = []*domain.STTRecord{}
	}

	shared.RespondWithJSON(w, r, http.StatusOK, ListRecordsResponse{Records: records, Count: len(records)})
}

func recordFilterFromQuery(r *http.Request) (store.STTRecordFilter, error) {
	var filter store.STTRecordFilter
	q := r.URL.Query()

	if raw := q.Get("chat_id"); raw != "" {
		chatID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, errInvalidQueryParam("chat_id")
		}
		filter.ChatID = chatID
	}
	if raw := q.Get("status"); raw != "" {
		filter.Status = domain.STTStatus(raw)
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, errInvalidQueryParam("limit")
		}
		filter.Limit = limit
	}
	return filter, nil
}
