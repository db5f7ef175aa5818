package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/ginzlabs/tg-ai-agent/internal/botclient"
	"github.com/ginzlabs/tg-ai-agent/internal/domain"
	"github.com/ginzlabs/tg-ai-agent/internal/store"
	"github.com/google/uuid"
)

// maxMessageChars bounds the transcript text sent to the chat; longer texts
// are truncated (or replaced by their summary).
const maxMessageChars = 1000

// WebhookConfig tunes the rendezvous flow.
type WebhookConfig struct {
	// SummaryTimeout bounds the summarization enrichment; on expiry the
	// transcript is delivered without a summary.
	SummaryTimeout time.Duration
	// SummaryTitle prefixes summarized deliveries.
	SummaryTitle string
	// FailureNotice is sent to the user when the provider reports an
	// error for their transcription.
	FailureNotice string
}

// WebhookService reconciles asynchronous provider callbacks with persisted
// records and delivers each result to its chat at most once. It is
// deliberately decoupled from the task manager that submitted the job: the
// rendezvous is keyed by the correlation identifiers the callback carries,
// not by any in-memory task id.
type WebhookService struct {
	records    store.STTRecordStore
	provider   TranscriptionProvider
	transport  ChatTransport
	summarizer Summarizer
	agent      AgentTrigger
	cfg        WebhookConfig
	logger     *slog.Logger
}

// NewWebhookService creates a WebhookService. summarizer and agent are
// optional; when nil the corresponding best-effort steps are skipped.
func NewWebhookService(
	records store.STTRecordStore,
	provider TranscriptionProvider,
	transport ChatTransport,
	summarizer Summarizer,
	agent AgentTrigger,
	cfg WebhookConfig,
	log *slog.Logger,
) *WebhookService {
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = 20 * time.Second
	}
	if cfg.SummaryTitle == "" {
		cfg.SummaryTitle = "Summary"
	}
	if cfg.FailureNotice == "" {
		cfg.FailureNotice = "Sorry, the transcription of your audio message failed."
	}
	if log == nil {
		log = slog.Default()
	}

	return &WebhookService{
		records:    records,
		provider:   provider,
		transport:  transport,
		summarizer: summarizer,
		agent:      agent,
		cfg:        cfg,
		logger:     log.With(slog.String("component", "webhook_service")),
	}
}

// TranscriptCallback carries the validated parameters of one provider
// callback: the correlation identifiers from the query string plus the job
// id and status from the body.
type TranscriptCallback struct {
	RecordID      uuid.UUID
	ChatID        int64
	DBThreadID    string
	MessageID     int64
	TempMessageID int64
	TranscriptID  string
	Status        string
}

// HandleTranscriptResult runs the rendezvous for one callback. Primary-path
// failures (record lookup, provider fetch, status persistence, result
// delivery) are returned; every other step is best-effort and only logged.
// The call is idempotent: a record already delivered short-circuits before
// any provider call is made.
func (s *WebhookService) HandleTranscriptResult(ctx context.Context, cb TranscriptCallback) error {
	log := s.logger.With(
		slog.String("record_id", cb.RecordID.String()),
		slog.String("transcript_id", cb.TranscriptID))

	delivered, err := s.records.IsDelivered(ctx, cb.RecordID)
	if err != nil {
		return fmt.Errorf("failed to check delivered flag: %w", err)
	}
	if delivered {
		log.Info("result already delivered, skipping webhook")
		return nil
	}

	switch cb.Status {
	case "completed":
		return s.handleCompleted(ctx, cb, log)
	case "error":
		return s.handleError(ctx, cb, log)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownWebhookStatus, cb.Status)
	}
}

func (s *WebhookService) handleCompleted(ctx context.Context, cb TranscriptCallback, log *slog.Logger) error {
	transcript, err := s.provider.FetchResult(ctx, cb.TranscriptID)
	if err != nil {
		return fmt.Errorf("failed to fetch transcript: %w", err)
	}

	now := time.Now().UTC()
	completedStatus := domain.STTStatusCompleted
	update := store.STTRecordUpdate{
		Status:           &completedStatus,
		Text:             &transcript.Text,
		DetectedLanguage: &transcript.LanguageCode,
		ModelUsed:        &transcript.SpeechModel,
		CompletedAt:      &now,
	}

	summary := s.summarize(ctx, transcript.Text, log)
	if summary != "" {
		update.Summary = &summary
	}

	if _, err := s.records.Update(ctx, cb.RecordID, update); err != nil {
		return fmt.Errorf("failed to persist transcript: %w", err)
	}

	if _, err := s.transport.SendReply(ctx, cb.ChatID, s.formatResult(transcript.Text, summary), cb.MessageID, "Markdown"); err != nil {
		return fmt.Errorf("failed to deliver transcript: %w", err)
	}

	s.deleteTempMessage(ctx, cb, log)

	claimed, err := s.records.MarkDelivered(ctx, cb.RecordID)
	if err != nil {
		log.Error("failed to mark record delivered", slog.String("error", err.Error()))
	} else if !claimed {
		log.Info("record was claimed by a concurrent delivery")
		return nil
	}

	s.triggerAgent(ctx, cb, transcript.Text, log)
	log.Info("transcript delivered")
	return nil
}

func (s *WebhookService) handleError(ctx context.Context, cb TranscriptCallback, log *slog.Logger) error {
	now := time.Now().UTC()
	errorStatus := domain.STTStatusError
	if _, err := s.records.Update(ctx, cb.RecordID, store.STTRecordUpdate{
		Status:      &errorStatus,
		CompletedAt: &now,
	}); err != nil {
		return fmt.Errorf("failed to persist error status: %w", err)
	}

	if _, err := s.transport.SendReply(ctx, cb.ChatID, s.cfg.FailureNotice, cb.MessageID, ""); err != nil {
		log.Error("failed to send failure notice", slog.String("error", err.Error()))
	}

	s.deleteTempMessage(ctx, cb, log)
	log.Warn("transcription failed at provider")
	return nil
}

// summarize runs the bounded enrichment step. Only transcripts longer than
// the message limit are summarized; any failure degrades to no summary.
func (s *WebhookService) summarize(ctx context.Context, text string, log *slog.Logger) string {
	if s.summarizer == nil || utf8.RuneCountInString(text) <= maxMessageChars {
		return ""
	}

	sumCtx, cancel := context.WithTimeout(ctx, s.cfg.SummaryTimeout)
	defer cancel()

	summary, err := s.summarizer.Summarize(sumCtx, text)
	if err != nil {
		log.Warn("summarization failed, delivering without summary",
			slog.String("error", err.Error()))
		return ""
	}
	return summary
}

// formatResult prefers the summary over the raw transcript and truncates to
// the message limit. The limit counts characters, not bytes, so multi-byte
// text is never cut mid-rune.
func (s *WebhookService) formatResult(text, summary string) string {
	body := text
	if summary != "" {
		body = summary
	}
	if utf8.RuneCountInString(body) > maxMessageChars {
		body = string([]rune(body)[:maxMessageChars]) + "..."
	}
	if summary != "" {
		return fmt.Sprintf("*%s*\n_%s_", s.cfg.SummaryTitle, body)
	}
	return fmt.Sprintf("_%s_", body)
}

func (s *WebhookService) deleteTempMessage(ctx context.Context, cb TranscriptCallback, log *slog.Logger) {
	if cb.TempMessageID == 0 {
		return
	}
	if err := s.transport.DeleteMessage(ctx, cb.ChatID, cb.TempMessageID); err != nil {
		log.Warn("failed to delete temp message",
			slog.Int64("temp_message_id", cb.TempMessageID),
			slog.String("error", err.Error()))
	}
}

// triggerAgent feeds the transcript into the conversational agent, only
// after a successful delivery.
func (s *WebhookService) triggerAgent(ctx context.Context, cb TranscriptCallback, text string, log *slog.Logger) {
	if s.agent == nil || text == "" {
		return
	}
	err := s.agent.ProcessMessage(ctx, botclient.ProcessMessageRequest{
		ChatID:     cb.ChatID,
		DBThreadID: cb.DBThreadID,
		Text:       text,
	})
	if err != nil {
		log.Warn("failed to trigger agent processing", slog.String("error", err.Error()))
	}
}
