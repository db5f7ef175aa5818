package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ginzlabs/tg-ai-agent/internal/domain"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/assemblyai"
	"github.com/ginzlabs/tg-ai-agent/internal/store"
)

// STTService creates transcription records and submits provider jobs with
// the correlation identifiers the webhook rendezvous needs later.
type STTService struct {
	records  store.STTRecordStore
	provider TranscriptionProvider
	logger   *slog.Logger
}

// NewSTTService creates an STTService.
func NewSTTService(records store.STTRecordStore, provider TranscriptionProvider, log *slog.Logger) *STTService {
	if log == nil {
		log = slog.Default()
	}
	return &STTService{
		records:  records,
		provider: provider,
		logger:   log.With(slog.String("component", "stt_service")),
	}
}

// SubmitRequest describes one audio submission.
type SubmitRequest struct {
	AudioURL      string
	ChatID        int64
	DBThreadID    string
	MessageID     int64
	TempMessageID int64
	SpeakerLabels bool
	Model         string
}

// Submit creates the record first, then submits the provider job with the
// record's id embedded in the callback URL. The record exists before the
// provider can possibly call back, so the rendezvous always finds it.
func (s *STTService) Submit(ctx context.Context, req SubmitRequest) (*domain.STTRecord, error) {
	rec, err := domain.NewSTTRecord(req.ChatID, req.DBThreadID, req.MessageID, req.TempMessageID, req.AudioURL)
	if err != nil {
		return nil, err
	}

	if err := s.records.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create stt record: %w", err)
	}

	transcriptID, err := s.provider.SubmitJob(ctx, req.AudioURL,
		assemblyai.SubmitOptions{
			SpeakerLabels:     req.SpeakerLabels,
			Model:             req.Model,
			LanguageDetection: true,
		},
		assemblyai.Correlation{
			RecordID:      rec.ID.String(),
			ChatID:        req.ChatID,
			DBThreadID:    req.DBThreadID,
			MessageID:     req.MessageID,
			TempMessageID: req.TempMessageID,
		})
	if err != nil {
		now := time.Now().UTC()
		errorStatus := domain.STTStatusError
		if _, uerr := s.records.Update(ctx, rec.ID, store.STTRecordUpdate{
			Status:      &errorStatus,
			CompletedAt: &now,
		}); uerr != nil {
			s.logger.Error("failed to mark record failed after submit error",
				slog.String("record_id", rec.ID.String()),
				slog.String("error", uerr.Error()))
		}
		return nil, fmt.Errorf("failed to submit transcription job: %w", err)
	}

	updated, err := s.records.Update(ctx, rec.ID, store.STTRecordUpdate{TranscriptID: &transcriptID})
	if err != nil {
		// The job is running; the webhook can still correlate via t_id.
		s.logger.Error("failed to persist transcript id",
			slog.String("record_id", rec.ID.String()),
			slog.String("error", err.Error()))
		rec.TranscriptID = transcriptID
		return rec, nil
	}

	s.logger.Info("transcription submitted",
		slog.String("record_id", rec.ID.String()),
		slog.String("transcript_id", transcriptID))
	return updated, nil
}

// GetTranscript returns the stored record for a provider job id; if the
// record is still processing it falls back to a live provider lookup so
// operators can see intermediate provider state.
func (s *STTService) GetTranscript(ctx context.Context, transcriptID string) (*domain.STTRecord, *assemblyai.Transcript, error) {
	rec, err := s.records.GetByTranscriptID(ctx, transcriptID)
	if err != nil {
		return nil, nil, err
	}
	if rec.Status != domain.STTStatusProcessing {
		return rec, nil, nil
	}

	live, err := s.provider.FetchResult(ctx, transcriptID)
	if err != nil {
		s.logger.Warn("live transcript lookup failed",
			slog.String("transcript_id", transcriptID),
			slog.String("error", err.Error()))
		return rec, nil, nil
	}
	return rec, live, nil
}

// ListRecords returns stored records matching the filter.
func (s *STTService) ListRecords(ctx context.Context, filter store.STTRecordFilter) ([]*domain.STTRecord, error) {
	return s.records.List(ctx, filter)
}
