package service

import (
	"context"
	"fmt"
	"log/slog"
)

// ReportService runs the market-report flow: generate the report document
// and deliver it to the requesting chat. Report tasks execute in the task
// manager's report category; this service is the body of that work.
type ReportService struct {
	generator     ReportGenerator
	transport     ChatTransport
	failureNotice string
	logger        *slog.Logger
}

// NewReportService creates a ReportService.
func NewReportService(generator ReportGenerator, transport ChatTransport, failureNotice string, log *slog.Logger) *ReportService {
	if failureNotice == "" {
		failureNotice = "Sorry, the market report generation failed."
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReportService{
		generator:     generator,
		transport:     transport,
		failureNotice: failureNotice,
		logger:        log.With(slog.String("component", "report_service")),
	}
}

// GenerateAndDeliver produces the report and sends it to the chat as a
// document. tempMessageID, when set, names a "processing" placeholder that
// is cleaned up on both success and failure. The returned value is the
// task's result payload.
func (s *ReportService) GenerateAndDeliver(ctx context.Context, chatID, tempMessageID int64) (any, error) {
	result, err := s.generator.Generate(ctx, chatID)
	if err != nil {
		s.cleanup(ctx, chatID, tempMessageID)
		if _, serr := s.transport.SendMessage(ctx, chatID, s.failureNotice, ""); serr != nil {
			s.logger.Error("failed to send report failure notice",
				slog.Int64("chat_id", chatID),
				slog.String("error", serr.Error()))
		}
		return nil, fmt.Errorf("report generation failed: %w", err)
	}

	// Generators without a document renderer produce text-only reports.
	if result.FileURL != "" {
		_, err = s.transport.SendDocument(ctx, chatID, result.FileURL, result.Caption, 0)
	} else {
		_, err = s.transport.SendMessage(ctx, chatID, result.Caption, "Markdown")
	}
	if err != nil {
		s.cleanup(ctx, chatID, tempMessageID)
		return nil, fmt.Errorf("failed to deliver report: %w", err)
	}

	s.cleanup(ctx, chatID, tempMessageID)
	s.logger.Info("market report delivered", slog.Int64("chat_id", chatID))

	return map[string]any{
		"file_name": result.FileName,
		"file_url":  result.FileURL,
	}, nil
}

func (s *ReportService) cleanup(ctx context.Context, chatID, tempMessageID int64) {
	if tempMessageID == 0 {
		return
	}
	if err := s.transport.DeleteMessage(ctx, chatID, tempMessageID); err != nil {
		s.logger.Warn("failed to delete temp message",
			slog.Int64("chat_id", chatID),
			slog.Int64("temp_message_id", tempMessageID),
			slog.String("error", err.Error()))
	}
}
