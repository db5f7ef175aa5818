// Package service contains the application flows of both services: the
// webhook rendezvous that reconciles provider callbacks with persisted
// records, transcription submission, report generation, and the bot's
// message processing. Collaborators are consumed through the narrow
// interfaces defined here.
package service

import (
	"context"

	"github.com/ginzlabs/tg-ai-agent/internal/botclient"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/assemblyai"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/telegram"
	"github.com/ginzlabs/tg-ai-agent/internal/serverclient"
)

// TranscriptionProvider is the transcription side of the provider adapter.
type TranscriptionProvider interface {
	// SubmitJob starts an asynchronous job whose result arrives via
	// webhook; it returns the provider job id on acceptance.
	SubmitJob(ctx context.Context, audioURL string, opts assemblyai.SubmitOptions, corr assemblyai.Correlation) (string, error)

	// FetchResult retrieves the full transcript for a provider job id.
	FetchResult(ctx context.Context, transcriptID string) (*assemblyai.Transcript, error)

	// Transcribe runs a job synchronously, polling until terminal.
	Transcribe(ctx context.Context, audioURL string, opts assemblyai.SubmitOptions) (*assemblyai.Transcript, error)
}

// ChatTransport is the chat-facing side of the system. *telegram.Client
// satisfies it.
type ChatTransport interface {
	SendMessage(ctx context.Context, chatID int64, text, parseMode string) (*telegram.Message, error)
	SendReply(ctx context.Context, chatID int64, text string, replyToMessageID int64, parseMode string) (*telegram.Message, error)
	SendReplyWithCancelButton(ctx context.Context, chatID int64, text string, replyToMessageID int64, buttonText, callbackData string) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) (*telegram.Message, error)
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
	SendDocument(ctx context.Context, chatID int64, document, caption string, replyToMessageID int64) (*telegram.Message, error)
	SendFile(ctx context.Context, chatID int64, kind, fileURL, fileName, caption string, replyToMessageID int64) (*telegram.Message, error)
	AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error
	FileURL(ctx context.Context, fileID string) (string, error)
}

// Summarizer produces a short summary of a transcript. Failures are treated
// as "no enrichment".
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Agent generates conversational replies to user messages.
type Agent interface {
	Reply(ctx context.Context, message string) (string, error)
}

// AgentTrigger feeds text back into the bot service's agent pipeline.
// *botclient.Client satisfies it.
type AgentTrigger interface {
	ProcessMessage(ctx context.Context, req botclient.ProcessMessageRequest) error
}

// STTRelay submits audio to the backend service for transcription.
// *serverclient.Client satisfies it.
type STTRelay interface {
	SubmitSTT(ctx context.Context, req serverclient.STTRequest) (*serverclient.STTResponse, error)
}

// ReportResult is the output of the report generation pipeline.
type ReportResult struct {
	// FileURL points at the rendered report document.
	FileURL  string
	FileName string
	Caption  string
}

// ReportGenerator runs the market-report pipeline. The scraping and
// rendering internals live behind this boundary.
type ReportGenerator interface {
	Generate(ctx context.Context, chatID int64) (*ReportResult, error)
}
