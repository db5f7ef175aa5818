package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ginzlabs/tg-ai-agent/internal/botclient"
	"github.com/ginzlabs/tg-ai-agent/internal/domain"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/assemblyai"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/telegram"
	"github.com/ginzlabs/tg-ai-agent/internal/serverclient"
	"github.com/ginzlabs/tg-ai-agent/internal/store"
	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRecordStore is an in-memory store.STTRecordStore.
type fakeRecordStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]*domain.STTRecord

	createErr error
	updateErr error
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{records: make(map[uuid.UUID]*domain.STTRecord)}
}

func (f *fakeRecordStore) Create(ctx context.Context, rec *domain.STTRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *rec
	f.records[rec.ID] = &cp
	return nil
}

func (f *fakeRecordStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.STTRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, store.ErrSTTRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRecordStore) GetByTranscriptID(ctx context.Context, transcriptID string) (*domain.STTRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.TranscriptID == transcriptID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, store.ErrSTTRecordNotFound
}

func (f *fakeRecordStore) Update(ctx context.Context, id uuid.UUID, update store.STTRecordUpdate) (*domain.STTRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	rec, ok := f.records[id]
	if !ok {
		return nil, store.ErrSTTRecordNotFound
	}
	if update.Status != nil {
		rec.Status = *update.Status
	}
	if update.TranscriptID != nil {
		rec.TranscriptID = *update.TranscriptID
	}
	if update.Text != nil {
		rec.Text = *update.Text
	}
	if update.Summary != nil {
		rec.Summary = *update.Summary
	}
	if update.DetectedLanguage != nil {
		rec.DetectedLanguage = *update.DetectedLanguage
	}
	if update.ModelUsed != nil {
		rec.ModelUsed = *update.ModelUsed
	}
	if update.CompletedAt != nil {
		t := *update.CompletedAt
		rec.CompletedAt = &t
		secs := t.Sub(rec.CreatedAt).Seconds()
		rec.ProcessingTimeSec = &secs
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRecordStore) IsDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return false, store.ErrSTTRecordNotFound
	}
	return rec.DeliveredToUser, nil
}

func (f *fakeRecordStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.DeliveredToUser {
		return false, nil
	}
	rec.DeliveredToUser = true
	return true, nil
}

func (f *fakeRecordStore) List(ctx context.Context, filter store.STTRecordFilter) ([]*domain.STTRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.STTRecord
	for _, rec := range f.records {
		if filter.ChatID != 0 && rec.ChatID != filter.ChatID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeRecordStore) WithTx(tx *sql.Tx) store.STTRecordStore { return f }

// fakeProvider is a canned TranscriptionProvider.
type fakeProvider struct {
	mu          sync.Mutex
	transcript  *assemblyai.Transcript
	submitID    string
	submitErr   error
	fetchErr    error
	fetchCalls  int
	submitCalls int
	lastCorr    assemblyai.Correlation
}

func (f *fakeProvider) SubmitJob(ctx context.Context, audioURL string, opts assemblyai.SubmitOptions, corr assemblyai.Correlation) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.lastCorr = corr
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.submitID, nil
}

func (f *fakeProvider) FetchResult(ctx context.Context, transcriptID string) (*assemblyai.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.transcript, nil
}

func (f *fakeProvider) Transcribe(ctx context.Context, audioURL string, opts assemblyai.SubmitOptions) (*assemblyai.Transcript, error) {
	return f.transcript, f.fetchErr
}

// transportCall records one ChatTransport invocation.
type transportCall struct {
	method    string
	chatID    int64
	messageID int64
	text      string
	kind      string
	fileName  string
}

// fakeTransport records every call and can fail selected methods.
type fakeTransport struct {
	mu         sync.Mutex
	calls      []transportCall
	nextMsgID  int64
	sendErr    error
	deleteErr  error
	fileURLErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{nextMsgID: 1000}
}

func (f *fakeTransport) record(method string, chatID, messageID int64, text string) *telegram.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsgID++
	f.calls = append(f.calls, transportCall{method: method, chatID: chatID, messageID: messageID, text: text})
	return &telegram.Message{MessageID: f.nextMsgID, Chat: &telegram.Chat{ID: chatID}}
}

func (f *fakeTransport) callsFor(method string) []transportCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []transportCall
	for _, c := range f.calls {
		if c.method == method {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeTransport) SendMessage(ctx context.Context, chatID int64, text, parseMode string) (*telegram.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.record("SendMessage", chatID, 0, text), nil
}

func (f *fakeTransport) SendReply(ctx context.Context, chatID int64, text string, replyTo int64, parseMode string) (*telegram.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.record("SendReply", chatID, replyTo, text), nil
}

func (f *fakeTransport) SendReplyWithCancelButton(ctx context.Context, chatID int64, text string, replyTo int64, buttonText, callbackData string) (*telegram.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.record("SendReplyWithCancelButton", chatID, replyTo, text), nil
}

func (f *fakeTransport) EditMessageText(ctx context.Context, chatID, messageID int64, text string) (*telegram.Message, error) {
	return f.record("EditMessageText", chatID, messageID, text), nil
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.record("DeleteMessage", chatID, messageID, "")
	return nil
}

func (f *fakeTransport) SendDocument(ctx context.Context, chatID int64, document, caption string, replyTo int64) (*telegram.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.record("SendDocument", chatID, replyTo, document), nil
}

func (f *fakeTransport) SendFile(ctx context.Context, chatID int64, kind, fileURL, fileName, caption string, replyTo int64) (*telegram.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextMsgID++
	f.calls = append(f.calls, transportCall{
		method: "SendFile", chatID: chatID, messageID: replyTo,
		text: fileURL, kind: kind, fileName: fileName,
	})
	return &telegram.Message{MessageID: f.nextMsgID, Chat: &telegram.Chat{ID: chatID}}, nil
}

func (f *fakeTransport) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	f.record("AnswerCallbackQuery", 0, 0, text)
	return nil
}

func (f *fakeTransport) FileURL(ctx context.Context, fileID string) (string, error) {
	if f.fileURLErr != nil {
		return "", f.fileURLErr
	}
	return "https://files.example.com/" + fileID, nil
}

// fakeSummarizer returns a canned summary or error.
type fakeSummarizer struct {
	summary string
	err     error
	calls   int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	f.calls++
	return f.summary, f.err
}

// fakeAgentTrigger records secondary-trigger calls.
type fakeAgentTrigger struct {
	mu    sync.Mutex
	calls []botclient.ProcessMessageRequest
	err   error
}

func (f *fakeAgentTrigger) ProcessMessage(ctx context.Context, req botclient.ProcessMessageRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	return f.err
}

// fakeAgent is a controllable Agent.
type fakeAgent struct {
	reply   string
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeAgent) Reply(ctx context.Context, message string) (string, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

// fakeRelay records STT relay submissions.
type fakeRelay struct {
	mu    sync.Mutex
	calls []serverclient.STTRequest
	err   error
}

func (f *fakeRelay) SubmitSTT(ctx context.Context, req serverclient.STTRequest) (*serverclient.STTResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	return &serverclient.STTResponse{TaskID: "task-1", Status: "pending"}, nil
}

// fakeReportGenerator returns a canned report.
type fakeReportGenerator struct {
	result *ReportResult
	err    error
}

func (f *fakeReportGenerator) Generate(ctx context.Context, chatID int64) (*ReportResult, error) {
	return f.result, f.err
}

var errBoom = errors.New("boom")

func longText(n int) string {
	out := ""
	for len(out) < n {
		out += fmt.Sprintf("word%d ", len(out))
	}
	return out
}
