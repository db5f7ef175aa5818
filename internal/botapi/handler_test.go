package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ginzlabs/tg-ai-agent/internal/platform/telegram"
	"github.com/ginzlabs/tg-ai-agent/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessages struct {
	updates    []*telegram.Update
	texts      []string
	sends      []service.SendToUserRequest
	handleErr  error
	processErr error
	sendErr    error
}

func (f *fakeMessages) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	f.updates = append(f.updates, update)
	return f.handleErr
}

func (f *fakeMessages) ProcessText(ctx context.Context, chatID int64, dbThreadID, text string, messageID int64) error {
	f.texts = append(f.texts, text)
	return f.processErr
}

func (f *fakeMessages) SendToUser(ctx context.Context, req service.SendToUserRequest) error {
	f.sends = append(f.sends, req)
	return f.sendErr
}

func newTestHandler(messages *fakeMessages) *Handler {
	return NewHandler(messages, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func postJSON(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	return httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
}

func TestTelegramWebhookAcknowledges(t *testing.T) {
	t.Parallel()

	messages := &fakeMessages{}
	h := newTestHandler(messages)

	update := telegram.Update{UpdateID: 7, Message: &telegram.Message{
		MessageID: 5,
		Chat:      &telegram.Chat{ID: 99},
		Text:      "hi",
	}}

	rr := httptest.NewRecorder()
	h.TelegramWebhook(rr, postJSON(t, "/webhook", update))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, messages.updates, 1)
	assert.Equal(t, int64(7), messages.updates[0].UpdateID)
}

func TestTelegramWebhookSwallowsProcessingErrors(t *testing.T) {
	t.Parallel()

	messages := &fakeMessages{handleErr: assert.AnError}
	h := newTestHandler(messages)

	rr := httptest.NewRecorder()
	h.TelegramWebhook(rr, postJSON(t, "/webhook", telegram.Update{UpdateID: 8}))

	// Telegram redelivers on non-2xx, so processing errors are logged only.
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestTelegramWebhookRejectsBadPayload(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&fakeMessages{})
	rr := httptest.NewRecorder()
	h.TelegramWebhook(rr, httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader([]byte("{"))))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProcessMessageFeedsAgent(t *testing.T) {
	t.Parallel()

	messages := &fakeMessages{}
	h := newTestHandler(messages)

	rr := httptest.NewRecorder()
	h.ProcessMessage(rr, postJSON(t, "/process_message", ProcessMessageRequest{
		ChatID:     99,
		DBThreadID: "99",
		Text:       "transcribed text",
	}))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, messages.texts, 1)
	assert.Equal(t, "transcribed text", messages.texts[0])
}

func TestProcessMessageValidation(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&fakeMessages{})
	rr := httptest.NewRecorder()
	h.ProcessMessage(rr, postJSON(t, "/process_message", ProcessMessageRequest{ChatID: 99}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProcessMessageFailure(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&fakeMessages{processErr: assert.AnError})
	rr := httptest.NewRecorder()
	h.ProcessMessage(rr, postJSON(t, "/process_message", ProcessMessageRequest{ChatID: 99, Text: "x"}))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestSendMessageToUser(t *testing.T) {
	t.Parallel()

	messages := &fakeMessages{}
	h := newTestHandler(messages)

	rr := httptest.NewRecorder()
	h.SendMessageToUser(rr, postJSON(t, "/send_message_to_user", SendMessageRequest{
		ChatID:    99,
		Message:   "your report",
		TempMsgID: 6,
		FileURL:   "https://files.example.com/report.docx",
		FileType:  "document",
	}))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, messages.sends, 1)
	assert.Equal(t, "https://files.example.com/report.docx", messages.sends[0].FileURL)
	assert.Equal(t, int64(6), messages.sends[0].TempMsgID)
}

func TestSendMessageToUserRequiresContent(t *testing.T) {
	t.Parallel()

	h := newTestHandler(&fakeMessages{})
	rr := httptest.NewRecorder()
	h.SendMessageToUser(rr, postJSON(t, "/send_message_to_user", SendMessageRequest{ChatID: 99}))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
