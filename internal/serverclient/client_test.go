package serverclient

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSubmitSTTSendsRequestAndDecodesAck(t *testing.T) {
	t.Parallel()

	var gotKey string
	var gotBody STTRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/stt", r.URL.Path)
		gotKey = r.Header.Get("X-API-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(STTResponse{TaskID: "task-1", Status: "pending"})
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, SecretToken: "key"}, srv.Client(), testLogger())
	resp, err := c.SubmitSTT(context.Background(), STTRequest{
		AudioInput:    "https://files.example.com/a.oga",
		ChatID:        99,
		MessageID:     8,
		TempMsgID:     1001,
		SpeakerLabels: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "key", gotKey)
	assert.Equal(t, "https://files.example.com/a.oga", gotBody.AudioInput)
	assert.True(t, gotBody.SpeakerLabels)
	assert.Equal(t, "task-1", resp.TaskID)
	assert.Equal(t, "pending", resp.Status)
}

func TestSubmitSTTBackendError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, SecretToken: "key"}, srv.Client(), testLogger())
	_, err := c.SubmitSTT(context.Background(), STTRequest{AudioInput: "x", ChatID: 99})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}
