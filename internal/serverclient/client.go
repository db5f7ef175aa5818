// Package serverclient is the bot service's HTTP client for the backend
// service. Voice and audio messages are relayed here for asynchronous
// transcription; the result comes back later through the backend's webhook
// path, not through this client.
package serverclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Config holds the backend service's address and the shared secret.
type Config struct {
	BaseURL     string
	SecretToken string
}

// Client calls the backend service's API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a backend service client. If httpClient is nil a client
// with a 30 second timeout is used.
func NewClient(cfg Config, httpClient *http.Client, log *slog.Logger) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     log.With(slog.String("component", "server_client")),
	}
}

// STTRequest is the payload for the backend's /api/v1/stt endpoint.
type STTRequest struct {
	AudioInput    string `json:"audio_input"`
	ChatID        int64  `json:"chat_id"`
	DBThreadID    string `json:"db_thread_id"`
	MessageID     int64  `json:"message_id"`
	TempMsgID     int64  `json:"temp_msg_id"`
	SpeakerLabels bool   `json:"speaker_labels"`
	Model         string `json:"model,omitempty"`
}

// STTResponse acknowledges a transcription submission with the backend
// task that now owns it.
type STTResponse struct {
	TaskID        string `json:"task_id"`
	Status        string `json:"status"`
	QueuePosition *int   `json:"queue_position,omitempty"`
}

// SubmitSTT relays an audio file URL to the backend for transcription.
func (c *Client) SubmitSTT(ctx context.Context, req STTRequest) (*STTResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v1/stt", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.cfg.SecretToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("backend returned status %d: %s", resp.StatusCode, string(data))
	}

	var out STTResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode backend response: %w", err)
	}

	c.logger.Info("audio submitted for transcription",
		slog.Int64("chat_id", req.ChatID),
		slog.String("task_id", out.TaskID))
	return &out, nil
}
