// Package botclient is the backend service's HTTP client for the bot
// service. The webhook handler uses it to feed a delivered transcript back
// into the conversational agent.
package botclient

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

// Config holds the bot service's address and the shared secret.
type Config struct {
	BaseURL     string
	SecretToken string
}

// Client calls the bot service's internal endpoints.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a bot service client. If httpClient is nil a client with
// a 30 second timeout is used.
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
		logger:     log.With(slog.String("component", "bot_client")),
	}
}

// ProcessMessageRequest is the payload for the bot's /process_message
// endpoint. MessageID is nil for agent-initiated messages such as the
// post-delivery transcript feed.
type ProcessMessageRequest struct {
	ChatID     int64  `json:"chat_id"`
	DBThreadID string `json:"db_thread_id"`
	Text       string `json:"text"`
	MessageID  *int64 `json:"message_id"`
}

// ProcessMessage asks the bot service to run a text through the
// conversational agent.
func (c *Client) ProcessMessage(ctx context.Context, req ProcessMessageRequest) error {
	return c.post(ctx, "/process_message", req)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Secret-Token", c.cfg.SecretToken)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("bot service request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("bot service returned status %d: %s", resp.StatusCode, string(data))
	}
	return nil
}
