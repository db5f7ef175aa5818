// Package assemblyai is the HTTP adapter for the AssemblyAI transcription
// API. Jobs are submitted with a webhook callback URL carrying correlation
// identifiers, so the provider's completion callback can be matched back to
// the originating record without provider-side context.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultBaseURL = "https://api.assemblyai.com/v2"

// Config holds the provider credentials and webhook settings.
type Config struct {
	// APIKey authenticates against the AssemblyAI API.
	APIKey string
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
	// WebhookBaseURL is this service's public base URL. When empty, jobs
	// are submitted without a callback and must be polled.
	WebhookBaseURL string
	// WebhookSecret is sent back by the provider in the X-Webhook-Secret
	// header on every callback.
	WebhookSecret string
	// DefaultModel is the speech model used when a submission does not
	// name one.
	DefaultModel string
}

// Client is a thin HTTP client for the AssemblyAI v2 API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an AssemblyAI client. If httpClient is nil a client with
// a 30 second timeout is used.
func NewClient(cfg Config, httpClient *http.Client, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "nano"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     log.With(slog.String("component", "assemblyai_client")),
	}
}

// Correlation identifies the chat context a transcription result must be
// delivered to. The fields are embedded as query parameters in the callback
// URL at submission time.
type Correlation struct {
	RecordID      string
	ChatID        int64
	DBThreadID    string
	MessageID     int64
	TempMessageID int64
}

// SubmitOptions tune a transcription submission.
type SubmitOptions struct {
	SpeakerLabels     bool
	Model             string
	LanguageDetection bool
	LanguageCode      string
}

// Transcript is the provider's view of a transcription job.
type Transcript struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Text         string `json:"text"`
	LanguageCode string `json:"language_code"`
	SpeechModel  string `json:"speech_model"`
	Error        string `json:"error"`
}

// submitRequest is the POST /transcript payload.
type submitRequest struct {
	AudioURL              string `json:"audio_url"`
	SpeakerLabels         bool   `json:"speaker_labels"`
	LanguageDetection     bool   `json:"language_detection"`
	SpeechModel           string `json:"speech_model"`
	LanguageCode          string `json:"language_code,omitempty"`
	WebhookURL            string `json:"webhook_url,omitempty"`
	WebhookAuthHeaderName string `json:"webhook_auth_header_name,omitempty"`
	WebhookAuthHeaderVal  string `json:"webhook_auth_header_value,omitempty"`
}

// SubmitJob submits a transcription job with a correlation-carrying callback
// URL and returns the provider job id as soon as the provider accepts it. The
// actual result arrives later through the webhook.
func (c *Client) SubmitJob(ctx context.Context, audioURL string, opts SubmitOptions, corr Correlation) (string, error) {
	req := c.buildSubmitRequest(audioURL, opts)

	if c.cfg.WebhookBaseURL != "" {
		req.WebhookURL = c.CallbackURL(corr)
		if c.cfg.WebhookSecret != "" {
			req.WebhookAuthHeaderName = "X-Webhook-Secret"
			req.WebhookAuthHeaderVal = c.cfg.WebhookSecret
		}
	}

	var resp Transcript
	if err := c.post(ctx, "/transcript", req, &resp); err != nil {
		return "", err
	}

	c.logger.Info("transcription job submitted",
		slog.String("transcript_id", resp.ID),
		slog.Bool("webhook_enabled", req.WebhookURL != ""))
	return resp.ID, nil
}

// FetchResult retrieves the full transcript for a provider job id.
func (c *Client) FetchResult(ctx context.Context, transcriptID string) (*Transcript, error) {
	var resp Transcript
	if err := c.get(ctx, "/transcript/"+transcriptID, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Transcribe submits a job without a webhook and polls until the provider
// reports a terminal status. Used by the synchronous transcription endpoint.
func (c *Client) Transcribe(ctx context.Context, audioURL string, opts SubmitOptions) (*Transcript, error) {
	req := c.buildSubmitRequest(audioURL, opts)

	var submitted Transcript
	if err := c.post(ctx, "/transcript", req, &submitted); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		result, err := c.FetchResult(ctx, submitted.ID)
		if err != nil {
			return nil, err
		}
		switch result.Status {
		case "completed":
			return result, nil
		case "error":
			return nil, fmt.Errorf("transcription %s failed: %s", submitted.ID, result.Error)
		}
	}
}

// CallbackURL builds the webhook URL the provider calls on completion, with
// the correlation identifiers as query parameters.
func (c *Client) CallbackURL(corr Correlation) string {
	params := url.Values{}
	if corr.RecordID != "" {
		params.Set("t_id", corr.RecordID)
	}
	if corr.ChatID != 0 {
		params.Set("chat_id", strconv.FormatInt(corr.ChatID, 10))
	}
	if corr.DBThreadID != "" {
		params.Set("db_thread_id", corr.DBThreadID)
	}
	if corr.MessageID != 0 {
		params.Set("message_id", strconv.FormatInt(corr.MessageID, 10))
	}
	if corr.TempMessageID != 0 {
		params.Set("temp_msg_id", strconv.FormatInt(corr.TempMessageID, 10))
	}

	callback := c.cfg.WebhookBaseURL + "/webhooks/assemblyai"
	if encoded := params.Encode(); encoded != "" {
		callback += "?" + encoded
	}
	return callback
}

func (c *Client) buildSubmitRequest(audioURL string, opts SubmitOptions) submitRequest {
	model := opts.Model
	if model == "" {
		model = c.cfg.DefaultModel
	}
	return submitRequest{
		AudioURL:          audioURL,
		SpeakerLabels:     opts.SpeakerLabels,
		LanguageDetection: opts.LanguageDetection,
		SpeechModel:       model,
		LanguageCode:      opts.LanguageCode,
	}
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.cfg.APIKey)

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("assemblyai request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("assemblyai returned status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode assemblyai response: %w", err)
	}
	return nil
}
