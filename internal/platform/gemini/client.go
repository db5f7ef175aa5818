// Package gemini adapts the Gemini API for the two LLM touchpoints of the
// system: best-effort transcript summarization and conversational agent
// replies.
package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"google.golang.org/genai"
)

const summaryPrompt = `Summarize the following transcript concisely, keeping the key points
and any action items. Answer in the language of the transcript.

Transcript:
%s`

// Config holds settings for the Gemini client.
type Config struct {
	// APIKey authenticates against the Gemini API.
	APIKey string
	// ModelName selects the model, e.g. "gemini-2.0-flash".
	ModelName string
	// MaxRetries bounds retry attempts for transient API errors.
	MaxRetries int
	// Timeout bounds each generation call. Summarization callers rely on
	// this to keep enrichment from stalling a webhook response.
	Timeout time.Duration
}

// Client wraps the Gemini SDK for summarization and reply generation.
type Client struct {
	client *genai.Client
	cfg    Config
	logger *slog.Logger
}

// NewClient creates a Gemini client.
func NewClient(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name is required", ErrInvalidConfig)
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	return &Client{
		client: client,
		cfg:    cfg,
		logger: log.With(slog.String("component", "gemini_client")),
	}, nil
}

// Summarize produces a short summary of the given transcript text. Callers
// treat failures as "no enrichment", so errors here never fail a delivery.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyInput
	}
	return c.generate(ctx, fmt.Sprintf(summaryPrompt, text))
}

// Reply generates a conversational agent reply for a user message.
func (c *Client) Reply(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", ErrEmptyInput
	}
	return c.generate(ctx, message)
}

// generate runs one bounded, retried generation call.
func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries+1; attempt++ {
		resp, err := c.client.Models.GenerateContent(ctx, c.cfg.ModelName, genai.Text(prompt), nil)
		switch {
		case err != nil:
			// Assume transient and retry with backoff.
			lastErr = err
			c.logger.Warn("gemini API call failed",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
		case resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil:
			return "", fmt.Errorf("%w: no content generated", ErrInvalidResponse)
		case resp.Candidates[0].FinishReason == genai.FinishReasonSafety:
			return "", ErrContentBlocked
		default:
			text := resp.Text()
			if strings.TrimSpace(text) == "" {
				return "", fmt.Errorf("%w: empty text in response", ErrInvalidResponse)
			}
			return text, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}

	return "", fmt.Errorf("gemini generation failed after %d attempts: %w", c.cfg.MaxRetries+1, lastErr)
}
