// Package telegram is the chat transport adapter, a thin HTTP client for the
// Telegram Bot API.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const defaultBaseURL = "https://api.telegram.org"

// Config holds the bot credentials.
type Config struct {
	BotToken string
	// BaseURL overrides the API endpoint, used by tests.
	BaseURL string
}

// Client is an HTTP client for the Telegram Bot API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Telegram client. If httpClient is nil a client with a
// 60 second timeout is used.
func NewClient(cfg Config, httpClient *http.Client, log *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     log.With(slog.String("component", "telegram_client")),
	}
}

// Chat is the Bot API chat object (subset).
type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type,omitempty"`
}

// User is the Bot API user object (subset).
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// Voice is a voice note attachment.
type Voice struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// Audio is an audio file attachment.
type Audio struct {
	FileID   string `json:"file_id"`
	Duration int    `json:"duration,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
}

// Message is the Bot API message object (subset).
type Message struct {
	MessageID int64  `json:"message_id"`
	Chat      *Chat  `json:"chat,omitempty"`
	From      *User  `json:"from,omitempty"`
	Text      string `json:"text,omitempty"`
	Voice     *Voice `json:"voice,omitempty"`
	Audio     *Audio `json:"audio,omitempty"`
}

// CallbackQuery arrives when a user presses an inline keyboard button.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from,omitempty"`
	Message *Message `json:"message,omitempty"`
	Data    string   `json:"data,omitempty"`
}

// Update is the Bot API update object (subset).
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message,omitempty"`
	CallbackQuery *CallbackQuery `json:"callback_query,omitempty"`
}

// InlineKeyboardButton is one button of an inline keyboard.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
}

// InlineKeyboardMarkup is the reply_markup payload for inline keyboards.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type sendMessageRequest struct {
	ChatID           int64                 `json:"chat_id"`
	Text             string                `json:"text"`
	ParseMode        string                `json:"parse_mode,omitempty"`
	ReplyToMessageID int64                 `json:"reply_to_message_id,omitempty"`
	ReplyMarkup      *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Description string          `json:"description,omitempty"`
}

// SendMessage sends a plain text message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text, parseMode string) (*Message, error) {
	return c.sendMessage(ctx, sendMessageRequest{ChatID: chatID, Text: text, ParseMode: parseMode})
}

// SendReply sends a text message as a reply to an existing message.
func (c *Client) SendReply(ctx context.Context, chatID int64, text string, replyToMessageID int64, parseMode string) (*Message, error) {
	return c.sendMessage(ctx, sendMessageRequest{
		ChatID:           chatID,
		Text:             text,
		ParseMode:        parseMode,
		ReplyToMessageID: replyToMessageID,
	})
}

// SendReplyWithCancelButton sends a reply carrying a single inline "cancel"
// button whose callback data is callbackData.
func (c *Client) SendReplyWithCancelButton(ctx context.Context, chatID int64, text string, replyToMessageID int64, buttonText, callbackData string) (*Message, error) {
	return c.sendMessage(ctx, sendMessageRequest{
		ChatID:           chatID,
		Text:             text,
		ReplyToMessageID: replyToMessageID,
		ReplyMarkup: &InlineKeyboardMarkup{
			InlineKeyboard: [][]InlineKeyboardButton{
				{{Text: buttonText, CallbackData: callbackData}},
			},
		},
	})
}

func (c *Client) sendMessage(ctx context.Context, req sendMessageRequest) (*Message, error) {
	var msg Message
	if err := c.call(ctx, "sendMessage", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageText replaces the text of an existing message.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) (*Message, error) {
	req := struct {
		ChatID    int64  `json:"chat_id"`
		MessageID int64  `json:"message_id"`
		Text      string `json:"text"`
	}{chatID, messageID, text}

	var msg Message
	if err := c.call(ctx, "editMessageText", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage removes a message from a chat.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	req := struct {
		ChatID    int64 `json:"chat_id"`
		MessageID int64 `json:"message_id"`
	}{chatID, messageID}

	return c.call(ctx, "deleteMessage", req, nil)
}

// SendDocument sends a document by URL or file id, optionally as a reply.
func (c *Client) SendDocument(ctx context.Context, chatID int64, document, caption string, replyToMessageID int64) (*Message, error) {
	req := struct {
		ChatID           int64  `json:"chat_id"`
		Document         string `json:"document"`
		Caption          string `json:"caption,omitempty"`
		ReplyToMessageID int64  `json:"reply_to_message_id,omitempty"`
	}{chatID, document, caption, replyToMessageID}

	var msg Message
	if err := c.call(ctx, "sendDocument", req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SendFile sends a file to a chat, dispatched by kind: "photo" and "image"
// use sendPhoto, "audio" uses sendAudio, anything else goes out as a
// document. A non-empty fileName makes the client fetch the file and
// re-upload it under that name, because the Bot API names URL sends after
// the URL path.
func (c *Client) SendFile(ctx context.Context, chatID int64, kind, fileURL, fileName, caption string, replyToMessageID int64) (*Message, error) {
	method, field := "sendDocument", "document"
	switch kind {
	case "photo", "image":
		method, field = "sendPhoto", "photo"
	case "audio":
		method, field = "sendAudio", "audio"
	}

	if fileName != "" {
		return c.uploadFile(ctx, method, field, chatID, fileURL, fileName, caption, replyToMessageID)
	}

	req := map[string]any{
		"chat_id": chatID,
		field:     fileURL,
	}
	if caption != "" {
		req["caption"] = caption
	}
	if replyToMessageID != 0 {
		req["reply_to_message_id"] = replyToMessageID
	}

	var msg Message
	if err := c.call(ctx, method, req, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// uploadFile fetches fileURL and re-sends it as a multipart upload carrying
// fileName as the attachment name.
func (c *Client) uploadFile(ctx context.Context, method, field string, chatID int64, fileURL, fileName, caption string, replyToMessageID int64) (*Message, error) {
	fileReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	fileResp, err := c.httpClient.Do(fileReq)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch file for upload: %w", err)
	}
	defer func() { _ = fileResp.Body.Close() }()
	if fileResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch file for upload: status %d", fileResp.StatusCode)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := map[string]string{
		"chat_id": strconv.FormatInt(chatID, 10),
	}
	if caption != "" {
		fields["caption"] = caption
	}
	if replyToMessageID != 0 {
		fields["reply_to_message_id"] = strconv.FormatInt(replyToMessageID, 10)
	}
	for name, value := range fields {
		if err := mw.WriteField(name, value); err != nil {
			return nil, err
		}
	}
	part, err := mw.CreateFormFile(field, fileName)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, fileResp.Body); err != nil {
		return nil, fmt.Errorf("failed to buffer file for upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.cfg.BaseURL, c.cfg.BotToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var msg Message
	if err := c.do(req, method, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// AnswerCallbackQuery acknowledges an inline-button press; text, when set, is
// shown to the user as a notification.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string) error {
	req := struct {
		CallbackQueryID string `json:"callback_query_id"`
		Text            string `json:"text,omitempty"`
	}{callbackQueryID, text}

	return c.call(ctx, "answerCallbackQuery", req, nil)
}

// FileURL resolves a file id into a download URL via getFile.
func (c *Client) FileURL(ctx context.Context, fileID string) (string, error) {
	req := struct {
		FileID string `json:"file_id"`
	}{fileID}

	var file struct {
		FileID   string `json:"file_id"`
		FilePath string `json:"file_path"`
	}
	if err := c.call(ctx, "getFile", req, &file); err != nil {
		return "", err
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("getFile returned no file path for %s", fileID)
	}
	return fmt.Sprintf("%s/file/bot%s/%s", c.cfg.BaseURL, c.cfg.BotToken, file.FilePath), nil
}

// call POSTs a Bot API method as JSON and decodes its result envelope into
// out.
func (c *Client) call(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", c.cfg.BaseURL, c.cfg.BotToken, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, method, out)
}

// do executes a prepared Bot API request and decodes the result envelope.
func (c *Client) do(req *http.Request, method string, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read telegram %s response: %w", method, err)
	}

	var envelope apiResponse
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("failed to decode telegram %s response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s failed with code %d: %s", method, envelope.ErrorCode, envelope.Description)
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to decode telegram %s result: %w", method, err)
		}
	}
	return nil
}
