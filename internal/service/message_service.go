package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/ginzlabs/tg-ai-agent/internal/platform/telegram"
	"github.com/ginzlabs/tg-ai-agent/internal/serverclient"
	"github.com/ginzlabs/tg-ai-agent/internal/singleflight"
)

// cancelCallbackPrefix marks inline-button callback data for task
// cancellation.
const cancelCallbackPrefix = "cancel_task"

// MessageTemplates holds the user-facing texts of the bot flow.
type MessageTemplates struct {
	Processing      string
	ProcessingAudio string
	AlreadyRunning  string
	CancelledByUser string
	Rejected        string
	AgentFailure    string
	STTFailure      string
	CancelButton    string
}

// DefaultMessageTemplates returns the texts the bot ships with.
func DefaultMessageTemplates() MessageTemplates {
	return MessageTemplates{
		Processing:      "Processing your message...",
		ProcessingAudio: "Processing your audio message...",
		AlreadyRunning:  "Sorry, your previous request is still processing and we only allow one at a time. If you wish to cancel, press the button below and then submit a new request.",
		CancelledByUser: "Task was cancelled by user.",
		Rejected:        "This request could not be processed as previous request was already running. You can now submit a new request for processing.",
		AgentFailure:    "Error processing your message. Please try again later.",
		STTFailure:      "Error processing your audio file. Please try again later.",
		CancelButton:    "Cancel previous task",
	}
}

// MessageService is the bot service's inbound flow: it routes Telegram
// updates into agent turns or transcription relays, serialized per user by
// the single-flight manager, and handles the cancel-button callback path.
type MessageService struct {
	transport ChatTransport
	agent     Agent
	relay     STTRelay
	flights   *singleflight.Manager
	templates MessageTemplates
	logger    *slog.Logger
}

// NewMessageService creates a MessageService.
func NewMessageService(
	transport ChatTransport,
	agent Agent,
	relay STTRelay,
	flights *singleflight.Manager,
	templates MessageTemplates,
	log *slog.Logger,
) *MessageService {
	if templates == (MessageTemplates{}) {
		templates = DefaultMessageTemplates()
	}
	if log == nil {
		log = slog.Default()
	}
	return &MessageService{
		transport: transport,
		agent:     agent,
		relay:     relay,
		flights:   flights,
		templates: templates,
		logger:    log.With(slog.String("component", "message_service")),
	}
}

// HandleUpdate routes one Telegram update.
func (s *MessageService) HandleUpdate(ctx context.Context, update *telegram.Update) error {
	switch {
	case update.CallbackQuery != nil:
		return s.HandleCancelCallback(ctx, update.CallbackQuery)
	case update.Message == nil || update.Message.Chat == nil:
		return nil
	case update.Message.Voice != nil:
		return s.handleAudio(ctx, update.Message, update.Message.Voice.FileID)
	case update.Message.Audio != nil:
		return s.handleAudio(ctx, update.Message, update.Message.Audio.FileID)
	case update.Message.Text != "":
		return s.ProcessText(ctx, update.Message.Chat.ID, s.threadID(update.Message.Chat.ID),
			update.Message.Text, update.Message.MessageID)
	default:
		return nil
	}
}

// ProcessText admits one agent turn for the chat. The turn runs under the
// single-flight manager: a duplicate submission while one is active is
// rejected with a cancel offer. messageID is zero for agent-initiated text
// (for example a delivered transcript fed back for processing).
func (s *MessageService) ProcessText(ctx context.Context, chatID int64, dbThreadID, text string, messageID int64) error {
	userKey := strconv.FormatInt(chatID, 10)

	tempMsg, err := s.sendTemp(ctx, chatID, s.templates.Processing, messageID)
	if err != nil {
		return fmt.Errorf("failed to send processing message: %w", err)
	}

	outcome, err := s.flights.QueueTask(userKey, func(taskCtx context.Context) error {
		return s.runAgentTurn(taskCtx, chatID, text, messageID, tempMsg)
	})
	if err != nil {
		s.deleteMessage(ctx, chatID, tempMsg)
		return err
	}

	switch outcome.State {
	case singleflight.StateRejected:
		s.deleteMessage(ctx, chatID, tempMsg)
		s.offerCancel(ctx, chatID, userKey, messageID)
	case singleflight.StateQueued:
		s.logger.Info("agent turn queued",
			slog.Int64("chat_id", chatID),
			slog.Int("queue_position", outcome.QueuePosition))
	}
	return nil
}

// runAgentTurn is the body of one single-flight task.
func (s *MessageService) runAgentTurn(ctx context.Context, chatID int64, text string, messageID, tempMsgID int64) error {
	reply, err := s.agent.Reply(ctx, text)
	if err != nil {
		s.deleteMessage(ctx, chatID, tempMsgID)
		if ctx.Err() == nil {
			if _, serr := s.transport.SendMessage(ctx, chatID, s.templates.AgentFailure, ""); serr != nil {
				s.logger.Error("failed to send agent failure notice",
					slog.Int64("chat_id", chatID),
					slog.String("error", serr.Error()))
			}
		}
		return err
	}

	if messageID != 0 {
		_, err = s.transport.SendReply(ctx, chatID, reply, messageID, "Markdown")
	} else {
		_, err = s.transport.SendMessage(ctx, chatID, reply, "Markdown")
	}
	if err != nil {
		return fmt.Errorf("failed to deliver agent reply: %w", err)
	}

	s.deleteMessage(ctx, chatID, tempMsgID)
	return nil
}

// handleAudio sends the placeholder and relays the audio to the backend for
// asynchronous transcription. The result comes back through the backend's
// webhook path; this flow ends at the relay.
func (s *MessageService) handleAudio(ctx context.Context, msg *telegram.Message, fileID string) error {
	chatID := msg.Chat.ID

	fileURL, err := s.transport.FileURL(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to resolve audio file: %w", err)
	}

	tempMsg, err := s.sendTemp(ctx, chatID, s.templates.ProcessingAudio, msg.MessageID)
	if err != nil {
		return fmt.Errorf("failed to send processing message: %w", err)
	}

	_, err = s.relay.SubmitSTT(ctx, serverclient.STTRequest{
		AudioInput:    fileURL,
		ChatID:        chatID,
		DBThreadID:    s.threadID(chatID),
		MessageID:     msg.MessageID,
		TempMsgID:     tempMsg,
		SpeakerLabels: true,
	})
	if err != nil {
		if _, eerr := s.transport.EditMessageText(ctx, chatID, tempMsg, s.templates.STTFailure); eerr != nil {
			s.logger.Error("failed to edit temp message after relay error",
				slog.Int64("chat_id", chatID),
				slog.String("error", eerr.Error()))
		}
		return fmt.Errorf("failed to relay audio for transcription: %w", err)
	}
	return nil
}

// HandleCancelCallback handles the inline cancel-button press: cancel the
// user's active task, then update the prompt and the original request
// message so the user sees the rejection resolved.
func (s *MessageService) HandleCancelCallback(ctx context.Context, cb *telegram.CallbackQuery) error {
	if cb.Message == nil || cb.Message.Chat == nil {
		return nil
	}
	if !strings.HasPrefix(cb.Data, cancelCallbackPrefix) {
		return nil
	}

	chatID := cb.Message.Chat.ID
	userKey := strconv.FormatInt(chatID, 10)

	// Always answer the callback to stop the client's loading indicator.
	if err := s.transport.AnswerCallbackQuery(ctx, cb.ID, ""); err != nil {
		s.logger.Warn("failed to answer callback query", slog.String("error", err.Error()))
	}

	prompt, hasPrompt := s.flights.CancelPromptFor(userKey)

	if !s.flights.CancelUserTask(userKey) {
		s.logger.Info("no active task to cancel", slog.String("user", userKey))
		if _, err := s.transport.EditMessageText(ctx, chatID, cb.Message.MessageID, s.templates.Rejected); err != nil {
			return fmt.Errorf("failed to update stale cancel prompt: %w", err)
		}
		return nil
	}

	if hasPrompt {
		if _, err := s.transport.EditMessageText(ctx, chatID, prompt.PromptMessageID, s.templates.CancelledByUser); err != nil {
			s.logger.Warn("failed to update cancel prompt", slog.String("error", err.Error()))
		}
		if _, err := s.transport.SendReply(ctx, chatID, s.templates.Rejected, prompt.RequestMessageID, ""); err != nil {
			s.logger.Warn("failed to notify rejected request", slog.String("error", err.Error()))
		}
		s.flights.ClearCancelPrompt(userKey)
	}

	s.logger.Info("user task cancelled via callback", slog.String("user", userKey))
	return nil
}

// SendToUserRequest is the payload of the bot's message dispatch endpoint.
type SendToUserRequest struct {
	ChatID    int64
	Message   string
	MessageID int64
	TempMsgID int64
	FileURL   string
	FileName  string
	FileType  string
}

// SendToUser dispatches a text or file message to a chat, replying to the
// originating message when known, and cleans up any placeholder. Files are
// routed by FileType and keep their FileName.
func (s *MessageService) SendToUser(ctx context.Context, req SendToUserRequest) error {
	var err error
	if req.FileURL != "" {
		_, err = s.transport.SendFile(ctx, req.ChatID, req.FileType, req.FileURL, req.FileName, req.Message, req.MessageID)
	} else if req.MessageID != 0 {
		_, err = s.transport.SendReply(ctx, req.ChatID, req.Message, req.MessageID, "Markdown")
	} else {
		_, err = s.transport.SendMessage(ctx, req.ChatID, req.Message, "Markdown")
	}
	if err != nil {
		return fmt.Errorf("failed to send message to user: %w", err)
	}

	s.deleteMessage(ctx, req.ChatID, req.TempMsgID)
	return nil
}

// offerCancel sends the "already running" prompt with the inline cancel
// button and records the prompt correlation for the callback path.
func (s *MessageService) offerCancel(ctx context.Context, chatID int64, userKey string, requestMessageID int64) {
	msg, err := s.transport.SendReplyWithCancelButton(ctx, chatID,
		s.templates.AlreadyRunning, requestMessageID,
		s.templates.CancelButton, fmt.Sprintf("%s:%s", cancelCallbackPrefix, userKey))
	if err != nil {
		s.logger.Error("failed to send cancel offer",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()))
		return
	}

	s.flights.SetCancelPrompt(userKey, singleflight.CancelPrompt{
		PromptMessageID:  msg.MessageID,
		RequestMessageID: requestMessageID,
	})
}

func (s *MessageService) sendTemp(ctx context.Context, chatID int64, text string, replyTo int64) (int64, error) {
	var (
		msg *telegram.Message
		err error
	)
	if replyTo != 0 {
		msg, err = s.transport.SendReply(ctx, chatID, text, replyTo, "")
	} else {
		msg, err = s.transport.SendMessage(ctx, chatID, text, "")
	}
	if err != nil {
		return 0, err
	}
	return msg.MessageID, nil
}

func (s *MessageService) deleteMessage(ctx context.Context, chatID, messageID int64) {
	if messageID == 0 {
		return
	}
	if err := s.transport.DeleteMessage(ctx, chatID, messageID); err != nil {
		s.logger.Warn("failed to delete temp message",
			slog.Int64("chat_id", chatID),
			slog.Int64("message_id", messageID),
			slog.String("error", err.Error()))
	}
}

// threadID derives the conversation thread key for a chat.
func (s *MessageService) threadID(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}
