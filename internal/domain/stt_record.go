package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// STTStatus represents the processing state of a speech-to-text record.
type STTStatus string

// Possible speech-to-text record status values.
const (
	STTStatusProcessing STTStatus = "processing"
	STTStatusCompleted  STTStatus = "completed"
	STTStatusError      STTStatus = "error"
)

// Common validation errors for STTRecord.
var (
	ErrEmptySTTRecordID = errors.New("stt record ID cannot be empty")
	ErrEmptyChatID      = errors.New("stt record chat ID cannot be empty")
	ErrInvalidSTTStatus = errors.New("invalid stt record status")
	ErrEmptyAudioSource = errors.New("stt record audio source cannot be empty")
)

// STTRecord correlates a transcription-provider job with the chat context the
// result must be delivered to. Unlike in-memory tasks, records live in the
// database and survive process restarts; the webhook handler matches provider
// callbacks back to a record through its ID.
type STTRecord struct {
	ID            uuid.UUID `json:"id"`
	ChatID        int64     `json:"chat_id"`
	DBThreadID    string    `json:"db_thread_id"`
	MessageID     int64     `json:"message_id"`
	TempMessageID int64     `json:"temp_message_id"`
	AudioURL      string    `json:"audio_url"`
	Status        STTStatus `json:"status"`

	// TranscriptID is the provider-side job identifier, set once the
	// provider accepts the submission.
	TranscriptID string `json:"transcript_id,omitempty"`

	Text             string `json:"text,omitempty"`
	Summary          string `json:"summary,omitempty"`
	DetectedLanguage string `json:"detected_language,omitempty"`
	ModelUsed        string `json:"model_used,omitempty"`

	// DeliveredToUser, once true, permanently suppresses further delivery
	// attempts for this record.
	DeliveredToUser bool `json:"delivered_to_user"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// ProcessingTimeSec is the provider turnaround in seconds, computed
	// when the record reaches a terminal status.
	ProcessingTimeSec *float64 `json:"processing_time_sec,omitempty"`
}

// NewSTTRecord creates a record in the processing state for a freshly
// submitted audio message. Returns an error if validation fails.
func NewSTTRecord(chatID int64, dbThreadID string, messageID, tempMessageID int64, audioURL string) (*STTRecord, error) {
	rec := &STTRecord{
		ID:            uuid.New(),
		ChatID:        chatID,
		DBThreadID:    dbThreadID,
		MessageID:     messageID,
		TempMessageID: tempMessageID,
		AudioURL:      audioURL,
		Status:        STTStatusProcessing,
		CreatedAt:     time.Now().UTC(),
	}

	if err := rec.Validate(); err != nil {
		return nil, err
	}

	return rec, nil
}

// Validate checks if the STTRecord has valid data.
func (r *STTRecord) Validate() error {
	if r.ID == uuid.Nil {
		return ErrEmptySTTRecordID
	}

	if r.ChatID == 0 {
		return ErrEmptyChatID
	}

	if r.AudioURL == "" {
		return ErrEmptyAudioSource
	}

	if !isValidSTTStatus(r.Status) {
		return ErrInvalidSTTStatus
	}

	return nil
}

// isValidSTTStatus checks if the given status is a valid STTStatus.
func isValidSTTStatus(status STTStatus) bool {
	switch status {
	case STTStatusProcessing, STTStatusCompleted, STTStatusError:
		return true
	}
	return false
}
