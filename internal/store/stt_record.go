package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/ginzlabs/tg-ai-agent/internal/domain"
	"github.com/google/uuid"
)

// STTRecordUpdate carries the fields the webhook handler persists onto a
// record when the provider reports a result. Nil fields are left untouched.
type STTRecordUpdate struct {
	Status           *domain.STTStatus
	TranscriptID     *string
	Text             *string
	Summary          *string
	DetectedLanguage *string
	ModelUsed        *string
	CompletedAt      *time.Time
}

// STTRecordFilter narrows List queries. Zero values mean "no constraint".
type STTRecordFilter struct {
	ChatID       int64
	Status       domain.STTStatus
	CreatedAfter time.Time
	Limit        int
}

// STTRecordStore defines the interface for speech-to-text record persistence.
type STTRecordStore interface {
	// Create saves a new record to the store.
	// Returns validation errors from the domain STTRecord if data is invalid.
	Create(ctx context.Context, rec *domain.STTRecord) error

	// GetByID retrieves a record by its unique ID.
	// Returns ErrSTTRecordNotFound if the record does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.STTRecord, error)

	// GetByTranscriptID retrieves a record by its provider job identifier.
	// Returns ErrSTTRecordNotFound if no record carries that identifier.
	GetByTranscriptID(ctx context.Context, transcriptID string) (*domain.STTRecord, error)

	// Update applies the non-nil fields of the update to the record.
	// Terminal status updates also compute the record's processing time.
	// Returns ErrSTTRecordNotFound if the record does not exist.
	Update(ctx context.Context, id uuid.UUID, update STTRecordUpdate) (*domain.STTRecord, error)

	// IsDelivered reports the record's delivered-to-user flag.
	// Returns ErrSTTRecordNotFound if the record does not exist.
	IsDelivered(ctx context.Context, id uuid.UUID) (bool, error)

	// MarkDelivered atomically sets delivered_to_user from false to true.
	// It reports whether this call performed the transition; false means
	// another delivery already claimed the record or it does not exist.
	MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error)

	// List returns records matching the filter, newest first.
	List(ctx context.Context, filter STTRecordFilter) ([]*domain.STTRecord, error)

	// WithTx returns a store instance bound to the provided transaction.
	WithTx(tx *sql.Tx) STTRecordStore
}
