package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ginzlabs/tg-ai-agent/internal/domain"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/logger"
	"github.com/ginzlabs/tg-ai-agent/internal/store"
	"github.com/google/uuid"
)

// sttRecordColumns is the column list shared by every SELECT in this store.
const sttRecordColumns = `id, chat_id, db_thread_id, message_id, temp_message_id, audio_url,
	status, transcript_id, text, summary, detected_language, model_used,
	delivered_to_user, created_at, completed_at, processing_time_sec`

// PostgresSTTRecordStore implements the store.STTRecordStore interface using
// a PostgreSQL database as the storage backend.
type PostgresSTTRecordStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSTTRecordStore creates a new PostgreSQL implementation of the
// STTRecordStore interface. It accepts a database connection or transaction
// managed by the caller. If logger is nil, the default logger is used.
func NewPostgresSTTRecordStore(db store.DBTX, log *slog.Logger) *PostgresSTTRecordStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if log == nil {
		log = slog.Default()
	}

	return &PostgresSTTRecordStore{
		db:     db,
		logger: log.With(slog.String("component", "stt_record_store")),
	}
}

// Ensure PostgresSTTRecordStore implements store.STTRecordStore
var _ store.STTRecordStore = (*PostgresSTTRecordStore)(nil)

// Create implements store.STTRecordStore.Create
func (s *PostgresSTTRecordStore) Create(ctx context.Context, rec *domain.STTRecord) error {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := rec.Validate(); err != nil {
		log.Warn("stt record validation failed during create",
			slog.String("error", err.Error()),
			slog.String("record_id", rec.ID.String()))
		return err
	}

	query := `
		INSERT INTO stt_records (id, chat_id, db_thread_id, message_id, temp_message_id,
			audio_url, status, transcript_id, delivered_to_user, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		rec.ID,
		rec.ChatID,
		rec.DBThreadID,
		rec.MessageID,
		rec.TempMessageID,
		rec.AudioURL,
		rec.Status,
		nullString(rec.TranscriptID),
		rec.DeliveredToUser,
		rec.CreatedAt,
	)
	if err != nil {
		log.Error("failed to create stt record",
			slog.String("error", err.Error()),
			slog.String("record_id", rec.ID.String()))
		return MapError(err)
	}

	log.Info("stt record created",
		slog.String("record_id", rec.ID.String()),
		slog.Int64("chat_id", rec.ChatID))
	return nil
}

// GetByID implements store.STTRecordStore.GetByID
func (s *PostgresSTTRecordStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.STTRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM stt_records WHERE id = $1`, sttRecordColumns)
	return s.scanOne(ctx, query, id)
}

// GetByTranscriptID implements store.STTRecordStore.GetByTranscriptID
func (s *PostgresSTTRecordStore) GetByTranscriptID(ctx context.Context, transcriptID string) (*domain.STTRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM stt_records WHERE transcript_id = $1`, sttRecordColumns)
	return s.scanOne(ctx, query, transcriptID)
}

// Update implements store.STTRecordStore.Update. Only non-nil fields of the
// update are written. When the update carries a completion timestamp the
// record's processing time is computed in the same statement, so the two
// never disagree.
func (s *PostgresSTTRecordStore) Update(ctx context.Context, id uuid.UUID, update store.STTRecordUpdate) (*domain.STTRecord, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	sets := make([]string, 0, 8)
	args := make([]any, 0, 9)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if update.Status != nil {
		sets = append(sets, "status = "+arg(*update.Status))
	}
	if update.TranscriptID != nil {
		sets = append(sets, "transcript_id = "+arg(*update.TranscriptID))
	}
	if update.Text != nil {
		sets = append(sets, "text = "+arg(*update.Text))
	}
	if update.Summary != nil {
		sets = append(sets, "summary = "+arg(*update.Summary))
	}
	if update.DetectedLanguage != nil {
		sets = append(sets, "detected_language = "+arg(*update.DetectedLanguage))
	}
	if update.ModelUsed != nil {
		sets = append(sets, "model_used = "+arg(*update.ModelUsed))
	}
	if update.CompletedAt != nil {
		completedAt := arg(*update.CompletedAt)
		sets = append(sets, "completed_at = "+completedAt)
		sets = append(sets, fmt.Sprintf(
			"processing_time_sec = EXTRACT(EPOCH FROM (%s::timestamptz - created_at))", completedAt))
	}
	if len(sets) == 0 {
		return s.GetByID(ctx, id)
	}

	query := fmt.Sprintf(
		`UPDATE stt_records SET %s WHERE id = %s RETURNING %s`,
		strings.Join(sets, ", "), arg(id), sttRecordColumns,
	)

	rec, err := scanSTTRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		log.Error("failed to update stt record",
			slog.String("error", err.Error()),
			slog.String("record_id", id.String()))
		return nil, mapNotFound(err)
	}

	log.Info("stt record updated", slog.String("record_id", id.String()))
	return rec, nil
}

// IsDelivered implements store.STTRecordStore.IsDelivered
func (s *PostgresSTTRecordStore) IsDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	var delivered bool
	err := s.db.QueryRowContext(ctx,
		`SELECT delivered_to_user FROM stt_records WHERE id = $1`, id).Scan(&delivered)
	if err != nil {
		return false, mapNotFound(err)
	}
	return delivered, nil
}

// MarkDelivered implements store.STTRecordStore.MarkDelivered. The WHERE
// clause makes the false-to-true transition atomic, so concurrent webhook
// deliveries for the same record cannot both claim it.
func (s *PostgresSTTRecordStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	res, err := s.db.ExecContext(ctx,
		`UPDATE stt_records SET delivered_to_user = true
		 WHERE id = $1 AND delivered_to_user = false`, id)
	if err != nil {
		log.Error("failed to mark stt record delivered",
			slog.String("error", err.Error()),
			slog.String("record_id", id.String()))
		return false, MapError(err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, MapError(err)
	}
	return rows == 1, nil
}

// List implements store.STTRecordStore.List
func (s *PostgresSTTRecordStore) List(ctx context.Context, filter store.STTRecordFilter) ([]*domain.STTRecord, error) {
	conds := make([]string, 0, 3)
	args := make([]any, 0, 4)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ChatID != 0 {
		conds = append(conds, "chat_id = "+arg(filter.ChatID))
	}
	if filter.Status != "" {
		conds = append(conds, "status = "+arg(filter.Status))
	}
	if !filter.CreatedAfter.IsZero() {
		conds = append(conds, "created_at > "+arg(filter.CreatedAfter))
	}

	query := fmt.Sprintf(`SELECT %s FROM stt_records`, sttRecordColumns)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, MapError(err)
	}
	defer func() { _ = rows.Close() }()

	var records []*domain.STTRecord
	for rows.Next() {
		rec, err := scanSTTRecord(rows)
		if err != nil {
			return nil, MapError(err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}
	return records, nil
}

// WithTx implements store.STTRecordStore.WithTx
func (s *PostgresSTTRecordStore) WithTx(tx *sql.Tx) store.STTRecordStore {
	return &PostgresSTTRecordStore{
		db:     tx,
		logger: s.logger,
	}
}

func (s *PostgresSTTRecordStore) scanOne(ctx context.Context, query string, args ...any) (*domain.STTRecord, error) {
	rec, err := scanSTTRecord(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return nil, mapNotFound(err)
	}
	return rec, nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSTTRecord(row rowScanner) (*domain.STTRecord, error) {
	var (
		rec          domain.STTRecord
		transcriptID sql.NullString
		text         sql.NullString
		summary      sql.NullString
		language     sql.NullString
		modelUsed    sql.NullString
		completedAt  sql.NullTime
		procTime     sql.NullFloat64
	)

	err := row.Scan(
		&rec.ID,
		&rec.ChatID,
		&rec.DBThreadID,
		&rec.MessageID,
		&rec.TempMessageID,
		&rec.AudioURL,
		&rec.Status,
		&transcriptID,
		&text,
		&summary,
		&language,
		&modelUsed,
		&rec.DeliveredToUser,
		&rec.CreatedAt,
		&completedAt,
		&procTime,
	)
	if err != nil {
		return nil, err
	}

	rec.TranscriptID = transcriptID.String
	rec.Text = text.String
	rec.Summary = summary.String
	rec.DetectedLanguage = language.String
	rec.ModelUsed = modelUsed.String
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	if procTime.Valid {
		v := procTime.Float64
		rec.ProcessingTimeSec = &v
	}
	return &rec, nil
}

// mapNotFound narrows MapError's generic not-found to the record-specific
// sentinel.
func mapNotFound(err error) error {
	mapped := MapError(err)
	if store.IsNotFoundError(mapped) {
		return fmt.Errorf("%w: %v", store.ErrSTTRecordNotFound, err)
	}
	return mapped
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
