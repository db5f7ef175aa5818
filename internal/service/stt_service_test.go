package service

import (
	"context"
	"testing"

	"github.com/ginzlabs/tg-ai-agent/internal/domain"
	"github.com/ginzlabs/tg-ai-agent/internal/platform/assemblyai"
	"github.com/ginzlabs/tg-ai-agent/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitCreatesRecordWithCorrelation(t *testing.T) {
	t.Parallel()

	records := newFakeRecordStore()
	provider := &fakeProvider{submitID: "tr-77"}
	svc := NewSTTService(records, provider, testLogger())

	rec, err := svc.Submit(context.Background(), SubmitRequest{
		AudioURL:      "https://files.example.com/a.oga",
		ChatID:        555,
		DBThreadID:    "thread-5",
		MessageID:     10,
		TempMessageID: 11,
		SpeakerLabels: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "tr-77", rec.TranscriptID)
	assert.Equal(t, domain.STTStatusProcessing, rec.Status)

	// The correlation sent to the provider names the record that was
	// created before the submission.
	assert.Equal(t, rec.ID.String(), provider.lastCorr.RecordID)
	assert.Equal(t, int64(555), provider.lastCorr.ChatID)
	assert.Equal(t, "thread-5", provider.lastCorr.DBThreadID)
	assert.Equal(t, int64(10), provider.lastCorr.MessageID)
	assert.Equal(t, int64(11), provider.lastCorr.TempMessageID)

	stored, err := records.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "tr-77", stored.TranscriptID)
}

func TestSubmitProviderFailureMarksRecordError(t *testing.T) {
	t.Parallel()

	records := newFakeRecordStore()
	provider := &fakeProvider{submitErr: errBoom}
	svc := NewSTTService(records, provider, testLogger())

	_, err := svc.Submit(context.Background(), SubmitRequest{
		AudioURL: "https://files.example.com/a.oga",
		ChatID:   555,
	})
	require.Error(t, err)

	// The record created before the failed submission is marked error.
	list, lerr := records.List(context.Background(), store.STTRecordFilter{ChatID: 555})
	require.NoError(t, lerr)
	require.Len(t, list, 1)
	assert.Equal(t, domain.STTStatusError, list[0].Status)
	assert.NotNil(t, list[0].CompletedAt)
}

func TestSubmitValidationError(t *testing.T) {
	t.Parallel()

	svc := NewSTTService(newFakeRecordStore(), &fakeProvider{}, testLogger())
	_, err := svc.Submit(context.Background(), SubmitRequest{ChatID: 555})
	assert.ErrorIs(t, err, domain.ErrEmptyAudioSource)
}

func TestGetTranscriptReturnsStoredWhenTerminal(t *testing.T) {
	t.Parallel()

	records := newFakeRecordStore()
	provider := &fakeProvider{}
	svc := NewSTTService(records, provider, testLogger())

	rec, err := domain.NewSTTRecord(555, "thread-5", 10, 11, "https://files.example.com/a.oga")
	require.NoError(t, err)
	rec.TranscriptID = "tr-1"
	rec.Status = domain.STTStatusCompleted
	rec.Text = "done"
	require.NoError(t, records.Create(context.Background(), rec))

	stored, live, err := svc.GetTranscript(context.Background(), "tr-1")
	require.NoError(t, err)
	assert.Equal(t, "done", stored.Text)
	assert.Nil(t, live)
	assert.Equal(t, 0, provider.fetchCalls)
}

func TestGetTranscriptPollsProviderWhileProcessing(t *testing.T) {
	t.Parallel()

	records := newFakeRecordStore()
	provider := &fakeProvider{transcript: &assemblyai.Transcript{ID: "tr-1", Status: "processing"}}
	svc := NewSTTService(records, provider, testLogger())

	rec, err := domain.NewSTTRecord(555, "thread-5", 10, 11, "https://files.example.com/a.oga")
	require.NoError(t, err)
	rec.TranscriptID = "tr-1"
	require.NoError(t, records.Create(context.Background(), rec))

	stored, live, err := svc.GetTranscript(context.Background(), "tr-1")
	require.NoError(t, err)
	assert.Equal(t, domain.STTStatusProcessing, stored.Status)
	require.NotNil(t, live)
	assert.Equal(t, "processing", live.Status)
}
