package logger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupReturnsLogger(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "", "bogus"} {
		log, err := Setup(level)
		require.NoError(t, err, "level %q", level)
		require.NotNil(t, log, "level %q", level)
	}
}

func TestFromContextOrDefault(t *testing.T) {
	t.Parallel()

	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
	scoped := slog.New(slog.NewTextHandler(io.Discard, nil)).With("trace_id", "abc")

	assert.Same(t, fallback, FromContextOrDefault(context.Background(), fallback))

	ctx := WithLogger(context.Background(), scoped)
	assert.Same(t, scoped, FromContextOrDefault(ctx, fallback))

	assert.NotNil(t, FromContextOrDefault(context.Background(), nil))
}

func TestFromContextMissing(t *testing.T) {
	t.Parallel()

	assert.Nil(t, FromContext(context.Background()))
}
