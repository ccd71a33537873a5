package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewValidatesFormat(t *testing.T) {
	_, err := New(&Config{Level: zapcore.InfoLevel, Format: "xml"})
	require.Error(t, err)

	logger, err := New(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)

	for _, format := range []string{"", "json", "console"} {
		_, err := New(&Config{Level: zapcore.DebugLevel, Format: format})
		assert.NoError(t, err, "format %q", format)
	}
}

func TestContextFieldsAttached(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = WithCaller(ctx, "user-456")
	ctx = WithCollection(ctx, "col-789")

	tl.Info(ctx, "with correlation")

	entries := tl.FilterMessage("with correlation").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-123", fields["request.id"])
	assert.Equal(t, "user-456", fields["caller.id"])
	assert.Equal(t, "col-789", fields["collection.id"])
}

func TestContextFieldsEmptyContext(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestNamedAndWith(t *testing.T) {
	tl := NewTestLogger()

	child := tl.Named("store").With(zap.String("component", "sqlite"))
	child.Warn(context.Background(), "slow query")

	entries := tl.FilterMessage("slow query").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "store", entries[0].LoggerName)
	assert.Equal(t, "sqlite", entries[0].ContextMap()["component"])
}

func TestAssertLogged(t *testing.T) {
	tl := NewTestLogger()
	tl.Error(context.Background(), "something broke")
	tl.AssertLogged(t, zapcore.ErrorLevel, "broke")
}
