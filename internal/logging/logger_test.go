package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLogger_Defaults(t *testing.T) {
	logger, err := NewLogger(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	assert.True(t, logger.Enabled(zapcore.InfoLevel))
	assert.False(t, logger.Enabled(zapcore.DebugLevel))
}

func TestNewLogger_InvalidLevel(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Level = "verbose"
	_, err := NewLogger(cfg)
	require.Error(t, err)
}

func TestNewLogger_InvalidFormat(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Format = "xml"
	_, err := NewLogger(cfg)
	require.Error(t, err)
}

func TestContextFields(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ContextFields(ctx))

	ctx = WithTenantID(ctx, 42)
	ctx = WithRequestID(ctx, "req-1")

	fields := ContextFields(ctx)
	require.Len(t, fields, 2)
	assert.Equal(t, "tenant.id", fields[0].Key)
	assert.Equal(t, "request.id", fields[1].Key)
}

func TestTenantIDFromContext_Absent(t *testing.T) {
	assert.Zero(t, TenantIDFromContext(context.Background()))
	assert.Empty(t, RequestIDFromContext(context.Background()))
}

func TestRedactingEncoder(t *testing.T) {
	enc := NewRedactingEncoder(newEncoder("json"), RedactionConfig{
		Enabled: true,
		Fields:  []string{"password"},
	})

	assert.True(t, enc.shouldRedactKey("password"))
	assert.True(t, enc.shouldRedactKey("PASSWORD"))
	assert.False(t, enc.shouldRedactKey("username"))
}

func TestRedactedString(t *testing.T) {
	f := RedactedString("password", "hunter2")
	assert.Equal(t, "password", f.Key)
	assert.Equal(t, "[REDACTED:7]", f.String)
}

func TestLogger_ChildLoggers(t *testing.T) {
	logger := NewNopLogger()
	child := logger.Named("vault").With()
	require.NotNil(t, child)
	child.Info(context.Background(), "noop")
}
