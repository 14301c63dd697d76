package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/jwalitptl/localnotify/pkg/logger"
)

func TestLogRecordsFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewService(zap.New(core))

	ctx := logger.ContextWithRequestID(context.Background(), "req-42")
	svc.Log(ctx, ActionSchedule, "standup", &LogOptions{
		Metadata: map[string]interface{}{"repeats": true},
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "audit event", entry.Message)
	assert.Equal(t, "audit", entry.LoggerName)

	fields := entry.ContextMap()
	assert.Equal(t, ActionSchedule, fields["action"])
	assert.Equal(t, "standup", fields["entity_id"])
	assert.Equal(t, "req-42", fields["request_id"])
	assert.Equal(t, true, fields["repeats"])
	assert.NotEmpty(t, fields["audit_id"])
}

func TestLogFailureIsWarning(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	svc := NewService(zap.New(core))

	svc.Log(context.Background(), ActionCancel, "x", &LogOptions{Err: errors.New("backend down")})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.WarnLevel, logs.All()[0].Level)
	assert.Equal(t, "backend down", logs.All()[0].ContextMap()["error"])
}

func TestNilLoggerIsNop(t *testing.T) {
	svc := NewService(nil)
	assert.NotPanics(t, func() { svc.Log(context.Background(), ActionCancelAll, "", nil) })
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))

	_, err = NewLogger("loud")
	assert.Error(t, err)
}
