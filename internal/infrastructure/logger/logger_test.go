package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestScopedFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := New(core).WithComponent("profile-tracker")

	log.WithTask(7, "0xabc").Debug("Started profile build")
	log.WithSession("viewer-1").Info("Session evicted")

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)

	first := entries[0].ContextMap()
	assert.Equal(t, "profile-tracker", first["component"])
	assert.Equal(t, uint64(7), first["task_id"])
	assert.Equal(t, "0xabc", first["root"])

	second := entries[1].ContextMap()
	assert.Equal(t, "viewer-1", second["session"])
	assert.NotContains(t, second, "task_id")
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	log, err := NewLogger("verbose", "production")
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, log.Core().Enabled(zapcore.InfoLevel))

	dev, err := NewLogger("debug", "development")
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))
}
