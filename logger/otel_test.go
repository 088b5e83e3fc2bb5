package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/noop"
)

func TestOtelLoggerWithMergesMetadata(t *testing.T) {
	noopLogger := noop.NewLoggerProvider().Logger("test")

	logger := &otelLogger{
		metadata:   make(map[string]log.Value),
		logLevel:   LevelTrace,
		otelLogger: noopLogger,
	}

	baseLogger := logger.With(map[string]interface{}{
		"base_key": "base_value",
		"shared":   "from_base",
	}).(*otelLogger)

	extendedLogger := baseLogger.With(map[string]interface{}{
		"extra_key": "extra_value",
		"shared":    "from_extended",
	}).(*otelLogger)

	assert.Equal(t, 3, len(extendedLogger.metadata))
	assert.Equal(t, "base_value", extendedLogger.metadata["base_key"].AsString())
	assert.Equal(t, "extra_value", extendedLogger.metadata["extra_key"].AsString())
	assert.Equal(t, "from_extended", extendedLogger.metadata["shared"].AsString())
}

func TestOtelLoggerLevels(t *testing.T) {
	l := NewOtelLogger(noop.NewLoggerProvider().Logger("test"), LevelWarn)
	assert.False(t, l.IsLevelEnabled(LevelInfo))
	assert.True(t, l.IsLevelEnabled(LevelWarn))
	assert.False(t, l.IsLevelEnabled(LevelNone))
	l.WithPrefix("[gst]").Warn("session %s expired", "sess_1")
}

func TestToLogValue(t *testing.T) {
	assert.Equal(t, "x", toLogValue("x").AsString())
	assert.Equal(t, int64(7), toLogValue(7).AsInt64())
	assert.True(t, toLogValue(true).AsBool())
	assert.Len(t, toLogValue([]interface{}{"a", 1}).AsSlice(), 2)
	assert.Len(t, toLogValue(map[string]interface{}{"a": 1}).AsMap(), 1)
}
