package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetLevelFromEnv(t *testing.T) {
	tests := []struct {
		name          string
		envValue      string
		expectedLevel LogLevel
	}{
		{
			name:          "trace level",
			envValue:      "trace",
			expectedLevel: LevelTrace,
		},
		{
			name:          "debug level",
			envValue:      "debug",
			expectedLevel: LevelDebug,
		},
		{
			name:          "warn alias",
			envValue:      "warning",
			expectedLevel: LevelWarn,
		},
		{
			name:          "error level",
			envValue:      "error",
			expectedLevel: LevelError,
		},
		{
			name:          "uppercase trace",
			envValue:      "TRACE",
			expectedLevel: LevelTrace,
		},
		{
			name:          "off disables",
			envValue:      "off",
			expectedLevel: LevelNone,
		},
		{
			name:          "empty string",
			envValue:      "",
			expectedLevel: LevelInfo,
		},
		{
			name:          "invalid value",
			envValue:      "invalid",
			expectedLevel: LevelInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvLogLevel, tt.envValue)
			assert.Equal(t, tt.expectedLevel, GetLevelFromEnv())
		})
	}
}

func TestParseLevelReportsUnknown(t *testing.T) {
	level, ok := ParseLevel("loud")
	assert.False(t, ok)
	assert.Equal(t, LevelInfo, level)

	level, ok = ParseLevel(" Debug ")
	assert.True(t, ok)
	assert.Equal(t, LevelDebug, level)
	assert.Equal(t, "debug", level.String())
}

func TestLogLevelConstants(t *testing.T) {
	assert.Equal(t, LogLevel(0), LevelTrace)
	assert.Equal(t, LogLevel(1), LevelDebug)
	assert.Equal(t, LogLevel(2), LevelInfo)
	assert.Equal(t, LogLevel(3), LevelWarn)
	assert.Equal(t, LogLevel(4), LevelError)
	assert.Equal(t, LogLevel(5), LevelNone)
}

func TestWithKV(t *testing.T) {
	testLogger := NewTestLogger()
	kvLogger, ok := WithKV(testLogger, "gstin", "27AAMCR5575Q1ZA").(*TestLogger)
	assert.True(t, ok)
	kvLogger.Info("hello")

	logs := testLogger.Logs()
	assert.Len(t, logs, 1)
	assert.Equal(t, "27AAMCR5575Q1ZA", logs[0].Metadata["gstin"])
}
