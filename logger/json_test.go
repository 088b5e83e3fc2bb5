package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferedJSONLogger(level LogLevel) (*jsonLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &jsonLogger{mu: &sync.Mutex{}, out: &buf, logLevel: level, sinkLogLevel: LevelNone, ts: &ts}, &buf
}

func TestJSONLoggerWritesEntry(t *testing.T) {
	l, buf := newBufferedJSONLogger(LevelDebug)
	l.WithPrefix("[gst]").With(map[string]interface{}{"gstin": "27AAMCR5575Q1ZA"}).Info("otp sent to %s", "jdoe")

	var entry JSONLogEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "INFO", entry.Severity)
	assert.Equal(t, "otp sent to jdoe", entry.Message)
	assert.Equal(t, "gst", entry.Component)
	assert.Equal(t, "27AAMCR5575Q1ZA", entry.Metadata["gstin"])
}

func TestJSONLoggerFiltersLevel(t *testing.T) {
	l, buf := newBufferedJSONLogger(LevelWarn)
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.False(t, l.IsLevelEnabled(LevelInfo))
}

func TestJSONLoggerTraceAndComponentMetadata(t *testing.T) {
	l, buf := newBufferedJSONLogger(LevelTrace)
	l.With(map[string]interface{}{"trace": "abc", "component": "api"}).Trace("x")

	var entry JSONLogEntry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "abc", entry.Trace)
	assert.Equal(t, "api", entry.Component)
	assert.Empty(t, entry.Metadata)
}

func TestJSONLoggerWithSink(t *testing.T) {
	var sink bytes.Buffer
	l := NewJSONLoggerWithSink(&sink, LevelInfo)
	l.Debug("nope")
	l.Error("boom")
	assert.Contains(t, sink.String(), `"boom"`)
	assert.NotContains(t, sink.String(), "nope")
}

func TestConsoleLoggerPrefixAndMetadata(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLoggerWithWriter(&buf, LevelInfo)
	l.WithPrefix("[api]").With(map[string]interface{}{"status": 401}).Warn("refresh started")
	l.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "[api]")
	assert.Contains(t, out, "refresh started")
	assert.Contains(t, out, `{"status":401}`)
	assert.NotContains(t, out, "hidden")
}
