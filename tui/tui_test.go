package tui

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevTTY := Output, HasTTY
	Output, HasTTY = &buf, false
	t.Cleanup(func() {
		Output, HasTTY = prevOut, prevTTY
	})
	return &buf
}

func TestFormatRemaining(t *testing.T) {
	assert.Equal(t, "expired", FormatRemaining(time.Hour, false))
	assert.Equal(t, "<1m", FormatRemaining(59*time.Second, true))
	assert.Equal(t, "1h30m", FormatRemaining(90*time.Minute+20*time.Second, true))
	assert.Equal(t, "6h", FormatRemaining(6*time.Hour, true))
}

func TestMessagesWriteToOutput(t *testing.T) {
	buf := captureOutput(t)
	ShowSuccess("session for %s is ready", "27AAMCR5575Q1ZA")
	ShowWarning("no active session")
	out := buf.String()
	assert.Contains(t, out, "session for 27AAMCR5575Q1ZA is ready")
	assert.Contains(t, out, "no active session")
}

func TestRedrawWithoutTTYAppends(t *testing.T) {
	buf := captureOutput(t)
	Redraw("first")
	Redraw("second")
	assert.Equal(t, "first\nsecond\n", buf.String())
}

func TestShowBannerSkippedWithoutTTY(t *testing.T) {
	buf := captureOutput(t)
	ShowBanner("Login", "Enter your GST portal username")
	assert.Empty(t, buf.String())
	assert.Contains(t, Banner("Login", "Enter your GST portal username"), "Login")
}

func TestTableContainsCells(t *testing.T) {
	out := Table([]string{"GSTIN", "STATE"}, [][]string{{"27AAMCR5575Q1ZA", "AUTHENTICATED"}})
	assert.Contains(t, out, "GSTIN")
	assert.Contains(t, out, "27AAMCR5575Q1ZA")
	assert.Contains(t, out, "AUTHENTICATED")
}

func TestAskWithoutTTYUsesDefault(t *testing.T) {
	captureOutput(t)
	assert.True(t, Ask(nil, "Clear all sessions?", true))
	assert.False(t, Ask(nil, "Clear all sessions?", false))
}

func TestCommand(t *testing.T) {
	assert.Contains(t, Command("otp", "verify"), "gstctl otp verify")
}
