package tui

import (
	"time"

	"github.com/xhit/go-str2duration/v2"
)

// FormatRemaining renders the time left on a session the way the status
// countdown shows it. ok false means the session is not authenticated.
func FormatRemaining(d time.Duration, ok bool) string {
	if !ok {
		return "expired"
	}
	d = d.Truncate(time.Minute)
	if d < time.Minute {
		return "<1m"
	}
	return str2duration.String(d)
}

// Countdown is FormatRemaining with styling: warnings under 30 minutes.
func Countdown(d time.Duration, ok bool) string {
	text := FormatRemaining(d, ok)
	if !ok || d < 30*time.Minute {
		return Warning(text)
	}
	return Secondary(text)
}
