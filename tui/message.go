package tui

import (
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/taxdesk/go-gst/logger"
)

var (
	messageOKColor      = lipgloss.AdaptiveColor{Light: "#009900", Dark: "#00FF00"}
	messageOKStyle      = lipgloss.NewStyle().Foreground(messageOKColor)
	messageTextColor    = lipgloss.AdaptiveColor{Light: "#000000", Dark: "#FFFFFF"}
	messageTextStyle    = lipgloss.NewStyle().Foreground(messageTextColor)
	messageWarningColor = lipgloss.AdaptiveColor{Light: "#990000", Dark: "#FF0000"}
	messageWarningStyle = lipgloss.NewStyle().Foreground(messageWarningColor)
	messageLockColor    = lipgloss.AdaptiveColor{Light: "#DE970B", Dark: "#F6BE00"}
	messageLockStyle    = lipgloss.NewStyle().Foreground(messageLockColor)
)

func show(icon string, style lipgloss.Style, msg string, args ...any) {
	fmt.Fprintln(Output, style.Render(icon)+messageTextStyle.Render(fmt.Sprintf(msg, args...)))
}

func ShowSuccess(msg string, args ...any) {
	show(" ✓ ", messageOKStyle, msg, args...)
}

// ShowLock reports an authenticated session.
func ShowLock(msg string, args ...any) {
	show(" 🔒 ", messageLockStyle, msg, args...)
}

func ShowWarning(msg string, args ...any) {
	show(" ✕ ", messageWarningStyle, msg, args...)
}

func ShowError(msg string, args ...any) {
	show(" ⚠ ", messageWarningStyle, msg, args...)
}

// Ask asks a yes/no question. Without a terminal it returns defaultValue.
func Ask(logger logger.Logger, title string, defaultValue bool) bool {
	if !HasTTY {
		return defaultValue
	}
	confirm := defaultValue
	if err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&confirm).
		Run(); err != nil {
		logger.Fatal("%s", err)
	}
	return confirm
}
