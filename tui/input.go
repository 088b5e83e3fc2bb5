package tui

import (
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/taxdesk/go-gst/logger"
)

var inputTheme = huh.ThemeBase16()

// Input prompts for a single value, re-asking until validate accepts it.
// An empty answer returns placeholder.
func Input(logger logger.Logger, title string, description string, placeholder string, validate func(string) error) string {
	var value string
	field := huh.NewInput().
		Title(title).
		Prompt("> ").
		Description(description).
		Placeholder(placeholder).
		Value(&value)
	if validate != nil {
		field = field.Validate(func(s string) error {
			if s == "" && placeholder != "" {
				return nil
			}
			return validate(strings.TrimSpace(s))
		})
	}
	if err := field.WithTheme(inputTheme).Run(); err != nil {
		logger.Fatal("%s", err)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return placeholder
	}
	return value
}

// Secret prompts without echoing the typed characters.
func Secret(logger logger.Logger, title string, description string, maxLength int, validate func(string) error) string {
	var value string
	field := huh.NewInput().
		Title(title).
		Prompt("> ").
		Description(description).
		CharLimit(maxLength).
		EchoMode(huh.EchoModePassword).
		Value(&value)
	if validate != nil {
		field = field.Validate(func(s string) error {
			return validate(strings.TrimSpace(s))
		})
	}
	if err := field.WithTheme(inputTheme).Run(); err != nil {
		logger.Fatal("%s", err)
	}
	return strings.TrimSpace(value)
}
