package tui

import (
	"github.com/charmbracelet/huh"
	"github.com/taxdesk/go-gst/logger"
)

type Option struct {
	ID       string
	Text     string
	Selected bool
}

func toHuhOptions(items []Option) []huh.Option[string] {
	opts := make([]huh.Option[string], 0, len(items))
	for _, item := range items {
		opts = append(opts, huh.NewOption(item.Text, item.ID).Selected(item.Selected))
	}
	return opts
}

// Select asks for one of items and returns its ID.
func Select(logger logger.Logger, title string, description string, items []Option) string {
	var selected string
	if err := huh.NewSelect[string]().
		Title(title).
		Description(description).
		Options(toHuhOptions(items)...).
		Value(&selected).
		WithTheme(inputTheme).
		Run(); err != nil {
		logger.Fatal("%s", err)
	}
	return selected
}

// MultiSelect asks for any number of items and returns their IDs.
func MultiSelect(logger logger.Logger, title string, description string, items []Option) []string {
	var selected []string
	if description == "" {
		description = "Toggle selection by pressing the spacebar\nPress enter to confirm"
	}
	if err := huh.NewMultiSelect[string]().
		Title(title).
		Description(description + "\n").
		Options(toHuhOptions(items)...).
		Value(&selected).
		WithTheme(inputTheme).
		Run(); err != nil {
		logger.Fatal("%s", err)
	}
	return selected
}
