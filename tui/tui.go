// Package tui holds the terminal prompts and rendering used by gstctl.
package tui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

var (
	// HasTTY is false when stdout is redirected; prompts, spinners and screen
	// clearing are skipped in that case.
	HasTTY = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

	// Output receives everything the package prints.
	Output io.Writer = os.Stdout
)
