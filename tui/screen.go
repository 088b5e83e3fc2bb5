package tui

import (
	"fmt"

	tm "github.com/buger/goterm"
)

// ClearScreen clears the screen and moves the cursor to the top left corner
func ClearScreen() {
	if !HasTTY {
		return
	}
	tm.Clear()
	tm.MoveCursor(1, 1)
	tm.Flush()
}

// Redraw replaces the screen contents with content. Without a terminal the
// content is appended instead.
func Redraw(content string) {
	ClearScreen()
	fmt.Fprintln(Output, content)
}
