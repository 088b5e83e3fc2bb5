package tui

import (
	"context"

	"github.com/charmbracelet/huh/spinner"
	"github.com/cockroachdb/errors"
)

// Spin runs action while a spinner with title is displayed and returns the
// action's error. Without a terminal the action just runs.
func Spin(ctx context.Context, title string, action func(ctx context.Context) error) error {
	if !HasTTY {
		return action(ctx)
	}
	spinCtx, stop := context.WithCancel(ctx)
	var err error
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer stop()
		err = action(ctx)
	}()
	// the spinner runs until the action finishes and cancels spinCtx
	runErr := spinner.New().Context(spinCtx).Title(title).Run()
	<-done
	if err == nil && runErr != nil && !errors.Is(runErr, context.Canceled) {
		err = runErr
	}
	return err
}
