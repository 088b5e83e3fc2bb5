// Command gstctl drives GST portal sessions from a terminal: OTP login,
// switching the active GSTIN, status checks and logout.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/taxdesk/go-gst/tui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	root, c := newRootCommand()
	err := root.ExecuteContext(ctx)
	c.close()
	stop()
	if err != nil {
		tui.Output = os.Stderr
		tui.ShowError("%s", err)
		for _, hint := range errors.GetAllHints(err) {
			fmt.Fprintln(os.Stderr, tui.Muted("   "+hint))
		}
		os.Exit(1)
	}
}
