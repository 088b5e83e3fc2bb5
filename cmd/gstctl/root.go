package main

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/taxdesk/go-gst/gst"
	"github.com/taxdesk/go-gst/tui"
)

func newRootCommand() (*cobra.Command, *cli) {
	c := &cli{}
	root := &cobra.Command{
		Use:           "gstctl",
		Short:         "Manage GST portal sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "config file (yaml, json or env)")
	flags.String("log-level", "", "log level: trace, debug, info, warn, error")
	flags.String("log-format", "", "log format: console or json")
	flags.String("otlp-url", "", "OTLP/HTTP collector url")
	flags.Bool("no-telemetry", false, "disable OpenTelemetry export")

	root.AddCommand(
		newLoginCommand(c),
		newOTPCommand(c),
		newUseCommand(c),
		newStatusCommand(c),
		newSessionsCommand(c),
		newClearCommand(c),
		newLogoutCommand(c),
		newRefreshCommand(c),
		newConfigCommand(c),
	)
	return root, c
}

// explain attaches an operator hint for the session errors a user can act on.
func explain(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, gst.ErrNoActiveSession):
		return errors.WithHint(err, "no portal session is open for this GSTIN; run "+tui.Command("login"))
	case errors.Is(err, gst.ErrSuperseded):
		return errors.WithHint(err, "a newer OTP was requested; verify the latest OTP instead")
	}
	switch gst.KindOf(err) {
	case gst.KindNetwork:
		return errors.WithHint(err, "the backend could not be reached; check your connection and GSTCLIENT_BASE_URL")
	case gst.KindSessionExpired:
		return errors.WithHint(err, "the session has expired; run "+tui.Command("login"))
	}
	return err
}
