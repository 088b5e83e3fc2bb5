package main

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/taxdesk/go-gst/gst"
	"github.com/taxdesk/go-gst/tui"
)

// prompt returns value, asking for it on a terminal when it is empty.
func (c *cli) prompt(value, flag, title, placeholder string, validate func(string) error) (string, error) {
	if value != "" {
		return value, nil
	}
	if !tui.HasTTY {
		return "", errors.Newf("--%s is required", flag)
	}
	return tui.Input(c.log, title, "", placeholder, validate), nil
}

func (c *cli) credentials(cmd *cobra.Command) (string, string, error) {
	username, _ := cmd.Flags().GetString("username")
	gstin, _ := cmd.Flags().GetString("gstin")
	username, err := c.prompt(username, "username", "GST portal username", "", gst.ValidateUsername)
	if err != nil {
		return "", "", err
	}
	gstin, err = c.prompt(gstin, "gstin", "GSTIN", c.manager.State().ActiveGSTIN, gst.ValidateGSTIN)
	if err != nil {
		return "", "", err
	}
	// validation always runs here so bad input never reaches the backend
	if err := gst.ValidateCredentials(username, gstin); err != nil {
		return "", "", err
	}
	return username, gstin, nil
}

func (c *cli) generate(ctx context.Context, username, gstin string) error {
	var res gst.Outcome
	err := tui.Spin(ctx, "Requesting OTP for "+gstin, func(ctx context.Context) error {
		var err error
		res, err = c.manager.GenerateOTP(ctx, username, gstin).Unwrap()
		return err
	})
	if err != nil {
		return explain(err)
	}
	tui.ShowSuccess("OTP sent to the mobile registered for %s", res.Session.GSTIN)
	return nil
}

func (c *cli) verify(ctx context.Context, otp string) error {
	if otp == "" {
		if !tui.HasTTY {
			return errors.New("an OTP is required")
		}
		otp = tui.Secret(c.log, "OTP", "Enter the 6 digit OTP from the GST portal", 6, gst.ValidateOTP)
	}
	if err := gst.ValidateOTP(otp); err != nil {
		return err
	}
	var res gst.Outcome
	err := tui.Spin(ctx, "Verifying OTP", func(ctx context.Context) error {
		var err error
		res, err = c.manager.VerifyOTP(ctx, otp).Unwrap()
		return err
	})
	if err != nil {
		return explain(err)
	}
	remaining, ok := c.manager.Remaining(res.Session.GSTIN)
	tui.ShowLock("%s is authenticated as %s (%s left)", res.Session.GSTIN, res.Session.Username, tui.FormatRemaining(remaining, ok))
	return nil
}

func newLoginCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Request an OTP and verify it in one step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tui.ShowBanner("GST portal login", "An OTP will be sent to the mobile number registered with the GST portal.")
			username, gstin, err := c.credentials(cmd)
			if err != nil {
				return err
			}
			otp, _ := cmd.Flags().GetString("otp")
			if otp != "" {
				if err := gst.ValidateOTP(otp); err != nil {
					return err
				}
			}
			if err := c.generate(cmd.Context(), username, gstin); err != nil {
				return err
			}
			return c.verify(cmd.Context(), otp)
		},
	}
	cmd.Flags().StringP("username", "u", "", "GST portal username")
	cmd.Flags().StringP("gstin", "g", "", "GSTIN to sign in to")
	cmd.Flags().String("otp", "", "OTP, when already known")
	return cmd
}

func newOTPCommand(c *cli) *cobra.Command {
	otp := &cobra.Command{
		Use:   "otp",
		Short: "Request or verify an OTP separately",
	}
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Request an OTP for a GSTIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			username, gstin, err := c.credentials(cmd)
			if err != nil {
				return err
			}
			if err := c.generate(cmd.Context(), username, gstin); err != nil {
				return err
			}
			tui.ShowSuccess("Run %s to finish signing in", tui.Command("otp", "verify", "<otp>"))
			return nil
		},
	}
	generate.Flags().StringP("username", "u", "", "GST portal username")
	generate.Flags().StringP("gstin", "g", "", "GSTIN to sign in to")

	verify := &cobra.Command{
		Use:   "verify [otp]",
		Short: "Verify the OTP for the pending session of the active GSTIN",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var code string
			if len(args) == 1 {
				code = args[0]
			}
			return c.verify(cmd.Context(), code)
		},
	}
	otp.AddCommand(generate, verify)
	return otp
}
