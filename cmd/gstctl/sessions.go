package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/taxdesk/go-gst/gst"
	"github.com/taxdesk/go-gst/tui"
	"gopkg.in/yaml.v3"
)

type sessionView struct {
	GSTIN     string     `json:"gstin" yaml:"gstin"`
	Username  string     `json:"username" yaml:"username"`
	State     string     `json:"state" yaml:"state"`
	Active    bool       `json:"active" yaml:"active"`
	SessionID string     `json:"sessionId,omitempty" yaml:"session_id,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty" yaml:"expires_at,omitempty"`
	Remaining string     `json:"remaining" yaml:"remaining"`
}

func newSessionView(s gst.Session, active bool, now time.Time) sessionView {
	v := sessionView{
		GSTIN:     s.GSTIN,
		Username:  s.Username,
		State:     s.State(now).String(),
		Active:    active,
		SessionID: s.SessionID,
		Remaining: tui.FormatRemaining(s.Remaining(now)),
	}
	if !s.ExpiresAt.IsZero() {
		exp := s.ExpiresAt.UTC()
		v.ExpiresAt = &exp
	}
	return v
}

func (c *cli) views() []sessionView {
	state := c.manager.State()
	now := c.manager.Now()
	views := make([]sessionView, 0, len(state.Sessions))
	for gstin, s := range state.Sessions {
		views = append(views, newSessionView(s, gstin == state.ActiveGSTIN, now))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].GSTIN < views[j].GSTIN })
	return views
}

func writeViews(w io.Writer, format string, views []sessionView) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(views)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		if len(views) == 0 {
			fmt.Fprintln(w, tui.Muted("No sessions"))
			return nil
		}
		rows := make([][]string, 0, len(views))
		for _, v := range views {
			active := ""
			if v.Active {
				active = "*"
			}
			rows = append(rows, []string{active, v.GSTIN, v.Username, v.State, v.Remaining})
		}
		fmt.Fprintln(w, tui.Table([]string{"", "GSTIN", "USERNAME", "STATE", "REMAINING"}, rows))
		return nil
	}
	return errors.Newf("unknown output format %q, expected table, json or yaml", format)
}

func newSessionsCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"ls"},
		Short:   "List stored sessions",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("output")
			return writeViews(c.out, format, c.views())
		},
	}
	cmd.Flags().StringP("output", "o", "table", "output format: table, json or yaml")
	return cmd
}

func newUseCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "use [gstin]",
		Short: "Make a GSTIN active, restoring an open portal session when there is one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var gstin string
			if len(args) == 1 {
				gstin = args[0]
			} else {
				picked, err := c.pick("Which GSTIN?")
				if err != nil {
					return err
				}
				gstin = picked
			}
			if err := gst.ValidateGSTIN(gstin); err != nil {
				return err
			}
			var res gst.Outcome
			err := tui.Spin(cmd.Context(), "Looking for a session for "+gstin, func(ctx context.Context) error {
				var err error
				res, err = c.manager.InitializeSession(ctx, gstin).Unwrap()
				return err
			})
			switch {
			case errors.Is(err, gst.ErrNoActiveSession):
				tui.ShowWarning("%s is active but has no open portal session; run %s", gstin, tui.Command("login", "-g", gstin))
				return nil
			case err != nil:
				return explain(err)
			case res.AlreadyActive:
				tui.ShowLock("%s is active (%s left)", gstin, tui.FormatRemaining(res.Session.Remaining(c.manager.Now())))
			case res.Restored:
				tui.ShowLock("Restored the portal session for %s as %s", gstin, res.Session.Username)
			}
			return nil
		},
	}
}

// pick asks for one of the stored GSTINs on a terminal.
func (c *cli) pick(title string) (string, error) {
	views := c.views()
	if !tui.HasTTY || len(views) == 0 {
		return "", errors.New("a GSTIN is required")
	}
	options := make([]tui.Option, 0, len(views))
	for _, v := range views {
		options = append(options, tui.Option{ID: v.GSTIN, Text: v.GSTIN + " " + tui.Muted(v.State), Selected: v.Active})
	}
	return tui.Select(c.log, title, "", options), nil
}

func (c *cli) renderStatus(gstin string) string {
	active := c.manager.State().ActiveGSTIN
	if gstin == "" {
		gstin = active
	}
	if gstin == "" {
		return tui.Muted("No active GSTIN. Run " + tui.Command("login") + " to sign in.")
	}
	s, ok := c.manager.Session(gstin)
	if !ok {
		return tui.Muted("No session for " + gstin + ". Run " + tui.Command("use", gstin) + " or " + tui.Command("login") + ".")
	}
	now := c.manager.Now()
	v := newSessionView(s, gstin == active, now)
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", tui.Title("GSTIN"), tui.Bold(v.GSTIN))
	if v.Username != "" {
		fmt.Fprintf(&b, "%s %s\n", tui.Title("User"), v.Username)
	}
	fmt.Fprintf(&b, "%s %s\n", tui.Title("State"), v.State)
	remaining, authenticated := s.Remaining(now)
	fmt.Fprintf(&b, "%s %s", tui.Title("Expires in"), tui.Countdown(remaining, authenticated))
	if err := c.manager.LastError(); err != nil {
		fmt.Fprintf(&b, "\n%s %s", tui.Title("Last error"), tui.Warning(err.Error()))
	}
	return b.String()
}

func (c *cli) check(ctx context.Context, gstin string) error {
	err := tui.Spin(ctx, "Checking session status", func(ctx context.Context) error {
		return c.manager.CheckSessionStatus(ctx, gstin).Err
	})
	return explain(err)
}

// watch calls render now and then every interval until ctx is done.
func watch(ctx context.Context, interval time.Duration, render func(ctx context.Context) error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := render(ctx); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
		}
	}
}

func newStatusCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [gstin]",
		Short: "Show a session and the time left on it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var gstin string
			if len(args) == 1 {
				gstin = args[0]
				if err := gst.ValidateGSTIN(gstin); err != nil {
					return err
				}
			}
			checkBackend, _ := cmd.Flags().GetBool("check")
			interval, _ := cmd.Flags().GetDuration("watch")
			render := func(ctx context.Context) error {
				if checkBackend {
					if err := c.check(ctx, gstin); err != nil && gst.KindOf(err) != gst.KindSessionExpired {
						if interval <= 0 {
							return err
						}
						c.log.Warn("status check failed: %s", err)
					}
				}
				if interval > 0 {
					tui.Redraw(c.renderStatus(gstin))
				} else {
					fmt.Fprintln(c.out, c.renderStatus(gstin))
				}
				return nil
			}
			if interval <= 0 {
				return render(cmd.Context())
			}
			return watch(cmd.Context(), interval, render)
		},
	}
	cmd.Flags().Bool("check", false, "ask the backend whether the session is still valid")
	cmd.Flags().Duration("watch", 0, "redraw every interval, e.g. 60s, until interrupted")
	return cmd
}

func newClearCommand(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear [gstin...]",
		Short: "Forget stored sessions (the active one by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			targets := args
			switch {
			case all:
				targets = nil
				for _, v := range c.views() {
					targets = append(targets, v.GSTIN)
				}
			case len(targets) == 0 && tui.HasTTY && len(c.views()) > 1:
				options := make([]tui.Option, 0)
				for _, v := range c.views() {
					options = append(options, tui.Option{ID: v.GSTIN, Text: v.GSTIN, Selected: v.Active})
				}
				targets = tui.MultiSelect(c.log, "Sessions to clear", "", options)
			case len(targets) == 0:
				targets = []string{""}
			}
			for _, gstin := range targets {
				res, err := c.manager.ClearSession(cmd.Context(), gstin).Unwrap()
				if err != nil {
					return explain(err)
				}
				if res.Session.IsZero() {
					tui.ShowWarning("Nothing to clear")
					continue
				}
				tui.ShowSuccess("Cleared the session for %s", res.Session.GSTIN)
			}
			return nil
		},
	}
	cmd.Flags().Bool("all", false, "clear every stored session")
	return cmd
}

func newLogoutCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget every stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n := len(c.manager.State().Sessions)
			if err := c.manager.Logout(cmd.Context()).Err; err != nil {
				return explain(err)
			}
			if n == 0 {
				tui.ShowWarning("No stored sessions")
				return nil
			}
			tui.ShowSuccess("Logged out of %d session(s)", n)
			return nil
		},
	}
}

func newRefreshCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the backend credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.Refresh(cmd.Context()); err != nil {
				return errors.WithHint(err, "sign in to the portal again")
			}
			tui.ShowSuccess("Credential refreshed")
			return nil
		},
	}
}
