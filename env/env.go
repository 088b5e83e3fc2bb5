// Package env turns a loaded config and the gstctl command line into a
// logger and, when configured, an OpenTelemetry export pipeline.
package env

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/taxdesk/go-gst/config"
	"github.com/taxdesk/go-gst/logger"
	"github.com/taxdesk/go-gst/telemetry"
)

// FlagOrEnv will try and get a flag from the cobra.Command and if not found, look it up in the environment
// and fallback to defaultValue if non found
func FlagOrEnv(cmd *cobra.Command, flagName string, envName string, defaultValue string) string {
	flagValue, _ := cmd.Flags().GetString(flagName)
	if flagValue != "" {
		return flagValue
	}
	if val, ok := os.LookupEnv(envName); ok && val != "" {
		return val
	}
	return defaultValue
}

// ApplyFlags lets --log-level and --log-format override cfg.
func ApplyFlags(cmd *cobra.Command, cfg *config.Config) error {
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		if err := cfg.SetLevel(level); err != nil {
			return err
		}
	}
	if format, _ := cmd.Flags().GetString("log-format"); format != "" {
		switch format {
		case config.FormatConsole, config.FormatJSON:
			cfg.LogFormat = format
		default:
			return errors.Newf("unknown log format %q", format)
		}
	}
	return nil
}

// NewLogger returns the console or JSON logger cfg asks for, writing to w.
func NewLogger(cfg *config.Config, w io.Writer) logger.Logger {
	log.SetFlags(0)
	if cfg.LogFormat == config.FormatJSON {
		return logger.NewJSONLoggerWithSink(w, cfg.Level())
	}
	return logger.NewConsoleLoggerWithWriter(w, cfg.Level())
}

// NewTelemetry returns a logger and shutdown function. When cfg has no
// OTLP_URL or the --no-telemetry flag is set, the plain logger is returned.
func NewTelemetry(ctx context.Context, cmd *cobra.Command, cfg *config.Config, serviceName string, w io.Writer) (logger.Logger, func(), error) {
	console := NewLogger(cfg, w)
	if noTelemetry, err := cmd.Flags().GetBool("no-telemetry"); err == nil && noTelemetry {
		return console, func() {}, nil
	}
	otlpURL := FlagOrEnv(cmd, "otlp-url", config.EnvPrefix+"_OTLP_URL", cfg.OTLPURL)
	if otlpURL == "" {
		return console, func() {}, nil
	}
	log, shutdown, err := telemetry.New(ctx, serviceName, otlpURL, cfg.OTLPToken, console)
	if err != nil {
		return nil, nil, errors.Wrap(err, "error creating telemetry")
	}
	return log, shutdown, nil
}
