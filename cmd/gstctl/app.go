package main

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/taxdesk/go-gst/api"
	"github.com/taxdesk/go-gst/config"
	"github.com/taxdesk/go-gst/env"
	"github.com/taxdesk/go-gst/gst"
	"github.com/taxdesk/go-gst/logger"
	"github.com/taxdesk/go-gst/store"
	"github.com/taxdesk/go-gst/telemetry"
	"github.com/taxdesk/go-gst/tui"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const serviceName = "gstctl"

// cli carries what the persistent pre-run builds so subcommands and main can
// share it.
type cli struct {
	cfg     *config.Config
	log     logger.Logger
	client  *api.Client
	manager *gst.Manager
	out     io.Writer
	closers []func()
}

func (c *cli) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func (c *cli) setup(cmd *cobra.Command) error {
	ctx := cmd.Context()
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := env.ApplyFlags(cmd, cfg); err != nil {
		return err
	}
	c.cfg = cfg
	c.out = cmd.OutOrStdout()
	tui.Output = c.out

	log, shutdown, err := env.NewTelemetry(ctx, cmd, cfg, serviceName, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	c.closers = append(c.closers, shutdown)
	ctx, log, span := telemetry.StartSpan(ctx, log, otel.Tracer(serviceName), cmd.CommandPath(),
		attribute.String("store", cfg.Store))
	c.closers = append(c.closers, func() { span.End() })
	cmd.SetContext(ctx)
	c.log = log

	opts := []api.Option{
		api.WithRefreshPath(cfg.RefreshPath),
		api.WithTimeout(cfg.Timeout()),
		api.WithTransportRetries(cfg.TransportRetries),
		api.WithRefreshFailedHook(func(err error) {
			log.Warn("credential refresh failed, sign in to the portal again: %s", err)
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, api.WithToken(cfg.Token))
	}
	client, err := api.New(log, cfg.BaseURL, opts...)
	if err != nil {
		return err
	}
	c.client = client

	repo, closeRepo, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	c.closers = append(c.closers, func() {
		if err := closeRepo(); err != nil {
			log.Warn("error closing session store: %s", err)
		}
	})

	manager, err := gst.NewManager(ctx, log, gst.NewHTTPBackend(client), repo, gst.WithSessionTTL(cfg.SessionTTL()))
	if err != nil {
		return errors.WithHint(err, "the session store could not be read; check GSTCLIENT_STORE and GSTCLIENT_ENCRYPTION_KEY")
	}
	c.manager = manager
	log.Debug("using %s store, backend %s", cfg.Store, client.BaseURL())
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (gst.Repository, func() error, error) {
	opts := []store.Option{store.WithKey(cfg.StorageKey)}
	if cfg.EncryptionKey != "" {
		opts = append(opts, store.WithEncryption(cfg.EncryptionKey))
	}
	nop := func() error { return nil }

	switch cfg.Store {
	case config.StoreMemory:
		repo, err := store.NewMemory(opts...)
		if err != nil {
			return nil, nil, err
		}
		return repo, nop, nil
	case config.StoreFile:
		path, err := cfg.ResolvedStorePath()
		if err != nil {
			return nil, nil, err
		}
		repo, err := store.NewFile(path, opts...)
		if err != nil {
			return nil, nil, err
		}
		return repo, nop, nil
	case config.StoreRedis:
		repo, err := store.NewRedisFromURL(ctx, cfg.RedisURL, opts...)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	case config.StoreSQLite:
		path, err := cfg.ResolvedStorePath()
		if err != nil {
			return nil, nil, err
		}
		repo, err := store.NewSQLite(ctx, path, opts...)
		if err != nil {
			return nil, nil, err
		}
		return repo, repo.Close, nil
	}
	return nil, nil, errors.Newf("unknown store %q", cfg.Store)
}
