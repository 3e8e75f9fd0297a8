// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"net/url"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/credreset/internal/auth"
	"github.com/holomush/credreset/internal/auth/postgres"
	"github.com/holomush/credreset/internal/config"
	"github.com/holomush/credreset/internal/logging"
	"github.com/holomush/credreset/internal/notify"
	"github.com/holomush/credreset/internal/observability"
	"github.com/holomush/credreset/internal/store"
	"github.com/holomush/credreset/internal/xdg"
)

// Deps contains injectable dependencies for the commands.
// All fields with nil values will use their default implementations.
type Deps struct {
	// StoreFactory opens the credential store.
	// Default: openPostgres
	StoreFactory func(ctx context.Context, cfg config.Config) (*StoreHandle, error)

	// SenderFactory builds the notification transport.
	// Default: buildSender
	SenderFactory func(ctx context.Context, cfg config.NotifySettings, logger *slog.Logger) (auth.NotificationSender, func(), error)

	// MigratorFactory opens a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (Migrator, error)

	// ObservabilityServerFactory creates an observability server.
	// Default: observability.NewServer with the auth metrics registered
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer
}

// StoreHandle is an open credential store and how to probe and release it.
type StoreHandle struct {
	Store auth.CredentialStore
	Ready observability.ReadinessChecker
	Close func()
}

// Migrator interface wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	Close() error
}

// ObservabilityServer interface wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.StoreFactory == nil {
		out.StoreFactory = openPostgres
	}
	if out.SenderFactory == nil {
		out.SenderFactory = buildSender
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (Migrator, error) {
			m, err := store.NewMigrator(databaseURL)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker, auth.RegisterMetrics)
		}
	}
	return &out
}

// env is what every command starts from: validated configuration and a logger.
type env struct {
	cfg    config.Config
	logger *slog.Logger
	deps   *Deps
}

// loadEnv reads configuration for cmd and installs the default logger.
func loadEnv(cmd *cobra.Command, deps *Deps) (*env, error) {
	path := configFile
	if path == "" {
		path, _ = xdg.DefaultConfigFile()
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.Setup("credreset", version, cfg.LogFormat, level, cmd.ErrOrStderr())
	slog.SetDefault(logger)
	return &env{cfg: cfg, logger: logger, deps: deps.withDefaults()}, nil
}

func (e *env) openStore(ctx context.Context) (*StoreHandle, error) {
	h, err := e.deps.StoreFactory(ctx, e.cfg)
	if err != nil {
		// DB_CONNECT_FAILED applies only when the factory error carries no code.
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "open credential store").Wrap(err)
	}
	if h.Close == nil {
		h.Close = func() {}
	}
	return h, nil
}

// newController wires the reset flow around s. The returned cleanup drains
// pending notifications and then releases the transport.
func (e *env) newController(ctx context.Context, s auth.CredentialStore) (*auth.ResetFlowController, func(context.Context), error) {
	hasher, err := auth.NewHasher(e.cfg.HasherConfig())
	if err != nil {
		return nil, nil, err
	}
	tokens, err := auth.NewTokenGenerator(e.cfg.TokenConfig())
	if err != nil {
		return nil, nil, err
	}
	sender, closeSender, err := e.deps.SenderFactory(ctx, e.cfg.Notify, e.logger)
	if err != nil {
		return nil, nil, err
	}
	if e.cfg.Notify.Retries > 0 {
		sender = notify.NewRetrying(sender, e.cfg.Notify.Retries, e.cfg.Notify.RetryBackoff, e.logger)
	}

	ctrl, err := auth.NewResetFlowController(s, hasher, tokens, e.cfg.PasswordPolicy(), sender,
		auth.WithLogger(e.logger),
		auth.WithNotificationTimeout(e.cfg.Notify.Timeout),
	)
	if err != nil {
		closeSender()
		return nil, nil, err
	}

	cleanup := func(ctx context.Context) {
		if err := ctrl.Drain(ctx); err != nil {
			e.logger.WarnContext(ctx, "pending notifications abandoned", "error", err)
		}
		closeSender()
	}
	return ctrl, cleanup, nil
}

// openPostgres connects the pool and wraps it in the PostgreSQL credential store.
func openPostgres(ctx context.Context, cfg config.Config) (*StoreHandle, error) {
	pool, err := store.Open(ctx, cfg.DatabaseURL, cfg.PoolConfig())
	if err != nil {
		return nil, err
	}
	return &StoreHandle{
		Store: postgres.NewCredentialStore(pool, postgres.WithTxTimeout(cfg.Store.TxTimeout)),
		Ready: func(ctx context.Context) error {
			//nolint:wrapcheck // readiness probe only logs the error
			return pool.Ping(ctx)
		},
		Close: pool.Close,
	}, nil
}

// buildSender returns the configured transport and a function releasing it.
func buildSender(ctx context.Context, cfg config.NotifySettings, logger *slog.Logger) (auth.NotificationSender, func(), error) {
	switch cfg.Provider {
	case config.ProviderSES:
		client, err := notify.NewSESClient(ctx, cfg.SES.Region)
		if err != nil {
			return nil, nil, err
		}
		resetURL, err := url.Parse(cfg.SES.ResetURL)
		if err != nil {
			return nil, nil, oops.Code("CONFIG_INVALID").With("reset_url", cfg.SES.ResetURL).Wrap(err)
		}
		sender, err := notify.NewSESSender(client, notify.SESConfig{
			Source:   cfg.SES.Source,
			Template: cfg.SES.Template,
			ResetURL: *resetURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return sender, func() {}, nil

	case config.ProviderAMQP:
		conn, err := notify.DialAMQP(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			return nil, nil, err
		}
		sender, err := notify.NewAMQPSender(conn.Channel, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return sender, func() {
			if err := conn.Close(); err != nil {
				logger.Warn("closing amqp connection", "error", err)
			}
		}, nil

	case config.ProviderLog, "":
		return notify.NewLogSender(logger, cfg.RevealToken), func() {}, nil

	default:
		return nil, nil, oops.Code("CONFIG_INVALID").With("provider", cfg.Provider).Errorf("unknown notification provider")
	}
}

// readSecret reads the first line of in, or prompts on the terminal.
func readSecret(fromStdin bool, in io.Reader, w io.Writer, prompt func(io.Writer) (string, error)) (string, error) {
	if fromStdin {
		return readLine(in)
	}
	return prompt(w)
}
