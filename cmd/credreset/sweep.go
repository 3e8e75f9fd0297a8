// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/credreset/internal/auth"
)

// shutdownTimeout bounds stopping the observability server.
const shutdownTimeout = 5 * time.Second

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd(deps *Deps) *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Purge finished reset tokens",
		Long: `Delete reset tokens that were consumed, superseded or expired longer ago
than the retention window. Runs until interrupted unless --once is given,
serving metrics and health probes on --metrics-addr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd, deps, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "sweep a single time and exit")
	return cmd
}

func runSweep(cmd *cobra.Command, deps *Deps, once bool) error {
	e, err := loadEnv(cmd, deps)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	h, err := e.openStore(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	sweeper, err := auth.NewSweeper(h.Store, e.cfg.Sweep.Interval, e.cfg.Sweep.Retention,
		auth.WithSweeperLogger(e.logger))
	if err != nil {
		return err
	}

	if once {
		n, err := sweeper.SweepOnce(ctx)
		if err != nil {
			return err
		}
		cmd.Printf("Purged %d reset tokens.\n", n)
		return nil
	}

	var obsServer ObservabilityServer
	if e.cfg.MetricsAddr != "" {
		obsServer = e.deps.ObservabilityServerFactory(e.cfg.MetricsAddr, h.Ready)
		errCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", e.cfg.MetricsAddr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, errCh, "observability")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx, func(n int64, err error) {
			if obsServer != nil {
				obsServer.Metrics().RecordSweep(err)
			}
			if err == nil && n > 0 {
				slog.InfoContext(ctx, "purged reset tokens", "count", n)
			}
		})
	}()

	cmd.Println("Sweeper started")
	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	cancel()
	<-done

	if obsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			slog.Warn("error stopping observability server", "error", err)
		}
	}

	slog.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels ctx when the server reports an error and
// returns once the channel closes or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			slog.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err,
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
