// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/nexusgrid/nexusgrid/internal/observability"
	"github.com/nexusgrid/nexusgrid/pkg/errutil"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the service until interrupted",
		Long: `Open the storage backend, load or generate the token signing keys,
start the presence sweeper and the metrics server, and run until SIGINT or
SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runServe(cmd)
		},
	}
	cmd.Flags().String("metrics-addr", defaultMetricsAddr, "metrics/health HTTP address (empty = disabled)")
	return cmd
}

func (c *cli) runServe(cmd *cobra.Command) error {
	cfg, logger, err := c.setup(cmd)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	deps := c.deps.withDefaults()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.InfoContext(ctx, "starting nexusgrid", "backend", cfg.Backend, "game_id", cfg.GameID)
	rt, err := openRuntime(ctx, cfg, deps, logger)
	if err != nil {
		return err
	}
	defer rt.Close()

	presence := rt.Accounts.Presence()
	presence.Start(ctx)
	defer presence.Stop()

	var obsServer ObservabilityServer
	if cfg.MetricsAddr != "" {
		opts := append([]observability.ServerOption{
			observability.WithServerLogger(logger),
			observability.WithCheck("shutdown", func(context.Context) error { return ctx.Err() }),
		}, rt.readinessChecks()...)
		obsServer = deps.ObservabilityServerFactory(cfg.MetricsAddr, opts...)
		errCh, err := obsServer.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.MetricsAddr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, errCh, logger)
		logger.InfoContext(ctx, "observability server started", "addr", obsServer.Addr())
	}

	cmd.Println("nexusgrid ready")
	logger.InfoContext(ctx, "nexusgrid ready", "keys_dir", cfg.Keys.Dir)
	<-ctx.Done()
	logger.Info("shutting down")

	if obsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := obsServer.Stop(shutdownCtx); err != nil {
			errutil.LogError(logger, "error stopping observability server", err)
		}
	}
	logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels the process context when the server fails.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			errutil.LogError(logger, "observability server failed, shutting down", err)
			cancel()
		}
	case <-ctx.Done():
	}
}
