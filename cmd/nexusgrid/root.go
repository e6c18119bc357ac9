// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nexusgrid/nexusgrid/internal/logging"
)

// cli carries what every subcommand shares.
type cli struct {
	configFile string
	deps       *Deps
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	c := &cli{deps: deps}
	cmd := &cobra.Command{
		Use:   "nexusgrid",
		Short: "NexusGrid account, identity and server list service",
		Long: `NexusGrid stores player accounts and server identities, issues the
signed tokens that authenticate them, and keeps the list of game servers
players can join.`,
		SilenceUsage: true,
	}

	defaults := defaultConfig()
	f := cmd.PersistentFlags()
	f.StringVar(&c.configFile, "config", "", "config file path (default: XDG_CONFIG_HOME/nexusgrid/config.yaml)")
	f.String("backend", defaults.Backend, "storage backend (memory, postgres or remote)")
	f.String("database-url", "", "PostgreSQL URL (default: $DATABASE_URL)")
	f.String("remote.url", "", "remote data container service URL")
	f.String("remote.token", "", "bearer token for the remote data container service")
	f.Duration("remote.timeout", defaults.Remote.Timeout, "remote data container request timeout")
	f.String("keys.dir", defaults.Keys.Dir, "token signing key directory")
	f.String("textfilter.file", "", "replacement content filter phrase list")
	f.Duration("presence.idle-timeout", defaults.Presence.IdleTimeout, "evict accounts idle for this long")
	f.Duration("presence.sweep-interval", defaults.Presence.SweepInterval, "presence eviction interval")
	f.Duration("lockout.window", defaults.Lockout.Window, "failed-login lockout window")
	f.Uint64("connect-attempts", defaults.ConnectAttempts, "database connection retries at start-up")
	f.String("game-id", defaults.GameID, "game ID stamped into tokens and expected from servers")
	f.String("log-format", defaults.LogFormat, "log format (json or text)")
	f.String("log-level", defaults.LogLevel, "log level (debug, info, warn or error)")

	cmd.AddCommand(newServeCmd(c))
	cmd.AddCommand(newMigrateCmd(c))
	cmd.AddCommand(newAccountCmd(c))
	cmd.AddCommand(newServerCmd(c))
	cmd.AddCommand(newTokenCmd(c))

	return cmd
}

// setup loads the configuration for cmd and builds its logger.
func (c *cli) setup(cmd *cobra.Command) (*Config, *slog.Logger, error) {
	cfg, err := loadConfig(c.configFile, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	logger := logging.Setup(logging.Options{
		Service: "nexusgrid",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   level,
		Output:  cmd.ErrOrStderr(),
	})
	return cfg, logger, nil
}

// withRuntime runs fn against a freshly opened runtime.
func (c *cli) withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *Runtime) error) error {
	cfg, logger, err := c.setup(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	rt, err := openRuntime(ctx, cfg, c.deps, logger)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(ctx, rt)
}
