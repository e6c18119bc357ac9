// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/nexusgrid/nexusgrid/internal/account"
	"github.com/nexusgrid/nexusgrid/internal/account/memory"
	accountpg "github.com/nexusgrid/nexusgrid/internal/account/postgres"
	"github.com/nexusgrid/nexusgrid/internal/datacontainer"
	containerpg "github.com/nexusgrid/nexusgrid/internal/datacontainer/postgres"
	"github.com/nexusgrid/nexusgrid/internal/identity"
	"github.com/nexusgrid/nexusgrid/internal/keys"
	"github.com/nexusgrid/nexusgrid/internal/observability"
	"github.com/nexusgrid/nexusgrid/internal/serverlist"
	"github.com/nexusgrid/nexusgrid/internal/store"
	"github.com/nexusgrid/nexusgrid/internal/textfilter"
	"github.com/nexusgrid/nexusgrid/internal/token"
)

// Deps contains injectable dependencies for the commands.
// Nil fields use their default implementations.
type Deps struct {
	// PoolFactory opens and pings the PostgreSQL pool.
	// Default: store.Connect
	PoolFactory func(ctx context.Context, dsn string) (Pool, error)

	// ObservabilityServerFactory creates the metrics and health server.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, opts ...observability.ServerOption) ObservabilityServer

	// MigratorFactory opens a schema migrator.
	// Default: store.NewMigrator
	MigratorFactory func(dsn string) (Migrator, error)

	// RetryBackoff paces the start-up connection attempts.
	// Default: exponential from 500ms, capped at 5s
	RetryBackoff func() retry.Backoff
}

// Pool is the part of pgxpool.Pool the runtime needs.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
}

func (d *Deps) withDefaults() *Deps {
	out := Deps{}
	if d != nil {
		out = *d
	}
	if out.PoolFactory == nil {
		out.PoolFactory = func(ctx context.Context, dsn string) (Pool, error) {
			pool, err := store.Connect(ctx, dsn)
			if err != nil {
				return nil, err
			}
			return pool, nil
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, opts ...observability.ServerOption) ObservabilityServer {
			return observability.NewServer(addr, opts...)
		}
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(dsn string) (Migrator, error) {
			m, err := store.NewMigrator(dsn)
			if err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if out.RetryBackoff == nil {
		out.RetryBackoff = func() retry.Backoff {
			return retry.WithCappedDuration(5*time.Second, retry.NewExponential(500*time.Millisecond))
		}
	}
	return &out
}

// Runtime is the assembled service graph.
type Runtime struct {
	Accounts   *account.Manager
	Identities *identity.Registry
	Tokens     *token.Service
	Sessions   *token.Sessions
	Hosting    *identity.Hosting
	ServerList *serverlist.Registry

	pool Pool
}

// readinessChecks lists the backend checks for the readiness probe.
func (r *Runtime) readinessChecks() []observability.ServerOption {
	if r.pool == nil {
		return nil
	}
	return []observability.ServerOption{observability.WithCheck("database", r.pool.Ping)}
}

// Close releases the backend.
func (r *Runtime) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

// openRuntime wires the services for cfg on the configured backend.
func openRuntime(ctx context.Context, cfg *Config, deps *Deps, logger *slog.Logger) (*Runtime, error) {
	deps = deps.withDefaults()
	rt := &Runtime{}

	var (
		repo   account.Repository
		driver datacontainer.Driver
	)
	switch cfg.Backend {
	case backendPostgres:
		pool, err := connectWithRetry(ctx, cfg, deps, logger)
		if err != nil {
			return nil, err
		}
		rt.pool = pool
		repo = accountpg.NewRepository(pool)
		driver = containerpg.NewDriver(pool)
	case backendRemote:
		repo = memory.NewRepository()
		opts := []datacontainer.RemoteOption{datacontainer.WithTimeout(cfg.Remote.Timeout)}
		if cfg.Remote.Token != "" {
			opts = append(opts, datacontainer.WithBearerToken(cfg.Remote.Token))
		}
		driver = datacontainer.NewRemoteDriver(cfg.Remote.URL, opts...)
	default:
		repo = memory.NewRepository()
		driver = datacontainer.NewMemoryDriver()
	}

	filter := textfilter.Default()
	if cfg.Textfilter.File != "" {
		f, err := textfilter.LoadFile(cfg.Textfilter.File)
		if err != nil {
			rt.Close()
			return nil, oops.Code("TEXTFILTER_LOAD_FAILED").With("path", cfg.Textfilter.File).Wrap(err)
		}
		filter = f
	}

	presence := account.NewPresenceCache(
		account.WithIdleTimeout(cfg.Presence.IdleTimeout),
		account.WithSweepInterval(cfg.Presence.SweepInterval),
		account.WithPresenceLogger(logger),
	)
	rt.Accounts = account.NewManager(repo, driver,
		account.WithFilter(filter),
		account.WithPresence(presence),
		account.WithLockoutWindow(cfg.Lockout.Window),
		account.WithLogger(logger),
	)
	rt.Identities = identity.NewRegistry(driver, rt.Accounts, identity.WithLogger(logger))

	keyring := keys.NewKeyring(cfg.Keys.Dir)
	if _, err := keyring.Load(); err != nil {
		rt.Close()
		return nil, oops.Code("KEYS_LOAD_FAILED").With("dir", cfg.Keys.Dir).Wrap(err)
	}
	rt.Tokens = token.NewService(keyring, identity.NewDirectory(rt.Identities),
		token.WithGameID(cfg.GameID),
		token.WithLogger(logger),
	)
	rt.Sessions = token.NewSessions(rt.Tokens, rt.Accounts)
	rt.Hosting = identity.NewHosting(rt.Identities, rt.Tokens, identity.WithHostingLogger(logger))
	rt.ServerList = serverlist.NewRegistry(rt.Identities,
		serverlist.NewAdmitter(cfg.GameID, serverlist.WithAdmitterLogger(logger)),
		serverlist.WithLogger(logger),
	)
	return rt, nil
}

// connectWithRetry waits for PostgreSQL to accept connections.
func connectWithRetry(ctx context.Context, cfg *Config, deps *Deps, logger *slog.Logger) (Pool, error) {
	var pool Pool
	attempt := 0
	backoff := retry.WithMaxRetries(cfg.ConnectAttempts, deps.RetryBackoff())
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := deps.PoolFactory(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.WarnContext(ctx, "database not ready", "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}
	return pool, nil
}
