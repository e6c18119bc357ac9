// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package main

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/nexusgrid/nexusgrid/internal/account"
	"github.com/nexusgrid/nexusgrid/internal/logging"
	"github.com/nexusgrid/nexusgrid/internal/token"
	"github.com/nexusgrid/nexusgrid/internal/xdg"
)

// Storage backends.
const (
	backendMemory   = "memory"
	backendPostgres = "postgres"
	backendRemote   = "remote"
)

const (
	defaultMetricsAddr     = "127.0.0.1:9100"
	defaultRemoteTimeout   = 10 * time.Second
	defaultConnectAttempts = 10
)

// Config is the process configuration. Fields are filled from defaults,
// the YAML file, DATABASE_URL and flags, in that order.
type Config struct {
	Backend     string         `koanf:"backend"`
	DatabaseURL string         `koanf:"database_url"`
	Remote      RemoteConfig   `koanf:"remote"`
	Keys        KeysConfig     `koanf:"keys"`
	Presence    PresenceConfig `koanf:"presence"`
	Lockout     LockoutConfig  `koanf:"lockout"`
	Textfilter  FilterConfig   `koanf:"textfilter"`
	MetricsAddr string         `koanf:"metrics_addr"`
	LogFormat   string         `koanf:"log_format"`
	LogLevel    string         `koanf:"log_level"`
	GameID      string         `koanf:"game_id"`
	// ConnectAttempts bounds the start-up wait for PostgreSQL.
	ConnectAttempts uint64 `koanf:"connect_attempts"`
}

// RemoteConfig addresses a remote data container service.
type RemoteConfig struct {
	URL     string        `koanf:"url"`
	Token   string        `koanf:"token"`
	Timeout time.Duration `koanf:"timeout"`
}

// KeysConfig locates the token signing keys.
type KeysConfig struct {
	Dir string `koanf:"dir"`
}

// PresenceConfig tunes the in-memory account cache.
type PresenceConfig struct {
	IdleTimeout   time.Duration `koanf:"idle_timeout"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// LockoutConfig tunes failed-login throttling.
type LockoutConfig struct {
	Window time.Duration `koanf:"window"`
}

// FilterConfig points at a replacement phrase list.
type FilterConfig struct {
	File string `koanf:"file"`
}

func defaultConfig() *Config {
	return &Config{
		Backend:         backendMemory,
		Remote:          RemoteConfig{Timeout: defaultRemoteTimeout},
		Keys:            KeysConfig{Dir: xdg.KeysDir()},
		Presence:        PresenceConfig{IdleTimeout: account.DefaultIdleTimeout, SweepInterval: account.DefaultSweepInterval},
		Lockout:         LockoutConfig{Window: account.DefaultLockoutWindow},
		MetricsAddr:     defaultMetricsAddr,
		LogFormat:       "json",
		LogLevel:        "info",
		GameID:          token.DefaultGameID,
		ConnectAttempts: defaultConnectAttempts,
	}
}

// Validate checks the configuration for values the process cannot run with.
func (c *Config) Validate() error {
	switch c.Backend {
	case backendMemory:
	case backendPostgres:
		if c.DatabaseURL == "" {
			return invalid("database_url", "database_url is required for the postgres backend")
		}
	case backendRemote:
		if c.Remote.URL == "" {
			return invalid("remote.url", "remote.url is required for the remote backend")
		}
		if c.Remote.Timeout <= 0 {
			return invalid("remote.timeout", "remote.timeout must be positive")
		}
	default:
		return invalid("backend", "backend must be memory, postgres or remote, got %q", c.Backend)
	}
	if c.Keys.Dir == "" {
		return invalid("keys.dir", "keys.dir is required")
	}
	if c.Presence.IdleTimeout <= 0 || c.Presence.SweepInterval <= 0 {
		return invalid("presence", "presence durations must be positive")
	}
	if c.Lockout.Window <= 0 {
		return invalid("lockout.window", "lockout.window must be positive")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return invalid("log_format", "log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return invalid("log_level", "log_level must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if strings.TrimSpace(c.GameID) == "" {
		return invalid("game_id", "game_id is required")
	}
	return nil
}

func invalid(key, format string, args ...any) error {
	return oops.Code("CONFIG_INVALID").With("key", key).Errorf(format, args...)
}

// loadConfig layers the configuration sources. A missing file is only an
// error when path was given explicitly.
func loadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")
	explicit := path != ""
	if !explicit {
		path = xdg.ConfigFile()
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" && !flags.Changed("database-url") {
		if err := k.Set("database_url", dsn); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
		}
	}

	// Unchanged flags only fill keys no other source set.
	err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
		if f.Name == "config" {
			return "", nil
		}
		return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
	}), nil)
	if err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}

	cfg := defaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").Wrap(err)
	}
	return cfg, nil
}
