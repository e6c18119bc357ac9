// Package xdg resolves the XDG base directories used by nexusgrid.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "nexusgrid"

func dir(env string, fallback ...string) string {
	base := os.Getenv(env)
	if base == "" {
		base = filepath.Join(append([]string{os.Getenv("HOME")}, fallback...)...)
	}
	return filepath.Join(base, appName)
}

// ConfigDir is $XDG_CONFIG_HOME/nexusgrid, or ~/.config/nexusgrid.
func ConfigDir() string {
	return dir("XDG_CONFIG_HOME", ".config")
}

// DataDir is $XDG_DATA_HOME/nexusgrid, or ~/.local/share/nexusgrid.
func DataDir() string {
	return dir("XDG_DATA_HOME", ".local", "share")
}

// StateDir is $XDG_STATE_HOME/nexusgrid, or ~/.local/state/nexusgrid.
func StateDir() string {
	return dir("XDG_STATE_HOME", ".local", "state")
}

// ConfigFile is the default configuration file.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// KeysDir holds the token signing keys.
func KeysDir() string {
	return filepath.Join(DataDir(), "keys")
}

// EnsureDir creates path and its parents with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.Code("XDG_MKDIR_FAILED").With("path", path).Wrap(err)
	}
	return nil
}
