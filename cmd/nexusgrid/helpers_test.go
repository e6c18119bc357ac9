// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
)

// cliResult captures one command invocation.
type cliResult struct {
	stdout string
	stderr string
	err    error
}

// runCLI executes the root command in isolation: no user config file, no
// DATABASE_URL and a private key directory.
func runCLI(t *testing.T, ctx context.Context, deps *Deps, keysDir string, args ...string) cliResult {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	cmd := newRootCmd(deps)
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--keys.dir", keysDir, "--log-format", "text", "--log-level", "warn"}, args...))

	err := cmd.ExecuteContext(ctx)
	return cliResult{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
