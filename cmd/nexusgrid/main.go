// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

// Package main is the nexusgrid command: the account, identity and server
// list service and its operator tooling.
package main

import (
	"fmt"
	"os"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
