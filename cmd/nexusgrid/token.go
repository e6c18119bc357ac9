// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexusgrid/nexusgrid/internal/token"
)

func newTokenCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Operator token tooling",
	}

	var (
		caps string
		ttl  time.Duration
		save string
	)
	gen := &cobra.Command{
		Use:   "gen <identity-id>",
		Short: "Mint a token with explicit capabilities",
		Long: `Mint a token for an account or identity. The token is anchored to the
subject's current state, so invalidating its sessions revokes it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			capabilities, err := token.ParseCapabilities(caps)
			if err != nil {
				return err
			}
			return c.withRuntime(cmd, func(ctx context.Context, rt *Runtime) error {
				tok, raw, err := rt.Tokens.Issue(ctx, token.IssueRequest{
					Subject:      args[0],
					SaveID:       save,
					Capabilities: capabilities,
					TTL:          ttl,
				})
				if err != nil {
					return err
				}
				if tok.ExpiresAt.IsZero() {
					cmd.PrintErrln("Token never expires")
				} else {
					cmd.PrintErrf("Token expires %s\n", tok.ExpiresAt.UTC().Format(time.RFC3339))
				}
				cmd.Println(raw)
				return nil
			})
		},
	}
	gen.Flags().StringVar(&caps, "caps", "", "comma-separated capabilities, e.g. idget,idlist")
	gen.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime (0 = never expires)")
	gen.Flags().StringVar(&save, "save", "", "save ID to bind the token to")
	_ = gen.MarkFlagRequired("caps")

	cmd.AddCommand(gen)
	return cmd
}
