// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package main

import (
	"context"

	"github.com/spf13/cobra"
)

func newAccountCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Operator account tooling",
	}

	var email, password string
	register := &cobra.Command{
		Use:   "register <username>",
		Short: "Register a player account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *Runtime) error {
				acc, err := rt.Accounts.RegisterAccount(ctx, args[0], email, password)
				if err != nil {
					return err
				}
				cmd.Printf("Registered %s (%s)\n", acc.Username, acc.ID)
				return nil
			})
		},
	}
	register.Flags().StringVar(&email, "email", "", "contact email")
	register.Flags().StringVar(&password, "password", "", "account password")
	_ = register.MarkFlagRequired("password")

	var unban bool
	hostban := &cobra.Command{
		Use:   "hostban <account-id>",
		Short: "Ban an account from hosting servers",
		Long: `Ban an account from hosting servers. Servers it already owns are
removed the next time they are used or listed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *Runtime) error {
				if err := rt.Accounts.SetHostBanned(ctx, args[0], !unban); err != nil {
					return err
				}
				if unban {
					cmd.Printf("Lifted host ban on %s\n", args[0])
				} else {
					cmd.Printf("Host-banned %s\n", args[0])
				}
				return nil
			})
		},
	}
	hostban.Flags().BoolVar(&unban, "unban", false, "lift the ban instead")

	invalidate := &cobra.Command{
		Use:   "invalidate <identity-id>",
		Short: "Revoke every token issued to an account or identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *Runtime) error {
				if err := rt.Tokens.InvalidateAllSessions(ctx, args[0]); err != nil {
					return err
				}
				cmd.Printf("Invalidated all sessions of %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(register, hostban, invalidate)
	return cmd
}
