// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package main

import (
	"context"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/nexusgrid/nexusgrid/internal/identity"
	"github.com/nexusgrid/nexusgrid/internal/token"
)

func newServerCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Manage server identities",
	}

	var owner string
	var addresses []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a server identity and its first certificate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *Runtime) error {
				grant, err := rt.Hosting.CreateServerIdentity(ctx, owner, addresses)
				if err != nil {
					return err
				}
				printGrant(cmd, grant)
				return nil
			})
		},
	}
	create.Flags().StringVar(&owner, "owner", identity.SystemID, "owning account or identity (default: the system identity)")
	create.Flags().StringSliceVar(&addresses, "address", nil, "address players connect to (repeatable)")
	_ = create.MarkFlagRequired("address")

	var hostToken string
	var refreshAddresses []string
	refresh := &cobra.Command{
		Use:   "refresh",
		Short: "Rotate a server's certificate using its host token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *Runtime) error {
				caller, err := rt.Tokens.Verify(ctx, hostToken, token.CapHost)
				if err != nil {
					return err
				}
				grant, err := rt.Hosting.RefreshServerIdentity(ctx, caller, refreshAddresses)
				if err != nil {
					return err
				}
				printGrant(cmd, grant)
				return nil
			})
		},
	}
	refresh.Flags().StringVar(&hostToken, "token", "", "current host token of the server")
	refresh.Flags().StringSliceVar(&refreshAddresses, "address", nil, "address players connect to (repeatable)")
	_ = refresh.MarkFlagRequired("token")
	_ = refresh.MarkFlagRequired("address")

	var reactivateAddresses []string
	reactivate := &cobra.Command{
		Use:   "reactivate <server-id>",
		Short: "Issue a new certificate for a server whose certificate expired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *Runtime) error {
				grant, err := rt.Hosting.ReactivateServerIdentity(ctx, args[0], reactivateAddresses)
				if err != nil {
					return err
				}
				printGrant(cmd, grant)
				return nil
			})
		},
	}
	reactivate.Flags().StringSliceVar(&reactivateAddresses, "address", nil, "address players connect to (repeatable)")
	_ = reactivate.MarkFlagRequired("address")

	del := &cobra.Command{
		Use:   "delete <server-id>",
		Short: "Delete a server identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *Runtime) error {
				if err := rt.Hosting.DeleteServerIdentity(ctx, args[0]); err != nil {
					return err
				}
				rt.ServerList.Remove(args[0])
				cmd.Printf("Deleted server %s\n", args[0])
				return nil
			})
		},
	}

	var out string
	certificate := &cobra.Command{
		Use:   "certificate <server-id>",
		Short: "Write the binary certificate game clients verify",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, func(ctx context.Context, rt *Runtime) error {
				blob, err := rt.Hosting.DownloadCertificate(ctx, args[0])
				if err != nil {
					return err
				}
				if out == "" {
					if _, err := cmd.OutOrStdout().Write(blob); err != nil {
						return oops.Code("CERTIFICATE_WRITE_FAILED").Wrap(err)
					}
					return nil
				}
				if err := os.WriteFile(out, blob, 0o644); err != nil { //nolint:gosec // certificates are public
					return oops.Code("CERTIFICATE_WRITE_FAILED").With("path", out).Wrap(err)
				}
				cmd.PrintErrf("Wrote %d bytes to %s\n", len(blob), out)
				return nil
			})
		},
	}
	certificate.Flags().StringVarP(&out, "out", "o", "", "output file (default: stdout)")

	cmd.AddCommand(create, refresh, reactivate, del, certificate)
	return cmd
}

func printGrant(cmd *cobra.Command, grant *identity.HostGrant) {
	cmd.Printf("Server: %s\n", grant.Identity.ID)
	if grant.Certificate != nil {
		cmd.Printf("Addresses: %v\n", grant.Certificate.Addresses)
		cmd.Printf("Certificate expires: %s\n", grant.Certificate.ExpiresAt().UTC().Format(time.RFC3339))
	}
	cmd.Printf("Host token: %s\n", grant.Token)
}
