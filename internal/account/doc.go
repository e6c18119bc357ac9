// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

// Package account is the account store: accounts, saves, the shared
// username namespace, credentials and the per-account data trees.
//
// # Persistence
//
// A Repository holds account and save rows. Two implementations exist:
//   - memory.Repository - in-process maps, used by the memory and remote backends
//   - postgres.Repository - PostgreSQL with a username reservation table
//
// Free-form data lives in data containers (see package datacontainer)
// rooted at the account or save ID. Account flags are stored in the
// "accountdata" child container.
//
// # Services
//
// Manager validates and coordinates every operation. Validation failures
// carry a reason code available through Reason. Authentication failures
// always collapse into ErrInvalidCredentials.
//
// PresenceCache keeps recently active accounts in memory and evicts idle
// ones from a single background sweeper.
package account
