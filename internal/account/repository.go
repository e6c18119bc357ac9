// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package account

import "context"

// Repository persists accounts, saves and the shared username namespace.
//
// A username is reserved by one account at a time and covers both that
// account's login name and its save names: an account may give a save its
// own login name, but no other account may use either. Implementations
// return ErrUsernameInUse, ErrEmailInUse, ErrIDInUse or ErrNotFound
// (possibly wrapped) for the corresponding conditions.
type Repository interface {
	// CreateAccount stores a new account and reserves its username.
	CreateAccount(ctx context.Context, a *Account) error
	// GetAccount returns the account with id.
	GetAccount(ctx context.Context, id string) (*Account, error)
	// GetAccountByUsername looks up an account by login name, case-insensitively.
	GetAccountByUsername(ctx context.Context, username string) (*Account, error)
	// GetAccountIDByEmail looks up an account ID by email, case-insensitively.
	GetAccountIDByEmail(ctx context.Context, email string) (string, error)
	// UsernameOwner returns the ID of the account holding the reservation for name.
	UsernameOwner(ctx context.Context, name string) (string, error)
	// UpdateUsername changes an account's login name.
	UpdateUsername(ctx context.Context, id, username string) error
	// UpdateEmail sets or clears an account's email.
	UpdateEmail(ctx context.Context, id string, email *string) error
	// UpdateCredential replaces an account's credential.
	UpdateCredential(ctx context.Context, id string, credential []byte) error
	// CommitMigration applies username, email and credential atomically.
	CommitMigration(ctx context.Context, id string, m Migration) error
	// SetGuest sets the guest flag.
	SetGuest(ctx context.Context, id string, guest bool) error
	// DeleteAccount removes an account with its saves and reservations.
	DeleteAccount(ctx context.Context, id string) error

	// CreateSave stores a new save and reserves its username for the owner.
	CreateSave(ctx context.Context, s *Save) error
	// GetSave returns the save with id.
	GetSave(ctx context.Context, id string) (*Save, error)
	// GetSaveByUsername looks up a save by name, case-insensitively.
	GetSaveByUsername(ctx context.Context, username string) (*Save, error)
	// ListSaveIDs returns the IDs of an account's saves in creation order.
	ListSaveIDs(ctx context.Context, accountID string) ([]string, error)
	// DeleteSave removes a save and releases its reservation if unused.
	DeleteSave(ctx context.Context, id string) error
}
