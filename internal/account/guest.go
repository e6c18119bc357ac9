// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package account

import (
	"context"
	"errors"
	"strings"

	"github.com/samber/oops"

	"github.com/nexusgrid/nexusgrid/internal/keys"
	"github.com/nexusgrid/nexusgrid/pkg/errutil"
)

// ErrGuestFlagFlipFailed is returned when a migration committed the new
// credentials but could not clear the guest flag. Calling
// MigrateToNormalAccountFromGuest again with the same arguments retries only
// the flip.
var ErrGuestFlagFlipFailed = errors.New("failed to clear guest flag")

// MigrateToNormalAccountFromGuest turns a guest account into a normal one.
//
// All inputs are validated before anything is written. Username, email and
// credential are committed in a single repository call; the guest flag is
// cleared last. The new name may be one of the guest's own save names.
func (m *Manager) MigrateToNormalAccountFromGuest(ctx context.Context, accountID, newName, email, password string) error {
	acc, err := m.loadAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !acc.IsGuest {
		return validationError(ErrNotGuest)
	}

	if m.migrationCommitted(acc, newName, email, password) {
		return m.flipGuestFlag(ctx, accountID)
	}

	if err := m.checkNewUsername(ctx, newName, accountID); err != nil {
		return err
	}
	if err := ValidatePassword(password); err != nil {
		return validationError(err)
	}
	emailPtr, err := m.checkNewEmail(ctx, email, accountID)
	if err != nil {
		return err
	}
	cred, err := keys.DeriveCredential(password)
	if err != nil {
		return oops.Code("ACCOUNT_MIGRATION_FAILED").With("operation", "derive credential").Wrap(err)
	}

	err = m.repo.CommitMigration(ctx, accountID, Migration{
		Username:   newName,
		Email:      emailPtr,
		Credential: cred,
	})
	if err != nil {
		if Reason(err) != "" {
			return validationError(err)
		}
		return oops.Code("ACCOUNT_MIGRATION_FAILED").
			With("operation", "commit migration").
			With("account_id", accountID).
			Wrap(err)
	}

	return m.flipGuestFlag(ctx, accountID)
}

// migrationCommitted reports whether an earlier migration with the same
// arguments already committed its changes.
func (m *Manager) migrationCommitted(acc *Account, newName, email, password string) bool {
	if acc.Username != newName || len(acc.Credential) == 0 {
		return false
	}
	current := ""
	if acc.Email != nil {
		current = *acc.Email
	}
	if !strings.EqualFold(current, email) {
		return false
	}
	ok, err := keys.VerifyCredential(acc.Credential, password)
	return err == nil && ok
}

func (m *Manager) flipGuestFlag(ctx context.Context, accountID string) error {
	// The repository flag is authoritative and goes last, so a failure
	// anywhere leaves the account a guest and the call can be repeated.
	err := m.setFlag(ctx, accountID, KeyIsGuest, false)
	if err == nil {
		err = m.repo.SetGuest(ctx, accountID, false)
	}
	if err != nil {
		errutil.LogError(m.logger, "guest flag flip failed", err)
		return oops.Code("ACCOUNT_GUEST_FLAG_FLIP_FAILED").
			With("account_id", accountID).
			With("cause", err.Error()).
			Wrap(ErrGuestFlagFlipFailed)
	}

	m.refreshCached(ctx, accountID)
	m.logger.Info("guest account migrated", "account_id", accountID)
	return nil
}
