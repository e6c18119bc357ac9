// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package account

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/nexusgrid/nexusgrid/internal/observability"
	"github.com/nexusgrid/nexusgrid/pkg/errutil"
)

// Authenticate checks a username and password behind the anti-bruteforce
// gate. Every failure returns ErrInvalidCredentials.
//
// While an account is locked (less than the lockout window since
// lockedsince) it is rejected without checking the password. A wrong
// password sets lockedsince and blocks the caller for the lockout window.
// On success the login time is stamped and the account is kept in memory.
func (m *Manager) Authenticate(ctx context.Context, username, password string) (*Account, error) {
	acc, err := m.repo.GetAccountByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, oops.Code("ACCOUNT_LOGIN_FAILED").With("operation", "lookup account").Wrap(err)
		}
		observability.RecordLogin("invalid")
		m.logger.Debug("login rejected", "reason", "unknown_user")
		m.penalty(m.lockout)
		return nil, invalidCredentials()
	}

	if acc.IsGuest {
		observability.RecordLogin("invalid")
		m.logger.Debug("login rejected", "reason", "guest", "account_id", acc.ID)
		return nil, invalidCredentials()
	}

	data, err := m.AccountData(acc.ID)
	if err != nil {
		return nil, err
	}

	lockedSince, locked, err := data.Int64(ctx, KeyLockedSince)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOGIN_FAILED").With("account_id", acc.ID).Wrap(err)
	}
	now := m.now()
	if locked && now.UnixMilli()-lockedSince < m.lockout.Milliseconds() {
		observability.RecordLogin("locked")
		m.logger.Warn("login rejected", "reason", "locked", "account_id", acc.ID)
		return nil, invalidCredentials()
	}

	ok, err := m.verify(acc, password)
	if err != nil {
		errutil.LogError(m.logger, "credential check failed", err)
	}
	if !ok {
		if err := data.SetValue(ctx, KeyLockedSince, now.UnixMilli()); err != nil {
			errutil.LogError(m.logger, "failed to record lockout", err)
		}
		observability.RecordLogin("invalid")
		m.logger.Warn("login rejected", "reason", "bad_password", "account_id", acc.ID)
		m.penalty(m.lockout)
		return nil, invalidCredentials()
	}

	if err := m.UpdateLastLoginTime(ctx, acc.ID); err != nil {
		errutil.LogError(m.logger, "failed to update last login time", err)
	}

	acc, err = m.withSaves(ctx, acc)
	if err != nil {
		return nil, err
	}
	m.KeepInMemory(acc, true)

	observability.RecordLogin("success")
	m.logger.Info("login succeeded", "account_id", acc.ID)
	return acc, nil
}
