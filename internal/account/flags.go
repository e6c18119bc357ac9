// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package account

import (
	"context"
	"time"

	"github.com/samber/oops"

	"github.com/nexusgrid/nexusgrid/internal/datacontainer"
)

// Data returns the root data container of an account.
func (m *Manager) Data(accountID string) *datacontainer.Container {
	return datacontainer.Root(m.driver, datacontainer.Owner{Kind: datacontainer.OwnerAccount, ID: accountID})
}

// AccountData returns the account's "accountdata" container.
func (m *Manager) AccountData(accountID string) (*datacontainer.Container, error) {
	return m.Data(accountID).Child(AccountDataContainer)
}

func (m *Manager) boolFlag(ctx context.Context, accountID, key string, fallback bool) (bool, error) {
	data, err := m.AccountData(accountID)
	if err != nil {
		return false, err
	}
	v, ok, err := data.Bool(ctx, key)
	if err != nil {
		return false, oops.With("account_id", accountID).Wrap(err)
	}
	if !ok {
		return fallback, nil
	}
	return v, nil
}

func (m *Manager) setFlag(ctx context.Context, accountID, key string, value any) error {
	data, err := m.AccountData(accountID)
	if err != nil {
		return err
	}
	if err := data.SetValue(ctx, key, value); err != nil {
		return oops.With("account_id", accountID).Wrap(err)
	}
	return nil
}

// IsGuest reports whether the account is a guest account.
func (m *Manager) IsGuest(ctx context.Context, accountID string) (bool, error) {
	acc, err := m.GetAccount(ctx, accountID)
	if err != nil {
		return false, err
	}
	return acc.IsGuest, nil
}

// IsMultiplayerEnabled reports whether multiplayer is enabled.
func (m *Manager) IsMultiplayerEnabled(ctx context.Context, accountID string) (bool, error) {
	return m.boolFlag(ctx, accountID, KeyMultiplayerEnabled, true)
}

// SetMultiplayerEnabled toggles multiplayer.
func (m *Manager) SetMultiplayerEnabled(ctx context.Context, accountID string, enabled bool) error {
	return m.setFlag(ctx, accountID, KeyMultiplayerEnabled, enabled)
}

// IsChatEnabled reports whether chat is enabled. Guests never have chat.
func (m *Manager) IsChatEnabled(ctx context.Context, accountID string) (bool, error) {
	guest, err := m.IsGuest(ctx, accountID)
	if err != nil {
		return false, err
	}
	if guest {
		return false, nil
	}
	return m.boolFlag(ctx, accountID, KeyChatEnabled, true)
}

// SetChatEnabled toggles chat.
func (m *Manager) SetChatEnabled(ctx context.Context, accountID string, enabled bool) error {
	return m.setFlag(ctx, accountID, KeyChatEnabled, enabled)
}

// IsStrictChatFilterEnabled reports whether the strict chat filter is on.
func (m *Manager) IsStrictChatFilterEnabled(ctx context.Context, accountID string) (bool, error) {
	return m.boolFlag(ctx, accountID, KeyStrictChatFilterEnable, false)
}

// SetStrictChatFilterEnabled toggles the strict chat filter.
func (m *Manager) SetStrictChatFilterEnabled(ctx context.Context, accountID string, enabled bool) error {
	return m.setFlag(ctx, accountID, KeyStrictChatFilterEnable, enabled)
}

// IsHostBanned reports whether the account may not operate game servers.
func (m *Manager) IsHostBanned(ctx context.Context, accountID string) (bool, error) {
	return m.boolFlag(ctx, accountID, KeyHostBanned, false)
}

// SetHostBanned sets the host-ban flag.
func (m *Manager) SetHostBanned(ctx context.Context, accountID string, banned bool) error {
	return m.setFlag(ctx, accountID, KeyHostBanned, banned)
}

func (m *Manager) timestamp(ctx context.Context, accountID, key string) (time.Time, error) {
	data, err := m.AccountData(accountID)
	if err != nil {
		return time.Time{}, err
	}
	ms, ok, err := data.Int64(ctx, key)
	if err != nil {
		return time.Time{}, oops.With("account_id", accountID).Wrap(err)
	}
	if !ok {
		return time.Time{}, nil
	}
	return time.UnixMilli(ms).UTC(), nil
}

// LastLoginTime returns the last successful login, or the zero time.
func (m *Manager) LastLoginTime(ctx context.Context, accountID string) (time.Time, error) {
	return m.timestamp(ctx, accountID, KeyLastLoginTime)
}

// UpdateLastLoginTime stamps the current time as the last login.
func (m *Manager) UpdateLastLoginTime(ctx context.Context, accountID string) error {
	return m.setFlag(ctx, accountID, KeyLastLoginTime, m.now().UnixMilli())
}

// RegistrationTimestamp returns when the account was registered.
func (m *Manager) RegistrationTimestamp(ctx context.Context, accountID string) (time.Time, error) {
	return m.timestamp(ctx, accountID, KeyRegistrationTimestamp)
}
