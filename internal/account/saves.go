// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package account

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/nexusgrid/nexusgrid/internal/datacontainer"
)

// CreateSave creates a save owned by accountID. The save name shares the
// account namespace, so no login name may be reused, the owner's included.
func (m *Manager) CreateSave(ctx context.Context, accountID, username string) (*Save, error) {
	if _, err := m.loadAccount(ctx, accountID); err != nil {
		return nil, err
	}

	if err := m.checkNewUsername(ctx, username, ""); err != nil {
		return nil, err
	}
	if _, err := m.repo.GetSaveByUsername(ctx, username); err == nil {
		return nil, validationError(ErrUsernameInUse)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", "check save name").Wrap(err)
	}

	save := &Save{
		AccountID: accountID,
		Username:  username,
		CreatedAt: m.now().UTC(),
	}

	created := false
	for attempt := 0; attempt < maxIDAttempts && !created; attempt++ {
		save.ID = m.newID()
		err := m.repo.CreateSave(ctx, save)
		switch {
		case err == nil:
			created = true
		case errors.Is(err, ErrIDInUse):
		case Reason(err) != "":
			return nil, validationError(err)
		default:
			return nil, oops.Code("SAVE_CREATE_FAILED").
				With("account_id", accountID).
				With("username", username).
				Wrap(err)
		}
	}
	if !created {
		return nil, oops.Code("ACCOUNT_ID_EXHAUSTED").Errorf("could not allocate a unique save ID")
	}

	m.refreshCached(ctx, accountID)
	m.logger.Info("save created", "account_id", accountID, "save_id", save.ID)
	return save, nil
}

// GetSave returns the save with id.
func (m *Manager) GetSave(ctx context.Context, id string) (*Save, error) {
	save, err := m.repo.GetSave(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("save_id", id)
		}
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("save_id", id).Wrap(err)
	}
	return save, nil
}

// GetAccountBySaveUsername returns the account owning the save called name.
func (m *Manager) GetAccountBySaveUsername(ctx context.Context, name string) (*Account, error) {
	save, err := m.repo.GetSaveByUsername(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("save_username", name)
		}
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("save_username", name).Wrap(err)
	}
	return m.GetAccount(ctx, save.AccountID)
}

// ListSaves returns an account's saves in creation order.
func (m *Manager) ListSaves(ctx context.Context, accountID string) ([]*Save, error) {
	acc, err := m.loadAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	saves := make([]*Save, 0, len(acc.SaveIDs))
	for _, id := range acc.SaveIDs {
		s, err := m.GetSave(ctx, id)
		if err != nil {
			return nil, err
		}
		saves = append(saves, s)
	}
	return saves, nil
}

// DeleteSave removes a save with its data tree and username reservation,
// then refreshes the owner's cached save list.
func (m *Manager) DeleteSave(ctx context.Context, saveID string) error {
	save, err := m.GetSave(ctx, saveID)
	if err != nil {
		return err
	}
	if err := m.deleteSaveData(ctx, saveID); err != nil {
		return err
	}
	m.refreshCached(ctx, save.AccountID)
	m.logger.Info("save deleted", "account_id", save.AccountID, "save_id", saveID)
	return nil
}

func (m *Manager) deleteSaveData(ctx context.Context, saveID string) error {
	if err := m.SaveData(saveID).DeleteContainer(ctx); err != nil {
		return oops.Code("SAVE_DELETE_FAILED").
			With("operation", "delete save data").
			With("save_id", saveID).
			Wrap(err)
	}
	if err := m.repo.DeleteSave(ctx, saveID); err != nil && !errors.Is(err, ErrNotFound) {
		return oops.Code("SAVE_DELETE_FAILED").
			With("operation", "delete save").
			With("save_id", saveID).
			Wrap(err)
	}
	return nil
}

// SaveData returns the root data container of a save.
func (m *Manager) SaveData(saveID string) *datacontainer.Container {
	return datacontainer.Root(m.driver, datacontainer.Owner{Kind: datacontainer.OwnerSave, ID: saveID})
}
