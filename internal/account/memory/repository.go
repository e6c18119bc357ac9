// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

// Package memory provides an in-process account repository.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/nexusgrid/nexusgrid/internal/account"
)

// Repository implements account.Repository with mutex-guarded maps.
type Repository struct {
	mu        sync.RWMutex
	accounts  map[string]*account.Account
	saves     map[string]*account.Save
	usernames map[string]string // name key -> account ID
	emails    map[string]string // lower email -> account ID
}

// NewRepository creates an empty Repository.
func NewRepository() *Repository {
	return &Repository{
		accounts:  make(map[string]*account.Account),
		saves:     make(map[string]*account.Save),
		usernames: make(map[string]string),
		emails:    make(map[string]string),
	}
}

func copyAccount(a *account.Account) *account.Account {
	c := *a
	if a.Email != nil {
		e := *a.Email
		c.Email = &e
	}
	c.Credential = append([]byte(nil), a.Credential...)
	c.SaveIDs = nil
	return &c
}

func copySave(s *account.Save) *account.Save {
	c := *s
	return &c
}

// CreateAccount stores a new account and reserves its username.
func (r *Repository) CreateAccount(_ context.Context, a *account.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[a.ID]; ok {
		return account.ErrIDInUse
	}
	key := account.NameKey(a.Username)
	if _, ok := r.usernames[key]; ok {
		return account.ErrUsernameInUse
	}
	if a.Email != nil {
		if _, ok := r.emails[strings.ToLower(*a.Email)]; ok {
			return account.ErrEmailInUse
		}
		r.emails[strings.ToLower(*a.Email)] = a.ID
	}
	r.usernames[key] = a.ID
	r.accounts[a.ID] = copyAccount(a)
	return nil
}

// GetAccount returns the account with id.
func (r *Repository) GetAccount(_ context.Context, id string) (*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.accounts[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return copyAccount(a), nil
}

// GetAccountByUsername looks up an account by login name.
func (r *Repository) GetAccountByUsername(_ context.Context, username string) (*account.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := account.NameKey(username)
	id, ok := r.usernames[key]
	if !ok {
		return nil, account.ErrNotFound
	}
	a := r.accounts[id]
	if a == nil || account.NameKey(a.Username) != key {
		return nil, account.ErrNotFound
	}
	return copyAccount(a), nil
}

// GetAccountIDByEmail looks up an account ID by email.
func (r *Repository) GetAccountIDByEmail(_ context.Context, email string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.emails[strings.ToLower(email)]
	if !ok {
		return "", account.ErrNotFound
	}
	return id, nil
}

// UsernameOwner returns the account holding the reservation for name.
func (r *Repository) UsernameOwner(_ context.Context, name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.usernames[account.NameKey(name)]
	if !ok {
		return "", account.ErrNotFound
	}
	return id, nil
}

// UpdateUsername changes an account's login name.
func (r *Repository) UpdateUsername(_ context.Context, id, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.renameLocked(id, username)
}

func (r *Repository) renameLocked(id, username string) error {
	a, ok := r.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	key := account.NameKey(username)
	if owner, ok := r.usernames[key]; ok && owner != id {
		return account.ErrUsernameInUse
	}

	oldKey := account.NameKey(a.Username)
	a.Username = username
	r.usernames[key] = id
	if oldKey != key {
		r.releaseLocked(id, oldKey)
	}
	return nil
}

// releaseLocked drops the reservation for key unless the account still uses it.
func (r *Repository) releaseLocked(accountID, key string) {
	if r.usernames[key] != accountID {
		return
	}
	if a, ok := r.accounts[accountID]; ok && account.NameKey(a.Username) == key {
		return
	}
	for _, s := range r.saves {
		if s.AccountID == accountID && account.NameKey(s.Username) == key {
			return
		}
	}
	delete(r.usernames, key)
}

// UpdateEmail sets or clears an account's email.
func (r *Repository) UpdateEmail(_ context.Context, id string, email *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.setEmailLocked(id, email)
}

func (r *Repository) setEmailLocked(id string, email *string) error {
	a, ok := r.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	if email != nil {
		if owner, ok := r.emails[strings.ToLower(*email)]; ok && owner != id {
			return account.ErrEmailInUse
		}
	}
	if a.Email != nil {
		delete(r.emails, strings.ToLower(*a.Email))
	}
	if email != nil {
		e := *email
		a.Email = &e
		r.emails[strings.ToLower(e)] = id
	} else {
		a.Email = nil
	}
	return nil
}

// UpdateCredential replaces an account's credential.
func (r *Repository) UpdateCredential(_ context.Context, id string, credential []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	a.Credential = append([]byte(nil), credential...)
	return nil
}

// CommitMigration applies username, email and credential atomically.
func (r *Repository) CommitMigration(_ context.Context, id string, m account.Migration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	if owner, ok := r.usernames[account.NameKey(m.Username)]; ok && owner != id {
		return account.ErrUsernameInUse
	}
	if m.Email != nil {
		if owner, ok := r.emails[strings.ToLower(*m.Email)]; ok && owner != id {
			return account.ErrEmailInUse
		}
	}

	// Every check has passed; the writes below cannot fail.
	_ = r.renameLocked(id, m.Username)
	_ = r.setEmailLocked(id, m.Email)
	a.Credential = append([]byte(nil), m.Credential...)
	return nil
}

// SetGuest sets the guest flag.
func (r *Repository) SetGuest(_ context.Context, id string, guest bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	a.IsGuest = guest
	return nil
}

// DeleteAccount removes an account with its saves and reservations.
func (r *Repository) DeleteAccount(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return account.ErrNotFound
	}
	for saveID, s := range r.saves {
		if s.AccountID == id {
			delete(r.saves, saveID)
		}
	}
	for key, owner := range r.usernames {
		if owner == id {
			delete(r.usernames, key)
		}
	}
	if a.Email != nil {
		delete(r.emails, strings.ToLower(*a.Email))
	}
	delete(r.accounts, id)
	return nil
}

// CreateSave stores a new save and reserves its name for the owner.
func (r *Repository) CreateSave(_ context.Context, s *account.Save) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.saves[s.ID]; ok {
		return account.ErrIDInUse
	}
	if _, ok := r.accounts[s.AccountID]; !ok {
		return account.ErrNotFound
	}
	key := account.NameKey(s.Username)
	if owner, ok := r.usernames[key]; ok && owner != s.AccountID {
		return account.ErrUsernameInUse
	}
	for _, other := range r.saves {
		if account.NameKey(other.Username) == key {
			return account.ErrUsernameInUse
		}
	}
	r.usernames[key] = s.AccountID
	r.saves[s.ID] = copySave(s)
	return nil
}

// GetSave returns the save with id.
func (r *Repository) GetSave(_ context.Context, id string) (*account.Save, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.saves[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return copySave(s), nil
}

// GetSaveByUsername looks up a save by name.
func (r *Repository) GetSaveByUsername(_ context.Context, username string) (*account.Save, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := account.NameKey(username)
	for _, s := range r.saves {
		if account.NameKey(s.Username) == key {
			return copySave(s), nil
		}
	}
	return nil, account.ErrNotFound
}

// ListSaveIDs returns the IDs of an account's saves in creation order.
func (r *Repository) ListSaveIDs(_ context.Context, accountID string) ([]string, error) {
	r.mu.RLock()
	var saves []*account.Save
	for _, s := range r.saves {
		if s.AccountID == accountID {
			saves = append(saves, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(saves, func(i, j int) bool {
		if saves[i].CreatedAt.Equal(saves[j].CreatedAt) {
			return saves[i].ID < saves[j].ID
		}
		return saves[i].CreatedAt.Before(saves[j].CreatedAt)
	})
	ids := make([]string, 0, len(saves))
	for _, s := range saves {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// DeleteSave removes a save and releases its reservation if unused.
func (r *Repository) DeleteSave(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.saves[id]
	if !ok {
		return account.ErrNotFound
	}
	delete(r.saves, id)
	r.releaseLocked(s.AccountID, account.NameKey(s.Username))
	return nil
}

var _ account.Repository = (*Repository)(nil)
