// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package account

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/nexusgrid/nexusgrid/internal/datacontainer"
	"github.com/nexusgrid/nexusgrid/internal/keys"
	"github.com/nexusgrid/nexusgrid/internal/textfilter"
	"github.com/nexusgrid/nexusgrid/pkg/errutil"
)

// DefaultLockoutWindow is how long an account stays locked after a failed login.
const DefaultLockoutWindow = 8 * time.Second

// maxIDAttempts bounds the retries when a generated ID collides.
const maxIDAttempts = 10

// Manager is the account store service. It coordinates the repository, the
// data container driver and the presence cache.
type Manager struct {
	repo     Repository
	driver   datacontainer.Driver
	filter   *textfilter.Filter
	presence *PresenceCache
	now      func() time.Time
	lockout  time.Duration
	penalty  func(time.Duration)
	newID    func() string
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithFilter sets the content filter applied to usernames and save names.
func WithFilter(f *textfilter.Filter) Option {
	return func(m *Manager) { m.filter = f }
}

// WithPresence sets the presence cache.
func WithPresence(p *PresenceCache) Option {
	return func(m *Manager) { m.presence = p }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithLockoutWindow sets the failed-login lockout window.
func WithLockoutWindow(d time.Duration) Option {
	return func(m *Manager) { m.lockout = d }
}

// WithPenalty replaces the blocking delay applied after a failed login.
func WithPenalty(fn func(time.Duration)) Option {
	return func(m *Manager) { m.penalty = fn }
}

// WithIDGenerator overrides account and save ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(m *Manager) { m.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// NewManager creates a Manager.
func NewManager(repo Repository, driver datacontainer.Driver, opts ...Option) *Manager {
	m := &Manager{
		repo:    repo,
		driver:  driver,
		now:     time.Now,
		lockout: DefaultLockoutWindow,
		penalty: time.Sleep,
		newID:   uuid.NewString,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.filter == nil {
		m.filter = textfilter.Default()
	}
	if m.presence == nil {
		m.presence = NewPresenceCache(WithPresenceClock(m.now), WithPresenceLogger(m.logger))
	}
	return m
}

// Presence returns the presence cache.
func (m *Manager) Presence() *PresenceCache {
	return m.presence
}

// Driver returns the data container driver.
func (m *Manager) Driver() datacontainer.Driver {
	return m.driver
}

// RegisterAccount creates a normal account. email may be empty.
func (m *Manager) RegisterAccount(ctx context.Context, username, email, password string) (*Account, error) {
	if err := m.checkNewUsername(ctx, username, ""); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, validationError(err)
	}
	emailPtr, err := m.checkNewEmail(ctx, email, "")
	if err != nil {
		return nil, err
	}

	cred, err := keys.DeriveCredential(password)
	if err != nil {
		return nil, oops.Code("ACCOUNT_REGISTER_FAILED").With("operation", "derive credential").Wrap(err)
	}

	acc := &Account{
		Username:   username,
		Email:      emailPtr,
		Credential: cred,
		CreatedAt:  m.now().UTC(),
	}
	if err := m.createAccount(ctx, acc); err != nil {
		return nil, err
	}

	if err := m.seedAccountData(ctx, acc); err != nil {
		return nil, err
	}

	m.logger.Info("account registered", "account_id", acc.ID, "username", acc.Username)
	return acc, nil
}

// RegisterGuestAccount creates a guest account for an external guest ID.
// It fails if a guest with that ID already exists.
func (m *Manager) RegisterGuestAccount(ctx context.Context, guestID string) (*Account, error) {
	if guestID == "" || len(guestID) > MaxUsernameLength-len(GuestUsernamePrefix) {
		return nil, oops.Code("ACCOUNT_GUEST_ID_INVALID").With("guest_id", guestID).Errorf("invalid guest ID")
	}

	username := GuestUsernamePrefix + guestID
	if _, err := m.repo.UsernameOwner(ctx, username); err == nil {
		return nil, validationError(ErrGuestExists)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, oops.Code("ACCOUNT_REGISTER_FAILED").With("operation", "check guest").Wrap(err)
	}

	acc := &Account{
		Username:  username,
		IsGuest:   true,
		CreatedAt: m.now().UTC(),
	}
	if err := m.createAccount(ctx, acc); err != nil {
		if errors.Is(err, ErrUsernameInUse) {
			return nil, validationError(ErrGuestExists)
		}
		return nil, err
	}

	if err := m.seedAccountData(ctx, acc); err != nil {
		return nil, err
	}

	m.logger.Info("guest account registered", "account_id", acc.ID, "guest_id", guestID)
	return acc, nil
}

// createAccount assigns a fresh ID and persists acc, retrying on ID collisions.
func (m *Manager) createAccount(ctx context.Context, acc *Account) error {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		acc.ID = m.newID()
		err := m.repo.CreateAccount(ctx, acc)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrIDInUse) {
			continue
		}
		if Reason(err) != "" {
			return validationError(err)
		}
		return oops.Code("ACCOUNT_REGISTER_FAILED").
			With("operation", "create account").
			With("username", acc.Username).
			Wrap(err)
	}
	return oops.Code("ACCOUNT_ID_EXHAUSTED").Errorf("could not allocate a unique account ID")
}

func (m *Manager) seedAccountData(ctx context.Context, acc *Account) error {
	data, err := m.AccountData(acc.ID)
	if err != nil {
		return err
	}
	nowMillis := m.now().UnixMilli()
	defaults := []struct {
		key   string
		value any
	}{
		{KeyLastLoginTime, nowMillis},
		{KeyRegistrationTimestamp, nowMillis},
		{KeyIsGuest, acc.IsGuest},
		{KeyMultiplayerEnabled, true},
		{KeyChatEnabled, true},
		{KeyStrictChatFilterEnable, false},
	}
	for _, d := range defaults {
		if err := data.SetValue(ctx, d.key, d.value); err != nil {
			if delErr := m.repo.DeleteAccount(ctx, acc.ID); delErr != nil {
				errutil.LogError(m.logger, "failed to roll back account after seeding failure", delErr)
			}
			return oops.Code("ACCOUNT_REGISTER_FAILED").
				With("operation", "seed account data").
				With("account_id", acc.ID).
				Wrap(err)
		}
	}
	return nil
}

// checkNewUsername validates name for use by allowedOwner ("" for a new account).
func (m *Manager) checkNewUsername(ctx context.Context, name, allowedOwner string) error {
	if err := ValidateUsername(name); err != nil {
		return validationError(err)
	}
	owner, err := m.repo.UsernameOwner(ctx, name)
	switch {
	case err == nil:
		if allowedOwner == "" || owner != allowedOwner {
			return validationError(ErrUsernameInUse)
		}
	case !errors.Is(err, ErrNotFound):
		return oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", "check username").Wrap(err)
	}
	if m.filter.IsFiltered(name, true) {
		return validationError(ErrUsernameFiltered)
	}
	return nil
}

// checkNewEmail validates email for use by allowedOwner. An empty email
// returns nil.
func (m *Manager) checkNewEmail(ctx context.Context, email, allowedOwner string) (*string, error) {
	if email == "" {
		return nil, nil
	}
	if err := ValidateEmail(email); err != nil {
		return nil, validationError(err)
	}
	owner, err := m.repo.GetAccountIDByEmail(ctx, email)
	switch {
	case err == nil:
		if allowedOwner == "" || owner != allowedOwner {
			return nil, validationError(ErrEmailInUse)
		}
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("operation", "check email").Wrap(err)
	}
	return &email, nil
}

// GetAccount returns an account, preferring the presence cache.
func (m *Manager) GetAccount(ctx context.Context, id string) (*Account, error) {
	if acc, ok := m.presence.Get(id); ok {
		return acc, nil
	}
	return m.loadAccount(ctx, id)
}

// loadAccount reads an account and its save IDs from the repository.
func (m *Manager) loadAccount(ctx context.Context, id string) (*Account, error) {
	acc, err := m.repo.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("account_id", id)
		}
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("account_id", id).Wrap(err)
	}
	return m.withSaves(ctx, acc)
}

func (m *Manager) withSaves(ctx context.Context, acc *Account) (*Account, error) {
	ids, err := m.repo.ListSaveIDs(ctx, acc.ID)
	if err != nil {
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").
			With("operation", "list saves").
			With("account_id", acc.ID).
			Wrap(err)
	}
	acc.SaveIDs = ids
	return acc, nil
}

// GetAccountByUsername looks up an account by login name.
func (m *Manager) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	acc, err := m.repo.GetAccountByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, notFound("username", username)
		}
		return nil, oops.Code("ACCOUNT_LOOKUP_FAILED").With("username", username).Wrap(err)
	}
	return m.withSaves(ctx, acc)
}

// GetGuestAccount returns the guest account registered for guestID.
func (m *Manager) GetGuestAccount(ctx context.Context, guestID string) (*Account, error) {
	return m.GetAccountByUsername(ctx, GuestUsernamePrefix+guestID)
}

// GetAccountIDByEmail returns the ID of the account using email.
func (m *Manager) GetAccountIDByEmail(ctx context.Context, email string) (string, error) {
	id, err := m.repo.GetAccountIDByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", notFound("email", email)
		}
		return "", oops.Code("ACCOUNT_LOOKUP_FAILED").With("email", email).Wrap(err)
	}
	return id, nil
}

// AccountExists reports whether an account with id exists.
func (m *Manager) AccountExists(ctx context.Context, id string) (bool, error) {
	if _, ok := m.presence.Get(id); ok {
		return true, nil
	}
	_, err := m.repo.GetAccount(ctx, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, oops.Code("ACCOUNT_LOOKUP_FAILED").With("account_id", id).Wrap(err)
}

// IsUsernameTaken reports whether name is used by any account or save,
// case-insensitively.
func (m *Manager) IsUsernameTaken(ctx context.Context, name string) (bool, error) {
	_, err := m.repo.UsernameOwner(ctx, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, oops.Code("ACCOUNT_LOOKUP_FAILED").With("username", name).Wrap(err)
}

// VerifyPassword checks password against the account's stored credential.
// Guest accounts never match.
func (m *Manager) VerifyPassword(ctx context.Context, id, password string) (bool, error) {
	acc, err := m.loadAccount(ctx, id)
	if err != nil {
		return false, err
	}
	return m.verify(acc, password)
}

func (m *Manager) verify(acc *Account, password string) (bool, error) {
	if acc.IsGuest && len(acc.Credential) == 0 {
		return false, nil
	}
	ok, err := keys.VerifyCredential(acc.Credential, password)
	if err != nil {
		return false, oops.With("account_id", acc.ID).Wrap(err)
	}
	return ok, nil
}

// UpdateUsername changes an account's login name. The account may take the
// name of one of its own saves.
func (m *Manager) UpdateUsername(ctx context.Context, id, username string) error {
	if err := m.checkNewUsername(ctx, username, id); err != nil {
		return err
	}
	if err := m.repo.UpdateUsername(ctx, id, username); err != nil {
		return m.updateError(err, "update username", id)
	}
	m.refreshCached(ctx, id)
	return nil
}

// UpdateEmail sets an account's email. An empty email clears it.
func (m *Manager) UpdateEmail(ctx context.Context, id, email string) error {
	emailPtr, err := m.checkNewEmail(ctx, email, id)
	if err != nil {
		return err
	}
	if err := m.repo.UpdateEmail(ctx, id, emailPtr); err != nil {
		return m.updateError(err, "update email", id)
	}
	m.refreshCached(ctx, id)
	return nil
}

// UpdatePassword replaces an account's credential.
func (m *Manager) UpdatePassword(ctx context.Context, id, password string) error {
	if err := ValidatePassword(password); err != nil {
		return validationError(err)
	}
	cred, err := keys.DeriveCredential(password)
	if err != nil {
		return oops.Code("ACCOUNT_UPDATE_FAILED").With("operation", "derive credential").Wrap(err)
	}
	if err := m.repo.UpdateCredential(ctx, id, cred); err != nil {
		return m.updateError(err, "update credential", id)
	}
	m.refreshCached(ctx, id)
	return nil
}

func (m *Manager) updateError(err error, operation, id string) error {
	if errors.Is(err, ErrNotFound) {
		return notFound("account_id", id)
	}
	if Reason(err) != "" {
		return validationError(err)
	}
	return oops.Code("ACCOUNT_UPDATE_FAILED").
		With("operation", operation).
		With("account_id", id).
		Wrap(err)
}

// refreshCached reloads a cached account after a write. Accounts that are
// not cached are left alone.
func (m *Manager) refreshCached(ctx context.Context, id string) {
	if _, ok := m.presence.Get(id); !ok {
		return
	}
	acc, err := m.loadAccount(ctx, id)
	if err != nil {
		errutil.LogError(m.logger, "failed to refresh cached account", err)
		m.presence.Remove(id)
		return
	}
	m.presence.Update(acc)
}

// DeleteAccount removes an account, its saves and all their data.
func (m *Manager) DeleteAccount(ctx context.Context, id string) error {
	acc, err := m.loadAccount(ctx, id)
	if err != nil {
		return err
	}

	for _, saveID := range acc.SaveIDs {
		if err := m.deleteSaveData(ctx, saveID); err != nil {
			return err
		}
	}

	root := datacontainer.Root(m.driver, datacontainer.Owner{Kind: datacontainer.OwnerAccount, ID: id})
	if err := root.DeleteContainer(ctx); err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account data").
			With("account_id", id).
			Wrap(err)
	}

	if err := m.repo.DeleteAccount(ctx, id); err != nil {
		return oops.Code("ACCOUNT_DELETE_FAILED").
			With("operation", "delete account").
			With("account_id", id).
			Wrap(err)
	}
	m.presence.Remove(id)

	m.logger.Info("account deleted", "account_id", id, "saves", len(acc.SaveIDs))
	return nil
}

// KeepInMemory marks acc active. Only the account's own session may pass
// addIfAbsent; lookups on behalf of third parties must only refresh.
func (m *Manager) KeepInMemory(acc *Account, addIfAbsent bool) bool {
	return m.presence.Keep(acc, addIfAbsent)
}

// OnlineAccountIDs returns the IDs of accounts in the presence cache.
func (m *Manager) OnlineAccountIDs() []string {
	return m.presence.IDs()
}
