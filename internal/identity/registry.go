// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package identity

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/oops"

	"github.com/nexusgrid/nexusgrid/internal/account"
	"github.com/nexusgrid/nexusgrid/internal/datacontainer"
	"github.com/nexusgrid/nexusgrid/pkg/errutil"
)

// Owner of the common tree holding plain identities.
var identitiesOwner = datacontainer.Owner{Kind: datacontainer.OwnerCommon, ID: "identities"}

const (
	keyPrefix     = "id-"
	maxIDAttempts = 10
)

// Accounts is the part of the account store the registry needs.
// *account.Manager implements it.
type Accounts interface {
	GetAccount(ctx context.Context, id string) (*account.Account, error)
	AccountExists(ctx context.Context, id string) (bool, error)
	AccountData(id string) (*datacontainer.Container, error)
	UpdateUsername(ctx context.Context, id, username string) error
}

// Registry stores identities.
type Registry struct {
	root     *datacontainer.Container
	accounts Accounts
	now      func() time.Time
	random   func() int32
	newID    func() string
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithRandom overrides the significant-field random generator.
func WithRandom(fn func() int32) Option {
	return func(r *Registry) { r.random = fn }
}

// WithIDGenerator overrides identity ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) { r.newID = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a Registry storing plain identities through driver
// and resolving account identities through accounts.
func NewRegistry(driver datacontainer.Driver, accounts Accounts, opts ...Option) *Registry {
	r := &Registry{
		root:     datacontainer.Root(driver, identitiesOwner),
		accounts: accounts,
		now:      time.Now,
		random:   randomInt32,
		newID:    uuid.NewString,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create stores a new plain identity with the given properties under a
// fresh ID that is used by neither an identity nor an account.
func (r *Registry) Create(ctx context.Context, props map[string]Property) (*Identity, error) {
	for range maxIDAttempts {
		id := r.newID()
		if id == SystemID {
			continue
		}
		taken, err := r.accounts.AccountExists(ctx, id)
		if err != nil {
			return nil, oops.Code("IDENTITY_CREATE_FAILED").With("operation", "check account").Wrap(err)
		}
		if taken {
			continue
		}

		nowMs := r.now().UnixMilli()
		ident := &Identity{
			ID:                     id,
			LastUpdateTime:         nowMs,
			SignificantFieldNumber: nowMs,
			SignificantFieldRandom: r.random(),
			Properties:             maps.Clone(props),
		}
		if ident.Properties == nil {
			ident.Properties = make(map[string]Property)
		}
		err = r.createRecord(ctx, ident)
		if errors.Is(err, datacontainer.ErrEntryExists) {
			continue
		}
		if err != nil {
			return nil, oops.Code("IDENTITY_CREATE_FAILED").With("identity_id", id).Wrap(err)
		}
		r.logger.Info("identity created", "identity_id", id)
		return ident.clone(), nil
	}
	return nil, oops.Code("IDENTITY_ID_EXHAUSTED").Errorf("could not allocate a unique identity ID")
}

func (r *Registry) createRecord(ctx context.Context, ident *Identity) error {
	raw, err := datacontainer.Encode(ident.record())
	if err != nil {
		return err
	}
	return r.root.Create(ctx, keyPrefix+ident.ID, raw)
}

// Get returns the identity with id. Account IDs resolve to the account's
// identity, which is initialised on first access. The system identity is
// created on first access.
func (r *Registry) Get(ctx context.Context, id string) (*Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, notFound(id)
	}

	v, err := r.root.Get(ctx, keyPrefix+id)
	if err != nil {
		return nil, oops.Code("IDENTITY_LOOKUP_FAILED").With("identity_id", id).Wrap(err)
	}
	if v.HasValue() {
		var rec record
		if err := v.Decode(&rec); err != nil {
			return nil, oops.Code("IDENTITY_CORRUPT").With("identity_id", id).Wrap(err)
		}
		return rec.identity(id), nil
	}

	if id == SystemID {
		return r.createSystem(ctx)
	}

	acc, err := r.accounts.GetAccount(ctx, id)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, notFound(id)
		}
		return nil, oops.Code("IDENTITY_LOOKUP_FAILED").With("identity_id", id).Wrap(err)
	}
	return r.accountIdentity(ctx, acc)
}

func (r *Registry) createSystem(ctx context.Context) (*Identity, error) {
	nowMs := r.now().UnixMilli()
	ident := &Identity{
		ID:                     SystemID,
		LastUpdateTime:         nowMs,
		SignificantFieldNumber: nowMs,
		SignificantFieldRandom: r.random(),
		Properties: map[string]Property{
			PropName:        {Value: "system", ReadOnly: true},
			PropDisplayName: {Value: "System"},
		},
	}
	err := r.createRecord(ctx, ident)
	if errors.Is(err, datacontainer.ErrEntryExists) {
		return r.Get(ctx, SystemID)
	}
	if err != nil {
		return nil, oops.Code("IDENTITY_CREATE_FAILED").With("identity_id", SystemID).Wrap(err)
	}
	r.logger.Info("system identity created")
	return ident, nil
}

// accountIdentity loads the identity record kept in an account's
// accountdata, creating the record and its session anchors if missing.
// displayName always follows the account's current username.
func (r *Registry) accountIdentity(ctx context.Context, acc *account.Account) (*Identity, error) {
	data, err := r.accounts.AccountData(acc.ID)
	if err != nil {
		return nil, err
	}
	fail := func(op string, err error) error {
		return oops.Code("IDENTITY_LOOKUP_FAILED").With("operation", op).With("identity_id", acc.ID).Wrap(err)
	}

	v, err := data.Get(ctx, account.KeyIdentity)
	if err != nil {
		return nil, fail("read identity", err)
	}
	var rec record
	dirty := false
	if v.HasValue() {
		if err := v.Decode(&rec); err != nil {
			return nil, oops.Code("IDENTITY_CORRUPT").With("identity_id", acc.ID).Wrap(err)
		}
	} else {
		rec.Properties = map[string]Property{
			PropName: {Value: acc.ID, ReadOnly: true},
		}
		dirty = true
	}
	ident := rec.identity(acc.ID)
	ident.account = true
	if p := ident.Properties[PropDisplayName]; p.Value != acc.Username {
		ident.Properties[PropDisplayName] = Property{Value: acc.Username}
		dirty = true
	}

	nowMs := r.now().UnixMilli()
	anchors := []struct {
		key  string
		dst  *int64
		init int64
	}{
		{account.KeyLastUpdate, &ident.LastUpdateTime, nowMs},
		{account.KeySignificantNumber, &ident.SignificantFieldNumber, nowMs},
	}
	for _, a := range anchors {
		n, ok, err := data.Int64(ctx, a.key)
		if err != nil {
			return nil, fail("read "+a.key, err)
		}
		if !ok {
			n = a.init
			if err := data.SetValue(ctx, a.key, n); err != nil {
				return nil, fail("init "+a.key, err)
			}
		}
		*a.dst = n
	}
	random, ok, err := data.Int64(ctx, account.KeySignificantRandom)
	if err != nil {
		return nil, fail("read "+account.KeySignificantRandom, err)
	}
	if !ok {
		random = int64(r.random())
		if err := data.SetValue(ctx, account.KeySignificantRandom, random); err != nil {
			return nil, fail("init "+account.KeySignificantRandom, err)
		}
	}
	ident.SignificantFieldRandom = int32(random) //nolint:gosec // stored from an int32

	if dirty {
		if err := data.SetValue(ctx, account.KeyIdentity, ident.record()); err != nil {
			return nil, fail("write identity", err)
		}
	}
	return ident, nil
}

// Exists reports whether id names an identity or an account.
func (r *Registry) Exists(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	if id == SystemID {
		return true, nil
	}
	ok, err := r.root.Exists(ctx, keyPrefix+id)
	if err != nil {
		return false, oops.Code("IDENTITY_LOOKUP_FAILED").With("identity_id", id).Wrap(err)
	}
	if ok {
		return true, nil
	}
	ok, err = r.accounts.AccountExists(ctx, id)
	if err != nil {
		return false, oops.Code("IDENTITY_LOOKUP_FAILED").With("identity_id", id).Wrap(err)
	}
	return ok, nil
}

// Update applies property changes and bumps the last-update stamp, which
// revokes every token held by the identity. Only displayName, hostBanned
// and existing mutable properties can be changed. On an account,
// displayName renames the account and hostBanned sets its host ban.
func (r *Registry) Update(ctx context.Context, id string, changes map[string]string) (*Identity, error) {
	ident, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	names := slices.Sorted(maps.Keys(changes))
	for _, name := range names {
		if name == PropDisplayName || name == PropHostBanned {
			continue
		}
		if p, ok := ident.Properties[name]; !ok || p.ReadOnly {
			return nil, oops.Code("IDENTITY_PROPERTY_READONLY").
				With("identity_id", id).
				With("property", name).
				Wrap(ErrReadOnly)
		}
	}

	if ident.IsAccount() {
		if name, ok := changes[PropDisplayName]; ok && name != ident.DisplayName() {
			if err := r.accounts.UpdateUsername(ctx, id, name); err != nil {
				return nil, err
			}
		}
		if banned, ok := changes[PropHostBanned]; ok {
			data, err := r.accounts.AccountData(id)
			if err != nil {
				return nil, err
			}
			if err := data.SetValue(ctx, account.KeyHostBanned, strings.EqualFold(banned, "true")); err != nil {
				return nil, oops.Code("IDENTITY_UPDATE_FAILED").With("identity_id", id).Wrap(err)
			}
		}
	}

	for _, name := range names {
		if ident.IsAccount() && name == PropHostBanned {
			continue
		}
		ident.Properties[name] = Property{Value: changes[name]}
	}
	ident.LastUpdateTime = max(r.now().UnixMilli(), ident.LastUpdateTime+1)

	if err := r.save(ctx, ident); err != nil {
		return nil, err
	}
	r.logger.Info("identity updated", "identity_id", id, "properties", names)
	return ident, nil
}

// save writes ident back. Account identities write their session anchors
// to accountdata.
func (r *Registry) save(ctx context.Context, ident *Identity) error {
	fail := func(err error) error {
		return oops.Code("IDENTITY_UPDATE_FAILED").With("identity_id", ident.ID).Wrap(err)
	}
	if !ident.IsAccount() {
		if err := r.root.SetValue(ctx, keyPrefix+ident.ID, ident.record()); err != nil {
			return fail(err)
		}
		return nil
	}

	data, err := r.accounts.AccountData(ident.ID)
	if err != nil {
		return fail(err)
	}
	entries := []struct {
		key   string
		value any
	}{
		{account.KeySignificantRandom, ident.SignificantFieldRandom},
		{account.KeySignificantNumber, ident.SignificantFieldNumber},
		{account.KeyIdentity, ident.record()},
		{account.KeyLastUpdate, ident.LastUpdateTime},
	}
	for _, e := range entries {
		if err := data.SetValue(ctx, e.key, e.value); err != nil {
			return fail(err)
		}
	}
	return nil
}

// Delete removes a plain identity. Account identities go away with their
// account.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return notFound(id)
	}
	ok, err := r.root.Exists(ctx, keyPrefix+id)
	if err != nil {
		return oops.Code("IDENTITY_DELETE_FAILED").With("identity_id", id).Wrap(err)
	}
	if !ok {
		isAccount, err := r.accounts.AccountExists(ctx, id)
		if err != nil {
			return oops.Code("IDENTITY_DELETE_FAILED").With("identity_id", id).Wrap(err)
		}
		if isAccount {
			return oops.Code("IDENTITY_ACCOUNT_BACKED").With("identity_id", id).Wrap(ErrAccountBacked)
		}
		return notFound(id)
	}
	if err := r.root.Delete(ctx, keyPrefix+id); err != nil {
		return oops.Code("IDENTITY_DELETE_FAILED").With("identity_id", id).Wrap(err)
	}
	r.logger.Info("identity deleted", "identity_id", id)
	return nil
}

// List returns the public views of all plain identities, ordered by ID.
func (r *Registry) List(ctx context.Context) ([]*Identity, error) {
	keys, err := r.root.Keys(ctx)
	if err != nil {
		return nil, oops.Code("IDENTITY_LOOKUP_FAILED").With("operation", "list").Wrap(err)
	}
	out := make([]*Identity, 0, len(keys))
	for _, key := range keys {
		id, ok := strings.CutPrefix(key, keyPrefix)
		if !ok {
			continue
		}
		ident, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, ident.Public())
	}
	return out, nil
}

// isHostBanned reports whether ident may not own servers.
func (r *Registry) isHostBanned(ctx context.Context, ident *Identity) (bool, error) {
	if !ident.IsAccount() {
		v, _ := ident.Property(PropHostBanned)
		return strings.EqualFold(v, "true"), nil
	}
	data, err := r.accounts.AccountData(ident.ID)
	if err != nil {
		return false, err
	}
	banned, _, err := data.Bool(ctx, account.KeyHostBanned)
	if err != nil {
		return false, oops.Code("IDENTITY_LOOKUP_FAILED").With("identity_id", ident.ID).Wrap(err)
	}
	return banned, nil
}

// CheckServerOwner walks from a server identity to its owner. When the
// owner is host-banned or gone, the server identity is deleted and
// ErrHostBanned or ErrOwnerMissing is returned. Other identities pass.
func (r *Registry) CheckServerOwner(ctx context.Context, server *Identity) error {
	if !server.IsServer() {
		return nil
	}
	ownerID, _ := server.Owner()
	if ownerID == "" || ownerID == SystemID {
		return nil
	}

	cause := ErrHostBanned
	owner, err := r.Get(ctx, ownerID)
	switch {
	case errors.Is(err, ErrNotFound):
		cause = ErrOwnerMissing
	case err != nil:
		return err
	default:
		banned, err := r.isHostBanned(ctx, owner)
		if err != nil {
			return err
		}
		if !banned {
			return nil
		}
	}

	if err := r.Delete(ctx, server.ID); err != nil && !errors.Is(err, ErrNotFound) {
		errutil.LogError(r.logger, "failed to remove server of banned owner", err)
	}
	r.logger.Warn("server identity revoked",
		"identity_id", server.ID, "owner_id", ownerID, "reason", cause.Error())
	return oops.Code("IDENTITY_SERVER_REVOKED").
		With("identity_id", server.ID).
		With("owner_id", ownerID).
		Wrap(cause)
}

func notFound(id string) error {
	return oops.Code("IDENTITY_NOT_FOUND").With("identity_id", id).Wrap(ErrNotFound)
}

func randomInt32() int32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return int32(binary.BigEndian.Uint32(b[:])) //nolint:gosec // bit pattern reinterpretation
}
