// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package identity

import (
	"context"
	"errors"

	"github.com/samber/oops"

	"github.com/nexusgrid/nexusgrid/internal/token"
)

// Directory exposes the registry to the token system.
type Directory struct {
	registry *Registry
}

var _ token.PrincipalSource = (*Directory)(nil)

// NewDirectory creates a Directory over registry.
func NewDirectory(registry *Registry) *Directory {
	return &Directory{registry: registry}
}

// ResolvePrincipal returns the token principal for id. Server identities
// whose owner is host-banned or gone are deleted and reported as not found.
func (d *Directory) ResolvePrincipal(ctx context.Context, id string) (*token.Principal, error) {
	ident, err := d.registry.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.With("identity_id", id).Wrap(token.ErrPrincipalNotFound)
		}
		return nil, err
	}
	if err := d.registry.CheckServerOwner(ctx, ident); err != nil {
		if errors.Is(err, ErrHostBanned) || errors.Is(err, ErrOwnerMissing) {
			return nil, oops.With("identity_id", id).Wrap(token.ErrPrincipalNotFound)
		}
		return nil, err
	}
	return principal(ident), nil
}

// StoreSessionState writes new session anchors to the identity.
func (d *Directory) StoreSessionState(ctx context.Context, id string, state token.SessionState) error {
	ident, err := d.registry.Get(ctx, id)
	if err != nil {
		return err
	}
	ident.LastUpdateTime = state.LastUpdate
	ident.SignificantFieldRandom = state.Significant.Random
	ident.SignificantFieldNumber = state.Significant.Number
	return d.registry.save(ctx, ident)
}

func principal(ident *Identity) *token.Principal {
	kind := token.KindIdentity
	switch {
	case ident.IsSystem():
		kind = token.KindSystem
	case ident.IsAccount():
		kind = token.KindAccount
	}
	return &token.Principal{
		ID:          ident.ID,
		Kind:        kind,
		DisplayName: ident.DisplayName(),
		LastUpdate:  ident.LastUpdateTime,
		Significant: &token.SignificantFields{
			Random: ident.SignificantFieldRandom,
			Number: ident.SignificantFieldNumber,
		},
		Server: ident.IsServer(),
	}
}
