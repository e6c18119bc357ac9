// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package token

import (
	"context"
	"errors"
)

// SystemPrincipalID is the nil UUID used by operator and system tokens.
const SystemPrincipalID = "00000000-0000-0000-0000-000000000000"

// ErrPrincipalNotFound is returned by a PrincipalSource for unknown IDs.
var ErrPrincipalNotFound = errors.New("principal not found")

// PrincipalKind distinguishes account principals from plain identities.
type PrincipalKind string

// Principal kinds.
const (
	KindAccount  PrincipalKind = "account"
	KindIdentity PrincipalKind = "identity"
	KindSystem   PrincipalKind = "system"
)

// SignificantFields is the (random, number) pair compared against tokens
// that embed it. Rotating either value revokes every such token at once.
type SignificantFields struct {
	Random int32
	Number int64
}

// Principal is the current persisted state of a token subject.
type Principal struct {
	ID          string
	Kind        PrincipalKind
	DisplayName string

	// LastUpdate is the stamp tokens are anchored to, in Unix milliseconds.
	LastUpdate int64

	// Significant is nil when the principal has no recorded pair.
	Significant *SignificantFields

	// Server is set for identities that carry server certificate properties.
	Server bool
}

// SessionState is written back to a principal to rotate its sessions.
type SessionState struct {
	LastUpdate  int64
	Significant SignificantFields
}

// PrincipalSource resolves token subjects and persists their session state.
// ResolvePrincipal returns ErrPrincipalNotFound (possibly wrapped) when the
// subject no longer exists or may no longer act, for example a server whose
// owner has been host-banned.
type PrincipalSource interface {
	ResolvePrincipal(ctx context.Context, id string) (*Principal, error)
	StoreSessionState(ctx context.Context, id string, state SessionState) error
}
