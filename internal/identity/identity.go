// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

// Package identity manages grid identities: the principals behind tokens.
//
// Every account is also an identity, addressed by its account ID. Plain
// identities live in the common data container and are used for game
// servers and the system principal. A plain identity carrying the
// serverCertificateProperties property is a server; its owner must stay
// in good standing for the server to keep acting.
package identity

import (
	"errors"
	"maps"
)

// SystemID is the nil UUID. Its identity is created on first use.
const SystemID = "00000000-0000-0000-0000-000000000000"

// Well-known property names.
const (
	PropName              = "name"
	PropDisplayName       = "displayName"
	PropHostBanned        = "hostBanned"
	PropServerHost        = "serverHost"
	PropOwner             = "owner"
	PropServerCertificate = "serverCertificateProperties"
)

// Errors returned by this package. They are wrapped with oops codes.
var (
	ErrNotFound           = errors.New("identity not found")
	ErrReadOnly           = errors.New("property is read-only")
	ErrHostBanned         = errors.New("owner is host-banned")
	ErrOwnerMissing       = errors.New("owner no longer exists")
	ErrNotServer          = errors.New("identity is not a server")
	ErrServerOwner        = errors.New("a server cannot own servers")
	ErrAccountBacked      = errors.New("identity belongs to an account")
	ErrCertificateCorrupt = errors.New("certificate is corrupt")
)

// Property is a named identity attribute.
type Property struct {
	Value    string `json:"value"`
	ReadOnly bool   `json:"readOnly"`
}

// Identity is a principal that can hold tokens.
type Identity struct {
	ID string

	// LastUpdateTime anchors tokens, in Unix milliseconds.
	LastUpdateTime         int64
	SignificantFieldNumber int64
	SignificantFieldRandom int32

	Properties map[string]Property

	account bool
}

// IsAccount reports whether the identity is a player account.
func (i *Identity) IsAccount() bool {
	return i.account
}

// IsServer reports whether the identity carries server certificate properties.
func (i *Identity) IsServer() bool {
	_, ok := i.Properties[PropServerCertificate]
	return ok
}

// IsSystem reports whether the identity is the system principal.
func (i *Identity) IsSystem() bool {
	return i.ID == SystemID
}

// Property returns the value of a property.
func (i *Identity) Property(name string) (string, bool) {
	p, ok := i.Properties[name]
	return p.Value, ok
}

// DisplayName returns the displayName property, falling back to the ID.
func (i *Identity) DisplayName() string {
	if name, ok := i.Property(PropDisplayName); ok && name != "" {
		return name
	}
	return i.ID
}

// Owner returns the ID of the principal that created a server identity.
func (i *Identity) Owner() (string, bool) {
	return i.Property(PropOwner)
}

// Public returns a copy without the server's private certificate data.
func (i *Identity) Public() *Identity {
	c := i.clone()
	delete(c.Properties, PropServerCertificate)
	return c
}

func (i *Identity) clone() *Identity {
	c := *i
	c.Properties = maps.Clone(i.Properties)
	if c.Properties == nil {
		c.Properties = make(map[string]Property)
	}
	return &c
}

// record is the stored JSON form of an identity.
type record struct {
	LastUpdate int64               `json:"lastUpdate"`
	Number     int64               `json:"sfn"`
	Random     int32               `json:"sfr"`
	Properties map[string]Property `json:"properties"`
}

func (i *Identity) record() record {
	return record{
		LastUpdate: i.LastUpdateTime,
		Number:     i.SignificantFieldNumber,
		Random:     i.SignificantFieldRandom,
		Properties: i.Properties,
	}
}

func (r record) identity(id string) *Identity {
	props := r.Properties
	if props == nil {
		props = make(map[string]Property)
	}
	return &Identity{
		ID:                     id,
		LastUpdateTime:         r.LastUpdate,
		SignificantFieldNumber: r.Number,
		SignificantFieldRandom: r.Random,
		Properties:             props,
	}
}
