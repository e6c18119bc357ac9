// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package datacontainer

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// OwnerKind identifies the namespace a container tree belongs to.
type OwnerKind string

// Owner kinds.
const (
	OwnerAccount OwnerKind = "account"
	OwnerSave    OwnerKind = "save"
	OwnerCommon  OwnerKind = "common"
)

// Owner roots a container tree. Each tree belongs to exactly one owner.
type Owner struct {
	Kind OwnerKind
	ID   string
}

// String returns "kind:id".
func (o Owner) String() string {
	return string(o.Kind) + ":" + o.ID
}

// MaxKeyLength returns the maximum entry key length for the owner kind.
func (o Owner) MaxKeyLength() int {
	if o.Kind == OwnerCommon {
		return 64
	}
	return 32
}

// Errors returned by drivers.
var (
	// ErrEntryExists is returned by Create when the key already has an entry.
	ErrEntryExists = errors.New("entry already exists")

	// ErrRemoteFailure is returned when a remote driver reports success=false.
	ErrRemoteFailure = errors.New("remote account manager reported failure")
)

// Driver persists container entries. The container argument is the
// hierarchical path of the node: "" for the root, "accountdata/" for a
// child, "accountdata/inventory/" for a grandchild.
//
// Implementations must keep the tri-state contract: Set with a JSON null
// makes the entry present-null, Get on an unknown key returns Absent.
// Drivers never hold in-process locks across backend I/O.
type Driver interface {
	// Get returns the entry for key.
	Get(ctx context.Context, owner Owner, container, key string) (Value, error)

	// Set inserts or replaces the entry for key.
	Set(ctx context.Context, owner Owner, container, key string, raw json.RawMessage) error

	// Create inserts the entry for key, failing with ErrEntryExists if present.
	Create(ctx context.Context, owner Owner, container, key string, raw json.RawMessage) error

	// Exists reports whether key has an entry, including present-null entries.
	Exists(ctx context.Context, owner Owner, container, key string) (bool, error)

	// Delete removes the entry for key. Deleting an absent key is not an error.
	Delete(ctx context.Context, owner Owner, container, key string) error

	// Keys lists the entry keys held directly by container, sorted.
	Keys(ctx context.Context, owner Owner, container string) ([]string, error)

	// Children lists the names of direct child containers, sorted.
	Children(ctx context.Context, owner Owner, container string) ([]string, error)

	// DeleteContainer removes container, its entries, and all descendants.
	// Passing "" removes the owner's whole tree.
	DeleteContainer(ctx context.Context, owner Owner, container string) error
}

// childName returns the name of the direct child of parent that contains
// path, or "" when path is not strictly below parent.
func childName(parent, path string) string {
	if !strings.HasPrefix(path, parent) || len(path) == len(parent) {
		return ""
	}
	rest := path[len(parent):]
	idx := strings.Index(rest, "/")
	if idx <= 0 {
		return ""
	}
	return rest[:idx]
}
