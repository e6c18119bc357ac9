// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package datacontainer

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

type memoryKey struct {
	owner     Owner
	container string
	key       string
}

// MemoryDriver keeps every tree in process memory.
type MemoryDriver struct {
	mu      sync.RWMutex
	entries map[memoryKey]json.RawMessage
}

// NewMemoryDriver creates an empty MemoryDriver.
func NewMemoryDriver() *MemoryDriver {
	return &MemoryDriver{entries: make(map[memoryKey]json.RawMessage)}
}

// Get returns the entry for key.
func (d *MemoryDriver) Get(_ context.Context, owner Owner, container, key string) (Value, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	raw, ok := d.entries[memoryKey{owner, container, key}]
	if !ok {
		return Absent(), nil
	}
	return Of(normalize(raw)), nil
}

// Set inserts or replaces the entry for key.
func (d *MemoryDriver) Set(_ context.Context, owner Owner, container, key string, raw json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.entries[memoryKey{owner, container, key}] = normalize(raw)
	return nil
}

// Create inserts the entry for key if absent.
func (d *MemoryDriver) Create(_ context.Context, owner Owner, container, key string, raw json.RawMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := memoryKey{owner, container, key}
	if _, ok := d.entries[k]; ok {
		return ErrEntryExists
	}
	d.entries[k] = normalize(raw)
	return nil
}

// Exists reports whether key has an entry.
func (d *MemoryDriver) Exists(_ context.Context, owner Owner, container, key string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, ok := d.entries[memoryKey{owner, container, key}]
	return ok, nil
}

// Delete removes the entry for key.
func (d *MemoryDriver) Delete(_ context.Context, owner Owner, container, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	delete(d.entries, memoryKey{owner, container, key})
	return nil
}

// Keys lists the entry keys held directly by container.
func (d *MemoryDriver) Keys(_ context.Context, owner Owner, container string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := []string{}
	for k := range d.entries {
		if k.owner == owner && k.container == container {
			keys = append(keys, k.key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Children lists the direct child containers of container.
func (d *MemoryDriver) Children(_ context.Context, owner Owner, container string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	seen := make(map[string]struct{})
	for k := range d.entries {
		if k.owner != owner {
			continue
		}
		if name := childName(container, k.container); name != "" {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteContainer removes container and all its descendants.
func (d *MemoryDriver) DeleteContainer(_ context.Context, owner Owner, container string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for k := range d.entries {
		if k.owner == owner && strings.HasPrefix(k.container, container) {
			delete(d.entries, k)
		}
	}
	return nil
}

var _ Driver = (*MemoryDriver)(nil)
