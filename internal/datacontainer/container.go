// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package datacontainer

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/samber/oops"
)

// maxPathLength bounds the stored container path plus one maximal key.
const maxPathLength = 256

// reservedKey was the key-registry entry of older storage layouts and stays
// unusable so that imported trees cannot collide with it.
const reservedKey = "datamap"

// Container is a node in an owner's tree.
type Container struct {
	driver Driver
	owner  Owner
	path   string
}

// Root returns the root container of owner's tree.
func Root(driver Driver, owner Owner) *Container {
	return &Container{driver: driver, owner: owner}
}

// Owner returns the owner of the tree this container belongs to.
func (c *Container) Owner() Owner {
	return c.owner
}

// Path returns the hierarchical path of the container ("" for the root).
func (c *Container) Path() string {
	return c.path
}

// Name returns the last path segment, or "" for the root.
func (c *Container) Name() string {
	if c.path == "" {
		return ""
	}
	trimmed := strings.TrimSuffix(c.path, "/")
	return trimmed[strings.LastIndex(trimmed, "/")+1:]
}

// ValidateKey checks that key is usable as an entry or container name for owner.
func ValidateKey(owner Owner, key string) error {
	if strings.TrimSpace(key) == "" {
		return oops.Code("CONTAINER_INVALID_KEY").Errorf("key cannot be blank")
	}
	if strings.EqualFold(key, reservedKey) {
		return oops.Code("CONTAINER_INVALID_KEY").With("key", key).Errorf("key %q is reserved", key)
	}
	if strings.Contains(key, "/") {
		return oops.Code("CONTAINER_INVALID_KEY").With("key", key).Errorf("key cannot contain '/'")
	}
	if len(key) > owner.MaxKeyLength() {
		return oops.Code("CONTAINER_INVALID_KEY").
			With("key", key).
			With("max_length", owner.MaxKeyLength()).
			Errorf("key exceeds %d characters", owner.MaxKeyLength())
	}
	return nil
}

// Child returns the named child container. The child does not need to exist;
// it comes into existence when an entry is written below it.
func (c *Container) Child(name string) (*Container, error) {
	if err := ValidateKey(c.owner, name); err != nil {
		return nil, err
	}
	path := c.path + name + "/"
	if len(path)+32 > maxPathLength {
		return nil, oops.Code("CONTAINER_PATH_TOO_LONG").
			With("path", path).
			Errorf("container path too long")
	}
	return &Container{driver: c.driver, owner: c.owner, path: path}, nil
}

// Get returns the tri-state value of key.
func (c *Container) Get(ctx context.Context, key string) (Value, error) {
	if err := ValidateKey(c.owner, key); err != nil {
		return Absent(), err
	}
	v, err := c.driver.Get(ctx, c.owner, c.path, key)
	if err != nil {
		return Absent(), c.wrap(err, "get", key)
	}
	return v, nil
}

// Set writes raw to key. A nil raw stores a JSON null.
func (c *Container) Set(ctx context.Context, key string, raw json.RawMessage) error {
	if err := ValidateKey(c.owner, key); err != nil {
		return err
	}
	if err := c.driver.Set(ctx, c.owner, c.path, key, Of(raw).Raw()); err != nil {
		return c.wrap(err, "set", key)
	}
	return nil
}

// SetValue marshals v and writes it to key.
func (c *Container) SetValue(ctx context.Context, key string, v any) error {
	raw, err := Encode(v)
	if err != nil {
		return oops.With("key", key).Wrap(err)
	}
	return c.Set(ctx, key, raw)
}

// Create writes raw to key only if key has no entry yet.
func (c *Container) Create(ctx context.Context, key string, raw json.RawMessage) error {
	if err := ValidateKey(c.owner, key); err != nil {
		return err
	}
	if err := c.driver.Create(ctx, c.owner, c.path, key, Of(raw).Raw()); err != nil {
		return c.wrap(err, "create", key)
	}
	return nil
}

// Exists reports whether key has an entry (including present-null).
func (c *Container) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(c.owner, key); err != nil {
		return false, err
	}
	ok, err := c.driver.Exists(ctx, c.owner, c.path, key)
	if err != nil {
		return false, c.wrap(err, "exists", key)
	}
	return ok, nil
}

// Delete removes key.
func (c *Container) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(c.owner, key); err != nil {
		return err
	}
	if err := c.driver.Delete(ctx, c.owner, c.path, key); err != nil {
		return c.wrap(err, "delete", key)
	}
	return nil
}

// Keys lists the entry keys held directly by this container.
func (c *Container) Keys(ctx context.Context) ([]string, error) {
	keys, err := c.driver.Keys(ctx, c.owner, c.path)
	if err != nil {
		return nil, c.wrap(err, "keys", "")
	}
	return keys, nil
}

// Children lists the direct child containers.
func (c *Container) Children(ctx context.Context) ([]*Container, error) {
	names, err := c.driver.Children(ctx, c.owner, c.path)
	if err != nil {
		return nil, c.wrap(err, "children", "")
	}
	out := make([]*Container, 0, len(names))
	for _, name := range names {
		out = append(out, &Container{driver: c.driver, owner: c.owner, path: c.path + name + "/"})
	}
	return out, nil
}

// DeleteContainer removes this container and everything below it.
func (c *Container) DeleteContainer(ctx context.Context) error {
	if err := c.driver.DeleteContainer(ctx, c.owner, c.path); err != nil {
		return c.wrap(err, "delete container", "")
	}
	return nil
}

// Int64 reads key as an integer. ok is false when the entry is absent or null.
func (c *Container) Int64(ctx context.Context, key string) (n int64, ok bool, err error) {
	v, err := c.Get(ctx, key)
	if err != nil || !v.HasValue() {
		return 0, false, err
	}
	if err := v.Decode(&n); err != nil {
		return 0, false, oops.With("key", key).Wrap(err)
	}
	return n, true, nil
}

// Bool reads key as a boolean. ok is false when the entry is absent or null.
func (c *Container) Bool(ctx context.Context, key string) (b, ok bool, err error) {
	v, err := c.Get(ctx, key)
	if err != nil || !v.HasValue() {
		return false, false, err
	}
	if err := v.Decode(&b); err != nil {
		return false, false, oops.With("key", key).Wrap(err)
	}
	return b, true, nil
}

// String reads key as a string. ok is false when the entry is absent or null.
func (c *Container) String(ctx context.Context, key string) (s string, ok bool, err error) {
	v, err := c.Get(ctx, key)
	if err != nil || !v.HasValue() {
		return "", false, err
	}
	if err := v.Decode(&s); err != nil {
		return "", false, oops.With("key", key).Wrap(err)
	}
	return s, true, nil
}

func (c *Container) wrap(err error, operation, key string) error {
	b := oops.Code("CONTAINER_OPERATION_FAILED").
		With("operation", operation).
		With("owner", c.owner.String()).
		With("container", c.path)
	if key != "" {
		b = b.With("key", key)
	}
	return b.Wrap(err)
}
