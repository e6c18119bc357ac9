// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

// Package postgres provides a PostgreSQL-backed data container driver.
package postgres

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/nexusgrid/nexusgrid/internal/datacontainer"
)

// poolIface is the subset of pgxpool.Pool used by the driver.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Driver stores one row per leaf entry in container_entries.
type Driver struct {
	pool poolIface
}

// NewDriver creates a new Driver.
func NewDriver(pool poolIface) *Driver {
	return &Driver{pool: pool}
}

// Get returns the entry for key.
func (d *Driver) Get(ctx context.Context, owner datacontainer.Owner, container, key string) (datacontainer.Value, error) {
	var data []byte
	err := d.pool.QueryRow(ctx, `
		SELECT data FROM container_entries
		WHERE owner_kind = $1 AND owner_id = $2 AND container = $3 AND key = $4
	`, string(owner.Kind), owner.ID, container, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return datacontainer.Absent(), nil
	}
	if err != nil {
		return datacontainer.Absent(), oops.With("operation", "get entry").Wrap(err)
	}
	return datacontainer.Of(data), nil
}

// Set inserts or replaces the entry for key.
func (d *Driver) Set(ctx context.Context, owner datacontainer.Owner, container, key string, raw json.RawMessage) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO container_entries (owner_kind, owner_id, container, key, data)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (owner_kind, owner_id, container, key) DO UPDATE SET data = EXCLUDED.data
	`, string(owner.Kind), owner.ID, container, key, string(datacontainer.Of(raw).Raw()))
	if err != nil {
		return oops.With("operation", "set entry").Wrap(err)
	}
	return nil
}

// Create inserts the entry for key if absent.
func (d *Driver) Create(ctx context.Context, owner datacontainer.Owner, container, key string, raw json.RawMessage) error {
	tag, err := d.pool.Exec(ctx, `
		INSERT INTO container_entries (owner_kind, owner_id, container, key, data)
		VALUES ($1, $2, $3, $4, $5::jsonb)
		ON CONFLICT (owner_kind, owner_id, container, key) DO NOTHING
	`, string(owner.Kind), owner.ID, container, key, string(datacontainer.Of(raw).Raw()))
	if err != nil {
		return oops.With("operation", "create entry").Wrap(err)
	}
	if tag.RowsAffected() == 0 {
		return datacontainer.ErrEntryExists
	}
	return nil
}

// Exists reports whether key has an entry.
func (d *Driver) Exists(ctx context.Context, owner datacontainer.Owner, container, key string) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM container_entries
			WHERE owner_kind = $1 AND owner_id = $2 AND container = $3 AND key = $4
		)
	`, string(owner.Kind), owner.ID, container, key).Scan(&exists)
	if err != nil {
		return false, oops.With("operation", "check entry").Wrap(err)
	}
	return exists, nil
}

// Delete removes the entry for key.
func (d *Driver) Delete(ctx context.Context, owner datacontainer.Owner, container, key string) error {
	_, err := d.pool.Exec(ctx, `
		DELETE FROM container_entries
		WHERE owner_kind = $1 AND owner_id = $2 AND container = $3 AND key = $4
	`, string(owner.Kind), owner.ID, container, key)
	if err != nil {
		return oops.With("operation", "delete entry").Wrap(err)
	}
	return nil
}

// Keys lists the entry keys held directly by container.
func (d *Driver) Keys(ctx context.Context, owner datacontainer.Owner, container string) ([]string, error) {
	return d.strings(ctx, "list keys", `
		SELECT key FROM container_entries
		WHERE owner_kind = $1 AND owner_id = $2 AND container = $3
		ORDER BY key
	`, string(owner.Kind), owner.ID, container)
}

// Children lists the direct child containers of container.
func (d *Driver) Children(ctx context.Context, owner datacontainer.Owner, container string) ([]string, error) {
	return d.strings(ctx, "list children", `
		SELECT DISTINCT split_part(substr(container, length($3) + 1), '/', 1) AS child
		FROM container_entries
		WHERE owner_kind = $1 AND owner_id = $2
		  AND starts_with(container, $3) AND container <> $3
		ORDER BY child
	`, string(owner.Kind), owner.ID, container)
}

// DeleteContainer removes container and all its descendants.
func (d *Driver) DeleteContainer(ctx context.Context, owner datacontainer.Owner, container string) error {
	_, err := d.pool.Exec(ctx, `
		DELETE FROM container_entries
		WHERE owner_kind = $1 AND owner_id = $2 AND starts_with(container, $3)
	`, string(owner.Kind), owner.ID, container)
	if err != nil {
		return oops.With("operation", "delete container").With("container", container).Wrap(err)
	}
	return nil
}

func (d *Driver) strings(ctx context.Context, operation, sql string, args ...any) ([]string, error) {
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, oops.With("operation", operation).Wrap(err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, oops.With("operation", operation).Wrap(err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", operation).Wrap(err)
	}
	return out, nil
}

var _ datacontainer.Driver = (*Driver)(nil)
