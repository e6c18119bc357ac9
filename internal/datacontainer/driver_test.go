// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package datacontainer_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusgrid/nexusgrid/internal/datacontainer"
)

// driverFactories lists every driver that must honour the tri-state contract.
func driverFactories(t *testing.T) map[string]func() datacontainer.Driver {
	t.Helper()
	return map[string]func() datacontainer.Driver{
		"memory": func() datacontainer.Driver {
			return datacontainer.NewMemoryDriver()
		},
		"remote": func() datacontainer.Driver {
			return datacontainer.NewRemoteDriver(newRemoteServer(t, datacontainer.NewMemoryDriver()).URL)
		},
	}
}

func TestDriver_TriState(t *testing.T) {
	ctx := context.Background()
	owner := datacontainer.Owner{Kind: datacontainer.OwnerAccount, ID: "acc-1"}

	for name, factory := range driverFactories(t) {
		t.Run(name, func(t *testing.T) {
			d := factory()

			v, err := d.Get(ctx, owner, "", "missing")
			require.NoError(t, err)
			assert.False(t, v.IsPresent(), "never-set key must be absent")

			require.NoError(t, d.Set(ctx, owner, "", "nullable", json.RawMessage("null")))
			v, err = d.Get(ctx, owner, "", "nullable")
			require.NoError(t, err)
			assert.True(t, v.IsPresent())
			assert.True(t, v.IsNull())

			exists, err := d.Exists(ctx, owner, "", "nullable")
			require.NoError(t, err)
			assert.True(t, exists, "present-null entries exist")

			require.NoError(t, d.Set(ctx, owner, "", "number", json.RawMessage("42")))
			v, err = d.Get(ctx, owner, "", "number")
			require.NoError(t, err)
			assert.True(t, v.HasValue())
			assert.JSONEq(t, "42", string(v.Raw()))

			require.NoError(t, d.Delete(ctx, owner, "", "nullable"))
			v, err = d.Get(ctx, owner, "", "nullable")
			require.NoError(t, err)
			assert.False(t, v.IsPresent())
		})
	}
}

func TestDriver_Create(t *testing.T) {
	ctx := context.Background()
	owner := datacontainer.Owner{Kind: datacontainer.OwnerSave, ID: "save-1"}

	for name, factory := range driverFactories(t) {
		t.Run(name, func(t *testing.T) {
			d := factory()

			require.NoError(t, d.Create(ctx, owner, "", "k", json.RawMessage(`"v"`)))
			err := d.Create(ctx, owner, "", "k", json.RawMessage(`"w"`))
			require.Error(t, err)
			assert.True(t, errors.Is(err, datacontainer.ErrEntryExists))

			v, err := d.Get(ctx, owner, "", "k")
			require.NoError(t, err)
			assert.JSONEq(t, `"v"`, string(v.Raw()))
		})
	}
}

func TestDriver_Hierarchy(t *testing.T) {
	ctx := context.Background()
	owner := datacontainer.Owner{Kind: datacontainer.OwnerAccount, ID: "acc-2"}
	other := datacontainer.Owner{Kind: datacontainer.OwnerAccount, ID: "acc-3"}

	for name, factory := range driverFactories(t) {
		t.Run(name, func(t *testing.T) {
			d := factory()

			require.NoError(t, d.Set(ctx, owner, "", "top", json.RawMessage("1")))
			require.NoError(t, d.Set(ctx, owner, "accountdata/", "a", json.RawMessage("1")))
			require.NoError(t, d.Set(ctx, owner, "accountdata/", "b", json.RawMessage("2")))
			require.NoError(t, d.Set(ctx, owner, "accountdata/inventory/", "c", json.RawMessage("3")))
			require.NoError(t, d.Set(ctx, owner, "settings/", "d", json.RawMessage("4")))
			require.NoError(t, d.Set(ctx, other, "accountdata/", "z", json.RawMessage("9")))

			keys, err := d.Keys(ctx, owner, "accountdata/")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, keys)

			children, err := d.Children(ctx, owner, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"accountdata", "settings"}, children)

			children, err = d.Children(ctx, owner, "accountdata/")
			require.NoError(t, err)
			assert.Equal(t, []string{"inventory"}, children)

			require.NoError(t, d.DeleteContainer(ctx, owner, "accountdata/"))

			keys, err = d.Keys(ctx, owner, "accountdata/inventory/")
			require.NoError(t, err)
			assert.Empty(t, keys)

			children, err = d.Children(ctx, owner, "")
			require.NoError(t, err)
			assert.Equal(t, []string{"settings"}, children)

			keys, err = d.Keys(ctx, other, "accountdata/")
			require.NoError(t, err)
			assert.Equal(t, []string{"z"}, keys, "other owners are untouched")

			require.NoError(t, d.DeleteContainer(ctx, owner, ""))
			keys, err = d.Keys(ctx, owner, "")
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}
