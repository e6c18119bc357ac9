// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package token

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusgrid/nexusgrid/pkg/errutil"
)

func TestParseCapability(t *testing.T) {
	c, err := ParseCapability("idget")
	require.NoError(t, err)
	assert.Equal(t, CapIDGet, c)

	for _, bad := range []string{"", "IDGET", "id_get", "admin"} {
		_, err := ParseCapability(bad)
		assert.ErrorIs(t, err, ErrUnknownCapability, bad)
		errutil.AssertErrorContext(t, err, "capability", bad)
		assert.False(t, errors.Is(err, ErrInvalidToken), "a parse failure is not a token rejection")
	}
}

func TestParseCapabilities(t *testing.T) {
	caps, err := ParseCapabilities("play, refresh,,play")
	require.NoError(t, err)
	assert.Equal(t, Capabilities{CapPlay, CapRefresh}, caps)

	_, err = ParseCapabilities("play,bogus")
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestCapabilities_Has(t *testing.T) {
	caps := NewCapabilities(CapHost, CapIDGet)
	assert.True(t, caps.Has(CapHost))
	assert.False(t, caps.Has(CapIDUpdate), "idget does not imply idupdate")

	master := NewCapabilities(CapMaster)
	for c := range known {
		assert.True(t, master.Has(c), string(c))
	}
}

func TestCapabilities_UnmarshalJSON(t *testing.T) {
	var caps Capabilities
	require.NoError(t, json.Unmarshal([]byte(`["play","accprops","play"]`), &caps))
	assert.Equal(t, Capabilities{CapAccountProperties, CapPlay}, caps)

	assert.Error(t, json.Unmarshal([]byte(`["play","superuser"]`), &caps))
	assert.Error(t, json.Unmarshal([]byte(`"play"`), &caps))
}
