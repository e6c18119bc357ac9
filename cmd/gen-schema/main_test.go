// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusgrid/nexusgrid/internal/identity"
)

func TestRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "server-certificate.schema.json")
	require.NoError(t, run(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var schema map[string]any
	require.NoError(t, json.Unmarshal(data, &schema))
	assert.Equal(t, identity.CertificateSchemaID, schema["$id"])
}
