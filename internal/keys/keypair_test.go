// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package keys

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyring_GeneratesAndPersists(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keys")

	pair, err := NewKeyring(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, RSAKeyBits, pair.Private.N.BitLen())

	info, err := os.Stat(filepath.Join(dir, PrivateKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	_, err = os.Stat(filepath.Join(dir, PublicKeyFile))
	require.NoError(t, err)

	reloaded, err := NewKeyring(dir).Load()
	require.NoError(t, err)
	assert.True(t, pair.Private.Equal(reloaded.Private))
	assert.True(t, pair.Public.Equal(reloaded.Public))
}

func TestKeyring_LoadOnce(t *testing.T) {
	k := NewKeyring(t.TempDir())

	var wg sync.WaitGroup
	results := make([]*KeyPair, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := k.Load()
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range results[1:] {
		assert.Same(t, results[0], p)
	}
}

func TestKeyring_MismatchedPublicKey(t *testing.T) {
	dir := t.TempDir()
	_, err := NewKeyring(dir).Load()
	require.NoError(t, err)

	other, err := GenerateKeyPair()
	require.NoError(t, err)
	pub, err := EncodePublicKeyPEM(other.Public)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, PublicKeyFile), pub, 0o644))

	_, err = NewKeyring(dir).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match")
}

func TestKeyring_CorruptPrivateKey(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, PrivateKeyFile), []byte("garbage"), 0o600))

	_, err := NewKeyring(dir).Load()
	require.Error(t, err)
}

func TestStaticKeyring(t *testing.T) {
	pair, err := GenerateKeyPair()
	require.NoError(t, err)

	got, err := NewStaticKeyring(pair).Load()
	require.NoError(t, err)
	assert.Same(t, pair, got)
}

func TestPEMRoundTrip(t *testing.T) {
	pair, err := GenerateKeyPair()
	require.NoError(t, err)

	privPEM, err := EncodePrivateKeyPEM(pair.Private)
	require.NoError(t, err)
	pubPEM, err := EncodePublicKeyPEM(pair.Public)
	require.NoError(t, err)

	priv, err := ParsePrivateKeyPEM(privPEM)
	require.NoError(t, err)
	pub, err := ParsePublicKeyPEM(pubPEM)
	require.NoError(t, err)

	assert.True(t, pair.Private.Equal(priv))
	assert.True(t, pair.Public.Equal(pub))

	_, err = ParsePublicKeyPEM(privPEM)
	assert.Error(t, err)
	_, err = ParsePrivateKeyPEM([]byte("not pem"))
	assert.Error(t, err)
}

func TestSignVerify(t *testing.T) {
	pair, err := GenerateKeyPair()
	require.NoError(t, err)

	data := []byte("certificate body")
	sig, err := Sign(data, pair.Private)
	require.NoError(t, err)

	assert.True(t, Verify(data, sig, pair.Public))
	assert.False(t, Verify([]byte("tampered"), sig, pair.Public))

	other, err := GenerateKeyPair()
	require.NoError(t, err)
	assert.False(t, Verify(data, sig, other.Public))
}
