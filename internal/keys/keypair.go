// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Key file names inside a keyring directory.
const (
	PrivateKeyFile = "privatekey.pem"
	PublicKeyFile  = "publickey.pem"
)

// RSAKeyBits is the modulus size of generated keys.
const RSAKeyBits = 2048

// KeyPair holds an RSA key pair.
type KeyPair struct {
	Private *rsa.PrivateKey
	Public  *rsa.PublicKey
}

// Keyring loads the process signing key pair from a directory, generating
// and persisting a new pair on first use. Load runs at most once per Keyring.
type Keyring struct {
	dir string

	once sync.Once
	pair *KeyPair
	err  error
}

// NewKeyring creates a Keyring backed by dir.
func NewKeyring(dir string) *Keyring {
	return &Keyring{dir: dir}
}

// NewStaticKeyring wraps an existing key pair. Load returns it unchanged.
func NewStaticKeyring(pair *KeyPair) *Keyring {
	k := &Keyring{pair: pair}
	k.once.Do(func() {})
	return k
}

// Load returns the key pair, reading or generating it on the first call.
// Concurrent callers block until the first call finishes and then share its result.
func (k *Keyring) Load() (*KeyPair, error) {
	k.once.Do(func() {
		k.pair, k.err = loadOrGenerate(k.dir)
	})
	return k.pair, k.err
}

// Private returns the loaded private key.
func (k *Keyring) Private() (*rsa.PrivateKey, error) {
	pair, err := k.Load()
	if err != nil {
		return nil, err
	}
	return pair.Private, nil
}

// Public returns the loaded public key.
func (k *Keyring) Public() (*rsa.PublicKey, error) {
	pair, err := k.Load()
	if err != nil {
		return nil, err
	}
	return pair.Public, nil
}

// Dir returns the directory the keyring reads from.
func (k *Keyring) Dir() string {
	return k.dir
}

func loadOrGenerate(dir string) (*KeyPair, error) {
	privPath := filepath.Clean(filepath.Join(dir, PrivateKeyFile))
	pubPath := filepath.Clean(filepath.Join(dir, PublicKeyFile))

	privPEM, err := os.ReadFile(privPath)
	switch {
	case err == nil:
		priv, err := ParsePrivateKeyPEM(privPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", privPath, err)
		}
		pubPEM, err := os.ReadFile(pubPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
		pub, err := ParsePublicKeyPEM(pubPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", pubPath, err)
		}
		if !priv.PublicKey.Equal(pub) {
			return nil, fmt.Errorf("public key in %s does not match private key", pubPath)
		}
		return &KeyPair{Private: priv, Public: pub}, nil
	case errors.Is(err, fs.ErrNotExist):
		// fall through to generation
	default:
		return nil, fmt.Errorf("failed to read private key: %w", err)
	}

	pair, err := GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}

	privOut, err := EncodePrivateKeyPEM(pair.Private)
	if err != nil {
		return nil, err
	}
	pubOut, err := EncodePublicKeyPEM(pair.Public)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(privPath, privOut, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.WriteFile(pubPath, pubOut, 0o644); err != nil { //nolint:gosec // public key
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}
	return pair, nil
}

// GenerateKeyPair creates a new RSA key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return &KeyPair{Private: priv, Public: &priv.PublicKey}, nil
}

// EncodePrivateKeyPEM encodes key as a PKCS#8 "PRIVATE KEY" PEM block.
func EncodePrivateKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// EncodePublicKeyPEM encodes key as a PKIX "PUBLIC KEY" PEM block.
func EncodePublicKeyPEM(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePrivateKeyPEM decodes a PKCS#8 or PKCS#1 RSA private key.
func ParsePrivateKeyPEM(data []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	if block.Type == "RSA PRIVATE KEY" {
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#1 key: %w", err)
		}
		return key, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PKCS#8 key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("private key is %T, not RSA", parsed)
	}
	return key, nil
}

// ParsePublicKeyPEM decodes a PKIX RSA public key.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, not RSA", parsed)
	}
	return key, nil
}
