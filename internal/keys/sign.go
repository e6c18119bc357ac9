// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package keys

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

// pssOptions matches the salt length used for PS256 tokens.
var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: crypto.SHA256}

// Sign produces an RSA-PSS SHA-256 signature over data.
func Sign(data []byte, key *rsa.PrivateKey) ([]byte, error) {
	digest := sha256.Sum256(data)
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest[:], pssOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	return sig, nil
}

// Verify reports whether sig is a valid RSA-PSS SHA-256 signature over data.
func Verify(data, sig []byte, key *rsa.PublicKey) bool {
	digest := sha256.Sum256(data)
	return rsa.VerifyPSS(key, crypto.SHA256, digest[:], sig, pssOptions) == nil
}
