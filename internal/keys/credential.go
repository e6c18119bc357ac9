// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

// Package keys provides password credentials and the asymmetric keys used to
// sign tokens and server certificates.
package keys

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"errors"

	"github.com/samber/oops"
	"golang.org/x/crypto/pbkdf2"
)

// Credential layout: 32-byte salt followed by a 16-byte PBKDF2 key.
const (
	SaltLength       = 32
	DerivedKeyLength = 16
	CredentialLength = SaltLength + DerivedKeyLength
	iterations       = 65536
)

// ErrEmptyPassword is returned when deriving a credential for an empty password.
var ErrEmptyPassword = errors.New("password cannot be empty")

// DeriveCredential returns a fresh 48-byte credential for password.
func DeriveCredential(password string) ([]byte, error) {
	if password == "" {
		return nil, oops.Code("KEYS_EMPTY_PASSWORD").Wrap(ErrEmptyPassword)
	}

	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, oops.Code("KEYS_SALT_FAILED").Wrap(err)
	}

	cred := make([]byte, 0, CredentialLength)
	cred = append(cred, salt...)
	cred = append(cred, derive(password, salt)...)
	return cred, nil
}

// VerifyCredential checks password against a stored credential.
// Returns (false, nil) on mismatch and an error if the credential is not
// exactly CredentialLength bytes.
func VerifyCredential(credential []byte, password string) (bool, error) {
	if len(credential) != CredentialLength {
		return false, oops.Code("KEYS_CREDENTIAL_CORRUPT").
			With("length", len(credential)).
			Errorf("credential must be %d bytes", CredentialLength)
	}

	salt := credential[:SaltLength]
	expected := credential[SaltLength:]
	computed := derive(password, salt)

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

func derive(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, DerivedKeyLength, sha512.New)
}
