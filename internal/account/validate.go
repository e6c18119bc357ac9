// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package account

import (
	"regexp"
	"strings"
	"unicode"
)

// Username validation constraints.
const (
	MinUsernameLength = 2
	MaxUsernameLength = 100
	MinPasswordChars  = 6
)

var (
	usernamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9@._# ]*$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s.]+$`)
)

// ValidateUsername checks the shape of a username. It does not check
// availability or the content filter.
func ValidateUsername(name string) error {
	if len(name) < MinUsernameLength || len(name) > MaxUsernameLength {
		return ErrUsernameInvalid
	}
	if strings.ReplaceAll(name, " ", "") == "" {
		return ErrUsernameInvalid
	}
	if !usernamePattern.MatchString(name) {
		return ErrUsernameInvalid
	}
	return nil
}

// ValidatePassword requires at least MinPasswordChars letters or digits once
// every other character is stripped.
func ValidatePassword(password string) error {
	n := 0
	for _, r := range password {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			n++
		}
	}
	if n < MinPasswordChars {
		return ErrPasswordInvalid
	}
	return nil
}

// ValidateEmail checks the shape of an email address.
func ValidateEmail(email string) error {
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return ErrEmailInvalid
	}
	return nil
}

// NameKey is the case-insensitive key used for username reservations.
func NameKey(name string) string {
	return strings.ToLower(name)
}
