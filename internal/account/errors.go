// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package account

import (
	"errors"

	"github.com/samber/oops"
)

// Sentinel errors. Repositories return these (optionally wrapped); the
// Manager wraps them with a stable code and a "reason" context value.
var (
	// ErrNotFound is returned when a requested account or save does not exist.
	ErrNotFound = errors.New("not found")

	// ErrIDInUse is returned by repositories when a generated ID collides.
	ErrIDInUse = errors.New("id already in use")

	ErrUsernameInvalid  = errors.New("username is invalid")
	ErrUsernameInUse    = errors.New("username is already in use")
	ErrUsernameFiltered = errors.New("username is not allowed")
	ErrPasswordInvalid  = errors.New("password is too weak")
	ErrEmailInvalid     = errors.New("email is invalid")
	ErrEmailInUse       = errors.New("email is already in use")
	ErrNotGuest         = errors.New("account is not a guest account")
	ErrGuestExists      = errors.New("guest account already exists")

	// ErrInvalidCredentials is the single outcome of every failed login.
	ErrInvalidCredentials = errors.New("invalid username or password")
)

// Reason codes reported to callers for validation failures.
const (
	ReasonUsernameInvalid  = "username_invalid"
	ReasonUsernameInUse    = "username_in_use"
	ReasonUsernameFiltered = "username_filtered"
	ReasonPasswordInvalid  = "password_invalid"
	ReasonEmailInvalid     = "email_invalid"
	ReasonEmailInUse       = "email_in_use"
	ReasonNotGuest         = "not_guest"
	ReasonGuestExists      = "guest_exists"
)

type reasonInfo struct {
	sentinel error
	code     string
	reason   string
}

var reasons = []reasonInfo{
	{ErrUsernameInvalid, "ACCOUNT_USERNAME_INVALID", ReasonUsernameInvalid},
	{ErrUsernameInUse, "ACCOUNT_USERNAME_IN_USE", ReasonUsernameInUse},
	{ErrUsernameFiltered, "ACCOUNT_USERNAME_FILTERED", ReasonUsernameFiltered},
	{ErrPasswordInvalid, "ACCOUNT_PASSWORD_INVALID", ReasonPasswordInvalid},
	{ErrEmailInvalid, "ACCOUNT_EMAIL_INVALID", ReasonEmailInvalid},
	{ErrEmailInUse, "ACCOUNT_EMAIL_IN_USE", ReasonEmailInUse},
	{ErrNotGuest, "ACCOUNT_NOT_GUEST", ReasonNotGuest},
	{ErrGuestExists, "ACCOUNT_GUEST_EXISTS", ReasonGuestExists},
}

// Reason returns the caller-facing reason code for a validation error, or ""
// if err is not a validation error.
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.sentinel) {
			return r.reason
		}
	}
	return ""
}

// validationError wraps sentinel with its code and reason. Errors that are
// not validation sentinels are returned unchanged.
func validationError(err error) error {
	for _, r := range reasons {
		if errors.Is(err, r.sentinel) {
			return oops.Code(r.code).With("reason", r.reason).Wrap(r.sentinel)
		}
	}
	return err
}

func invalidCredentials() error {
	return oops.Code("ACCOUNT_INVALID_CREDENTIALS").Wrap(ErrInvalidCredentials)
}

func notFound(kind, id string) error {
	return oops.Code("ACCOUNT_NOT_FOUND").With(kind, id).Wrap(ErrNotFound)
}
