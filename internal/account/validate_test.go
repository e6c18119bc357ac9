// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package account

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nexusgrid/nexusgrid/pkg/errutil"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"simple", "alice", true},
		{"minimum length", "Al", true},
		{"allowed punctuation", "Sir Lancelot.the_Brave#2@camelot", true},
		{"maximum length", "a" + strings.Repeat("b", 99), true},
		{"too short", "a", false},
		{"too long", "a" + strings.Repeat("b", 100), false},
		{"leading digit", "2pac", false},
		{"leading space", " alice", false},
		{"blank", "   ", false},
		{"slash", "g/alice", false},
		{"hyphen", "mary-jane", false},
		{"non ascii", "zoë", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.input)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrUsernameInvalid)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("abc123"))
	assert.NoError(t, ValidatePassword("a-b-c-1-2-3"))
	assert.ErrorIs(t, ValidatePassword("ab!@#$%^12"), ErrPasswordInvalid)
	assert.ErrorIs(t, ValidatePassword("ééééééé"), ErrPasswordInvalid)
	assert.ErrorIs(t, ValidatePassword(""), ErrPasswordInvalid)
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("alice@example.com"))
	assert.NoError(t, ValidateEmail("a.b+tag@mail.example.org"))
	for _, bad := range []string{"", "alice", "alice@", "@example.com", "alice@example", "al ice@example.com", strings.Repeat("a", 250) + "@x.io"} {
		assert.ErrorIs(t, ValidateEmail(bad), ErrEmailInvalid, bad)
	}
}

func TestReason(t *testing.T) {
	assert.Empty(t, Reason(nil))
	assert.Empty(t, Reason(errors.New("boom")))

	err := validationError(ErrEmailInUse)
	assert.Equal(t, ReasonEmailInUse, Reason(err))
	errutil.AssertErrorCode(t, err, "ACCOUNT_EMAIL_IN_USE")
	errutil.AssertErrorContext(t, err, "reason", ReasonEmailInUse)

	plain := errors.New("unrelated")
	assert.Same(t, plain, validationError(plain))
}

func TestGuestID(t *testing.T) {
	id, ok := (&Account{Username: GuestUsernamePrefix + "steam-1", IsGuest: true}).GuestID()
	assert.True(t, ok)
	assert.Equal(t, "steam-1", id)

	_, ok = (&Account{Username: "alice"}).GuestID()
	assert.False(t, ok)
}
