// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package account

import (
	"strings"
	"time"
)

// GuestUsernamePrefix marks the reserved username of a guest account. The
// slash cannot appear in a valid username, so guest names never collide.
const GuestUsernamePrefix = "g/"

// Data container names and accountdata keys.
const (
	AccountDataContainer = "accountdata"

	KeyLastLoginTime          = "lastlogintime"
	KeyRegistrationTimestamp  = "registrationtimestamp"
	KeyIsGuest                = "isguestaccount"
	KeyMultiplayerEnabled     = "ismultiplayerenabled"
	KeyChatEnabled            = "ischatenabled"
	KeyStrictChatFilterEnable = "isstrictchatfilterenabled"
	KeyLockedSince            = "lockedsince"
	KeyHostBanned             = "hostBanned"

	// Session anchors read by the token system and the identity record
	// of the account.
	KeyLastUpdate        = "last_update"
	KeySignificantRandom = "significantFieldRandom"
	KeySignificantNumber = "significantFieldNumber"
	KeyIdentity          = "phoenixidentity"
)

// Account is a player's login identity and credential record.
type Account struct {
	ID         string
	Username   string
	Email      *string
	Credential []byte
	IsGuest    bool
	CreatedAt  time.Time

	// SaveIDs is filled by the Manager from the account's saves.
	SaveIDs []string
}

// GuestID returns the external guest ID for guest accounts.
func (a *Account) GuestID() (string, bool) {
	if !a.IsGuest || !strings.HasPrefix(a.Username, GuestUsernamePrefix) {
		return "", false
	}
	return strings.TrimPrefix(a.Username, GuestUsernamePrefix), true
}

// clone returns a deep copy so cached accounts are never mutated in place.
func (a *Account) clone() *Account {
	c := *a
	if a.Email != nil {
		e := *a.Email
		c.Email = &e
	}
	c.Credential = append([]byte(nil), a.Credential...)
	c.SaveIDs = append([]string(nil), a.SaveIDs...)
	return &c
}

// Save is a named profile owned by exactly one account.
type Save struct {
	ID        string
	AccountID string
	Username  string
	CreatedAt time.Time
}

// Migration is the staged change set committed when a guest account becomes
// a normal account.
type Migration struct {
	Username   string
	Email      *string
	Credential []byte
}
