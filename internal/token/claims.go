// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package token

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
)

// Issuer is the iss claim of every token minted by this service.
const Issuer = "NEXUSGRID"

// Payload keys carrying the significant-field pair and the target server.
const (
	PayloadSignificantRandom = "isfr"
	PayloadSignificantNumber = "isfn"
	PayloadServerID          = "sid"
)

// Claims is the token body. Registered claims use their JWT names; exp and
// nbf are omitted for tokens that never expire or have no start time.
type Claims struct {
	jwt.RegisteredClaims

	GameID       string          `json:"cgi"`
	SaveID       string          `json:"sav,omitempty"`
	LastUpdate   int64           `json:"lu"`
	Capabilities Capabilities    `json:"cl"`
	Payload      json.RawMessage `json:"pl,omitempty"`
}

// Token is the decoded, immutable view of a signed token.
type Token struct {
	ID           string
	Subject      string
	SaveID       string
	GameID       string
	IssuedAt     time.Time
	ExpiresAt    time.Time // zero when the token never expires
	NotBefore    time.Time // zero when the token has no start time
	LastUpdate   int64
	Capabilities Capabilities
	Payload      json.RawMessage
}

// Has reports whether the token grants c.
func (t *Token) Has(c Capability) bool {
	return t.Capabilities.Has(c)
}

// Lifetime returns exp - iat, or zero for tokens that never expire.
func (t *Token) Lifetime() time.Duration {
	if t.ExpiresAt.IsZero() {
		return 0
	}
	return t.ExpiresAt.Sub(t.IssuedAt)
}

// PayloadValue looks up a gjson path in the payload.
func (t *Token) PayloadValue(path string) gjson.Result {
	if len(t.Payload) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(t.Payload, path)
}

// SignificantFields returns the pair embedded in the payload, if both
// values are present.
func (t *Token) SignificantFields() (SignificantFields, bool) {
	random := t.PayloadValue(PayloadSignificantRandom)
	number := t.PayloadValue(PayloadSignificantNumber)
	if !random.Exists() || !number.Exists() {
		return SignificantFields{}, false
	}
	return SignificantFields{Random: int32(random.Int()), Number: number.Int()}, true
}

func (c *Claims) token() *Token {
	t := &Token{
		ID:           c.ID,
		Subject:      c.Subject,
		SaveID:       c.SaveID,
		GameID:       c.GameID,
		LastUpdate:   c.LastUpdate,
		Capabilities: c.Capabilities,
		Payload:      c.Payload,
	}
	if c.IssuedAt != nil {
		t.IssuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		t.ExpiresAt = c.ExpiresAt.Time
	}
	if c.NotBefore != nil {
		t.NotBefore = c.NotBefore.Time
	}
	return t
}

func numericDate(t time.Time) *jwt.NumericDate {
	if t.IsZero() {
		return nil
	}
	return jwt.NewNumericDate(t)
}
