// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package token

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/nexusgrid/nexusgrid/internal/account"
)

// Session and refresh token lifetimes.
const (
	SessionTTL = time.Hour
	RefreshTTL = 30 * 24 * time.Hour
)

// SessionCapabilities are granted to a player session token.
var SessionCapabilities = NewCapabilities(CapPlay, CapRefresh, CapAccountProperties, CapGameplayData)

// Authenticator checks player credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*account.Account, error)
}

// Session is the result of a player login.
type Session struct {
	AccountID    string
	DisplayName  string
	SessionToken string
	RefreshToken string
	ExpiresAt    time.Time
}

// Sessions logs players in and hands out session and refresh tokens.
type Sessions struct {
	tokens   *Service
	accounts Authenticator
}

// NewSessions creates a Sessions using tokens to mint and accounts to
// authenticate.
func NewSessions(tokens *Service, accounts Authenticator) *Sessions {
	return &Sessions{tokens: tokens, accounts: accounts}
}

// Login authenticates username and password and starts a new session.
// Starting a session rotates the account's significant fields, which ends
// any earlier session.
func (s *Sessions) Login(ctx context.Context, username, password string) (*Session, error) {
	acc, err := s.accounts.Authenticate(ctx, username, password)
	if err != nil {
		return nil, err
	}
	return s.start(ctx, acc.ID)
}

// LoginWithRefreshToken starts a new session from a refresh token issued by
// an earlier login.
func (s *Sessions) LoginWithRefreshToken(ctx context.Context, raw string) (*Session, error) {
	access, err := s.tokens.Verify(ctx, raw, CapPlayerRefreshLogin)
	if err != nil {
		return nil, err
	}
	if !access.IsAccount() {
		return nil, s.tokens.reject(ctx, "not_an_account", access.Principal.ID)
	}
	return s.start(ctx, access.Principal.ID)
}

func (s *Sessions) start(ctx context.Context, accountID string) (*Session, error) {
	principal, err := s.tokens.source.ResolvePrincipal(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, oops.Code("TOKEN_PRINCIPAL_NOT_FOUND").With("subject", accountID).Wrap(err)
		}
		return nil, oops.Code("TOKEN_PRINCIPAL_LOOKUP_FAILED").With("subject", accountID).Wrap(err)
	}

	fields, err := s.tokens.rotateSignificant(ctx, principal)
	if err != nil {
		return nil, err
	}

	session, sessionRaw, err := s.tokens.sign(IssueRequest{
		Subject:      principal.ID,
		Capabilities: SessionCapabilities,
		TTL:          SessionTTL,
		Payload: map[string]any{
			PayloadSignificantRandom: fields.Random,
			PayloadSignificantNumber: fields.Number,
		},
	}, principal.LastUpdate)
	if err != nil {
		return nil, err
	}

	_, refreshRaw, err := s.tokens.sign(IssueRequest{
		Subject:      principal.ID,
		Capabilities: NewCapabilities(CapPlayerRefreshLogin),
		TTL:          RefreshTTL,
	}, principal.LastUpdate)
	if err != nil {
		return nil, err
	}

	s.tokens.logger.InfoContext(ctx, "session started", "account_id", principal.ID)
	return &Session{
		AccountID:    principal.ID,
		DisplayName:  principal.DisplayName,
		SessionToken: sessionRaw,
		RefreshToken: refreshRaw,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}
