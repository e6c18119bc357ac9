// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package token

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusgrid/nexusgrid/internal/account"
)

type fakeAuthenticator struct {
	accounts map[string]*account.Account
	password string
}

func (a *fakeAuthenticator) Authenticate(_ context.Context, username, password string) (*account.Account, error) {
	acc, ok := a.accounts[username]
	if !ok || password != a.password {
		return nil, account.ErrInvalidCredentials
	}
	return acc, nil
}

func newSessions(t *testing.T) (*Sessions, *env) {
	t.Helper()
	e := newEnv(t)
	auth := &fakeAuthenticator{
		accounts: map[string]*account.Account{"alice": {ID: aliceID, Username: "alice"}},
		password: "Passw0rd",
	}
	return NewSessions(e.svc, auth), e
}

func TestSessions_Login(t *testing.T) {
	ctx := context.Background()
	s, e := newSessions(t)

	sess, err := s.Login(ctx, "alice", "Passw0rd")
	require.NoError(t, err)
	assert.Equal(t, aliceID, sess.AccountID)
	assert.Equal(t, "alice", sess.DisplayName)
	assert.WithinDuration(t, e.clock.Now().Add(SessionTTL), sess.ExpiresAt, 0)

	access, err := e.svc.Verify(ctx, sess.SessionToken, CapPlay)
	require.NoError(t, err)
	assert.Equal(t, SessionCapabilities, access.Token.Capabilities)
	fields, ok := access.Token.SignificantFields()
	require.True(t, ok, "session tokens carry the significant fields")
	stored := e.source.get(aliceID)
	assert.Equal(t, *stored.Significant, fields)
	assert.Equal(t, int64(1000), stored.LastUpdate, "login keeps the last-update stamp")

	refresh, err := e.svc.Verify(ctx, sess.RefreshToken, CapPlayerRefreshLogin)
	require.NoError(t, err)
	assert.Equal(t, RefreshTTL, refresh.Token.Lifetime())
	_, err = e.svc.Verify(ctx, sess.RefreshToken, CapPlay)
	assert.ErrorIs(t, err, ErrInvalidToken, "refresh tokens cannot play")
}

func TestSessions_LoginRejectsBadCredentials(t *testing.T) {
	s, e := newSessions(t)
	_, err := s.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)
	assert.Zero(t, e.source.stores, "no session state is written")
}

func TestSessions_NewLoginEndsPreviousSession(t *testing.T) {
	ctx := context.Background()
	s, e := newSessions(t)

	first, err := s.Login(ctx, "alice", "Passw0rd")
	require.NoError(t, err)
	e.clock.Advance(time.Minute)
	second, err := s.Login(ctx, "alice", "Passw0rd")
	require.NoError(t, err)

	_, err = e.svc.Verify(ctx, first.SessionToken, CapPlay)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = e.svc.Verify(ctx, second.SessionToken, CapPlay)
	assert.NoError(t, err)

	_, err = e.svc.Verify(ctx, first.RefreshToken, CapPlayerRefreshLogin)
	assert.NoError(t, err, "refresh tokens survive a new login")
}

func TestSessions_LoginWithRefreshToken(t *testing.T) {
	ctx := context.Background()
	s, e := newSessions(t)

	first, err := s.Login(ctx, "alice", "Passw0rd")
	require.NoError(t, err)

	e.clock.Advance(2 * time.Hour)
	_, err = e.svc.Verify(ctx, first.SessionToken, CapPlay)
	require.ErrorIs(t, err, ErrInvalidToken, "session expired")

	again, err := s.LoginWithRefreshToken(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, aliceID, again.AccountID)
	assert.Equal(t, "alice", again.DisplayName)
	_, err = e.svc.Verify(ctx, again.SessionToken, CapPlay)
	assert.NoError(t, err)

	_, err = s.LoginWithRefreshToken(ctx, first.SessionToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	serverRefresh := e.issue(t, IssueRequest{Subject: serverID, Capabilities: NewCapabilities(CapPlayerRefreshLogin)})
	_, err = s.LoginWithRefreshToken(ctx, serverRefresh)
	assert.ErrorIs(t, err, ErrInvalidToken, "only accounts log in")

	require.NoError(t, e.svc.InvalidateAllSessions(ctx, aliceID))
	_, err = s.LoginWithRefreshToken(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "invalidation revokes refresh tokens")
}
