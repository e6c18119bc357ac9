// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package token

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusgrid/nexusgrid/internal/keys"
)

var (
	keyOnce  sync.Once
	keyPair  *keys.KeyPair
	otherKey *keys.KeyPair
	keyErr   error
)

// testKeys returns key pairs shared by the whole package; RSA generation
// is too slow to repeat per test.
func testKeys(t *testing.T) (*keys.KeyPair, *keys.KeyPair) {
	t.Helper()
	keyOnce.Do(func() {
		keyPair, keyErr = keys.GenerateKeyPair()
		if keyErr == nil {
			otherKey, keyErr = keys.GenerateKeyPair()
		}
	})
	require.NoError(t, keyErr)
	return keyPair, otherKey
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakeSource is an in-memory PrincipalSource.
type fakeSource struct {
	mu         sync.Mutex
	principals map[string]*Principal
	lookupErr  error
	stores     int
	resolves   int
}

func newFakeSource(ps ...*Principal) *fakeSource {
	s := &fakeSource{principals: make(map[string]*Principal)}
	for _, p := range ps {
		s.principals[p.ID] = p
	}
	return s
}

func (s *fakeSource) ResolvePrincipal(_ context.Context, id string) (*Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolves++
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}
	p, ok := s.principals[id]
	if !ok {
		return nil, ErrPrincipalNotFound
	}
	c := *p
	if p.Significant != nil {
		f := *p.Significant
		c.Significant = &f
	}
	return &c, nil
}

func (s *fakeSource) StoreSessionState(_ context.Context, id string, state SessionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return errors.New("no such principal")
	}
	s.stores++
	p.LastUpdate = state.LastUpdate
	f := state.Significant
	p.Significant = &f
	return nil
}

func (s *fakeSource) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.principals, id)
}

func (s *fakeSource) get(id string) Principal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.principals[id]
}

const (
	aliceID  = "6f1c2a9e-7a51-4c1e-9d0b-3f1f6a4b8c21"
	serverID = "0b5e8f3a-2c4d-4e6f-8a1b-9c3d5e7f9a0b"
)

type env struct {
	svc    *Service
	source *fakeSource
	clock  *clock
}

func newEnv(t *testing.T, opts ...Option) *env {
	t.Helper()
	pair, _ := testKeys(t)
	e := &env{
		clock: newClock(),
		source: newFakeSource(
			&Principal{ID: aliceID, Kind: KindAccount, DisplayName: "alice", LastUpdate: 1000},
			&Principal{ID: serverID, Kind: KindIdentity, DisplayName: "server", LastUpdate: 2000, Server: true},
			&Principal{ID: SystemPrincipalID, Kind: KindSystem, LastUpdate: 3000},
		),
	}
	base := []Option{
		WithClock(e.clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	e.svc = NewService(keys.NewStaticKeyring(pair), e.source, append(base, opts...)...)
	return e
}

func (e *env) issue(t *testing.T, req IssueRequest) string {
	t.Helper()
	_, raw, err := e.svc.Issue(context.Background(), req)
	require.NoError(t, err)
	return raw
}
