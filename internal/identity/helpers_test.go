// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package identity_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusgrid/nexusgrid/internal/account"
	"github.com/nexusgrid/nexusgrid/internal/account/memory"
	"github.com/nexusgrid/nexusgrid/internal/datacontainer"
	"github.com/nexusgrid/nexusgrid/internal/identity"
	"github.com/nexusgrid/nexusgrid/internal/keys"
	"github.com/nexusgrid/nexusgrid/internal/token"
)

var (
	keyOnce sync.Once
	pairs   [3]*keys.KeyPair
	keyErr  error
)

// testKeys returns key pairs shared by the package: the first signs
// tokens, the others are handed out to servers in turn.
func testKeys(t *testing.T) [3]*keys.KeyPair {
	t.Helper()
	keyOnce.Do(func() {
		for i := range pairs {
			if pairs[i], keyErr = keys.GenerateKeyPair(); keyErr != nil {
				return
			}
		}
	})
	require.NoError(t, keyErr)
	return pairs
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	accounts *account.Manager
	registry *identity.Registry
	tokens   *token.Service
	sessions *token.Sessions
	hosting  *identity.Hosting
	clock    *testClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ks := testKeys(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{clock: &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}}

	driver := datacontainer.NewMemoryDriver()
	f.accounts = account.NewManager(memory.NewRepository(), driver,
		account.WithClock(f.clock.Now),
		account.WithPenalty(func(time.Duration) {}),
		account.WithLogger(logger),
	)
	f.registry = identity.NewRegistry(driver, f.accounts,
		identity.WithClock(f.clock.Now),
		identity.WithLogger(logger),
	)
	f.tokens = token.NewService(keys.NewStaticKeyring(ks[0]), identity.NewDirectory(f.registry),
		token.WithClock(f.clock.Now),
		token.WithLogger(logger),
	)
	f.sessions = token.NewSessions(f.tokens, f.accounts)

	var mu sync.Mutex
	next := 0
	f.hosting = identity.NewHosting(f.registry, f.tokens,
		identity.WithKeyGenerator(func() (*keys.KeyPair, error) {
			mu.Lock()
			defer mu.Unlock()
			next++
			return ks[1+next%2], nil
		}),
		identity.WithHostingLogger(logger),
	)
	return f
}

func (f *fixture) register(t *testing.T, username string) *account.Account {
	t.Helper()
	acc, err := f.accounts.RegisterAccount(context.Background(), username, "", "Passw0rd")
	require.NoError(t, err)
	return acc
}

func (f *fixture) login(t *testing.T, username string) *token.Session {
	t.Helper()
	sess, err := f.sessions.Login(context.Background(), username, "Passw0rd")
	require.NoError(t, err)
	return sess
}
