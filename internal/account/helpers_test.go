// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package account_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nexusgrid/nexusgrid/internal/account"
	"github.com/nexusgrid/nexusgrid/internal/account/memory"
	"github.com/nexusgrid/nexusgrid/internal/datacontainer"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

// flakyDriver fails writes to one key while fail is set.
type flakyDriver struct {
	datacontainer.Driver
	key  string
	fail atomic.Bool
}

func (d *flakyDriver) Set(ctx context.Context, owner datacontainer.Owner, container, key string, raw json.RawMessage) error {
	if d.fail.Load() && key == d.key {
		return errors.New("storage unavailable")
	}
	return d.Driver.Set(ctx, owner, container, key, raw)
}

type fixture struct {
	mgr       *account.Manager
	repo      *memory.Repository
	driver    *flakyDriver
	clock     *testClock
	penalties []time.Duration
}

func newFixture(t *testing.T, opts ...account.Option) *fixture {
	t.Helper()
	f := &fixture{
		repo:   memory.NewRepository(),
		driver: &flakyDriver{Driver: datacontainer.NewMemoryDriver(), key: account.KeyIsGuest},
		clock:  newTestClock(),
	}
	base := []account.Option{
		account.WithClock(f.clock.Now),
		account.WithPenalty(func(d time.Duration) { f.penalties = append(f.penalties, d) }),
		account.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	f.mgr = account.NewManager(f.repo, f.driver, append(base, opts...)...)
	return f
}

func (f *fixture) register(t *testing.T, username, email, password string) *account.Account {
	t.Helper()
	acc, err := f.mgr.RegisterAccount(context.Background(), username, email, password)
	require.NoError(t, err)
	return acc
}
