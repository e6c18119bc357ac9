// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package account

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestPresenceCache_Keep(t *testing.T) {
	c := NewPresenceCache()
	acc := &Account{ID: "a1", Username: "alice"}

	assert.False(t, c.Keep(acc, false), "refresh-only must not add")
	assert.Zero(t, c.Len())

	assert.True(t, c.Keep(acc, true))
	assert.True(t, c.Keep(acc, false))
	assert.Equal(t, 1, c.Len())
}

func TestPresenceCache_GetReturnsCopy(t *testing.T) {
	c := NewPresenceCache()
	c.Keep(&Account{ID: "a1", Username: "alice", SaveIDs: []string{"s1"}}, true)

	got, ok := c.Get("a1")
	require.True(t, ok)
	got.Username = "mallory"
	got.SaveIDs[0] = "s2"

	again, _ := c.Get("a1")
	assert.Equal(t, "alice", again.Username)
	assert.Equal(t, []string{"s1"}, again.SaveIDs)
}

func TestPresenceCache_Update(t *testing.T) {
	c := NewPresenceCache()
	c.Update(&Account{ID: "a1", Username: "ghost"})
	assert.Zero(t, c.Len(), "update never adds")

	c.Keep(&Account{ID: "a1", Username: "alice"}, true)
	c.Update(&Account{ID: "a1", Username: "alicia"})
	got, _ := c.Get("a1")
	assert.Equal(t, "alicia", got.Username)

	c.Remove("a1")
	_, ok := c.Get("a1")
	assert.False(t, ok)
}

func TestPresenceCache_SweepEvictsIdle(t *testing.T) {
	clock := newManualClock()
	c := NewPresenceCache(WithPresenceClock(clock.Now), WithIdleTimeout(3*time.Minute))

	c.Keep(&Account{ID: "idle"}, true)
	c.Keep(&Account{ID: "busy"}, true)

	clock.Advance(2 * time.Minute)
	c.Keep(&Account{ID: "busy"}, false)

	clock.Advance(time.Minute)
	assert.Zero(t, c.Sweep(), "an entry idle for exactly the timeout survives")

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, []string{"busy"}, c.IDs())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Zero(t, c.Len())
}

func TestPresenceCache_GetDoesNotTouch(t *testing.T) {
	clock := newManualClock()
	c := NewPresenceCache(WithPresenceClock(clock.Now), WithIdleTimeout(time.Minute))
	c.Keep(&Account{ID: "a1"}, true)

	clock.Advance(59 * time.Second)
	_, ok := c.Get("a1")
	require.True(t, ok)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 1, c.Sweep())
}

func TestPresenceCache_Sweeper(t *testing.T) {
	defer goleak.VerifyNone(t)

	clock := newManualClock()
	c := NewPresenceCache(
		WithPresenceClock(clock.Now),
		WithIdleTimeout(time.Minute),
		WithSweepInterval(5*time.Millisecond),
	)
	c.Keep(&Account{ID: "a1"}, true)

	c.Start(context.Background())
	c.Start(context.Background())

	clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)

	c.Stop()
	c.Stop()
}

func TestPresenceCache_StopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)

	c := NewPresenceCache(WithSweepInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	cancel()
	c.Stop()
}

func TestPresenceCache_ConcurrentAccess(t *testing.T) {
	c := NewPresenceCache()
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			acc := &Account{ID: string(rune('a' + n))}
			for range 100 {
				c.Keep(acc, true)
				c.Get(acc.ID)
				c.Sweep()
				c.IDs()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, c.Len())
}
