// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package account

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nexusgrid/nexusgrid/internal/observability"
)

// Presence cache defaults.
const (
	DefaultIdleTimeout   = 3 * time.Minute
	DefaultSweepInterval = 30 * time.Second
)

type presenceEntry struct {
	account   *Account
	lastTouch time.Time
}

// PresenceCache tracks active accounts. Entries idle for longer than the
// idle timeout are evicted by a single background sweeper. There is no
// capacity bound.
type PresenceCache struct {
	mu      sync.Mutex
	entries map[string]*presenceEntry

	idle     time.Duration
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// PresenceOption configures a PresenceCache.
type PresenceOption func(*PresenceCache)

// WithIdleTimeout sets how long an untouched entry survives.
func WithIdleTimeout(d time.Duration) PresenceOption {
	return func(c *PresenceCache) { c.idle = d }
}

// WithSweepInterval sets how often the sweeper runs.
func WithSweepInterval(d time.Duration) PresenceOption {
	return func(c *PresenceCache) { c.interval = d }
}

// WithPresenceClock overrides the time source.
func WithPresenceClock(now func() time.Time) PresenceOption {
	return func(c *PresenceCache) { c.now = now }
}

// WithPresenceLogger sets the logger.
func WithPresenceLogger(l *slog.Logger) PresenceOption {
	return func(c *PresenceCache) { c.logger = l }
}

// NewPresenceCache creates an empty cache. Call Start to run the sweeper.
func NewPresenceCache(opts ...PresenceOption) *PresenceCache {
	c := &PresenceCache{
		entries:  make(map[string]*presenceEntry),
		idle:     DefaultIdleTimeout,
		interval: DefaultSweepInterval,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Keep refreshes the last-touch time of acc. A missing entry is added only
// when addIfAbsent is set. Reports whether acc is cached afterwards.
func (c *PresenceCache) Keep(acc *Account, addIfAbsent bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[acc.ID]; ok {
		e.lastTouch = c.now()
		return true
	}
	if !addIfAbsent {
		return false
	}
	c.entries[acc.ID] = &presenceEntry{account: acc.clone(), lastTouch: c.now()}
	observability.SetPresenceAccounts(len(c.entries))
	return true
}

// Get returns a copy of the cached account without touching it.
func (c *PresenceCache) Get(id string) (*Account, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return e.account.clone(), true
}

// Update replaces a cached account, keeping its last-touch time. Accounts
// that are not cached are ignored.
func (c *PresenceCache) Update(acc *Account) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[acc.ID]; ok {
		e.account = acc.clone()
	}
}

// Remove drops id from the cache.
func (c *PresenceCache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, id)
	observability.SetPresenceAccounts(len(c.entries))
}

// Len returns the number of cached accounts.
func (c *PresenceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// IDs returns the cached account IDs in sorted order.
func (c *PresenceCache) IDs() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.entries))
	for id := range c.entries {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	sort.Strings(ids)
	return ids
}

// Sweep evicts every entry idle for longer than the idle timeout and
// returns the number evicted.
func (c *PresenceCache) Sweep() int {
	c.mu.Lock()
	now := c.now()
	evicted := 0
	for id, e := range c.entries {
		if now.Sub(e.lastTouch) > c.idle {
			delete(c.entries, id)
			evicted++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	if evicted > 0 {
		observability.RecordPresenceEvictions(evicted)
		c.logger.Debug("evicted idle accounts", "evicted", evicted, "remaining", remaining)
	}
	observability.SetPresenceAccounts(remaining)
	return evicted
}

// Start launches the sweeper. It stops when ctx is cancelled or Stop is
// called. Starting an already running cache is a no-op.
func (c *PresenceCache) Start(ctx context.Context) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	if c.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.run(ctx, c.done)
}

func (c *PresenceCache) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Stop halts the sweeper and waits for it to exit.
func (c *PresenceCache) Stop() {
	c.runMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
