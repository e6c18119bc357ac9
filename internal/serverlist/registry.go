// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package serverlist

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/nexusgrid/nexusgrid/internal/identity"
	"github.com/nexusgrid/nexusgrid/internal/token"
	"github.com/nexusgrid/nexusgrid/pkg/errutil"
)

// DefaultEntryTTL is how long a listing survives without a status update.
const DefaultEntryTTL = 5 * time.Minute

// ErrNotListed is returned when a server has no listing.
var ErrNotListed = errors.New("server is not listed")

// Identities is the part of the identity registry the list needs.
// *identity.Registry implements it.
type Identities interface {
	Get(ctx context.Context, id string) (*identity.Identity, error)
	CheckServerOwner(ctx context.Context, server *identity.Identity) error
}

// Entry is one listed server.
type Entry struct {
	ServerID        string
	OwnerID         string
	Addresses       []string
	Port            int
	Version         string
	Protocol        int
	PhoenixProtocol int
	Properties      map[string]string
	LastUpdate      time.Time
}

func (e *Entry) clone() *Entry {
	c := *e
	c.Addresses = slices.Clone(e.Addresses)
	c.Properties = maps.Clone(e.Properties)
	return &c
}

// PostRequest is what a server submits to get listed.
type PostRequest struct {
	Port            int
	Version         string
	Protocol        int
	PhoenixProtocol int
}

// Registry holds the listed servers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry

	identities Identities
	admitter   *Admitter
	ttl        time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithEntryTTL overrides DefaultEntryTTL. Zero keeps entries until removed.
func WithEntryTTL(d time.Duration) RegistryOption {
	return func(r *Registry) { r.ttl = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates an empty list.
func NewRegistry(identities Identities, admitter *Admitter, opts ...RegistryOption) *Registry {
	r := &Registry{
		entries:    make(map[string]*Entry),
		identities: identities,
		admitter:   admitter,
		ttl:        DefaultEntryTTL,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Post lists the calling server after its certificate addresses pass the
// admission handshake. Posting again replaces the listing.
func (r *Registry) Post(ctx context.Context, caller *token.AccessContext, req PostRequest) (*Entry, error) {
	if caller == nil || !caller.IsServer() || !caller.Token.Has(token.CapHost) {
		return nil, oops.Code("SERVERLIST_NOT_SERVER").Wrap(identity.ErrNotServer)
	}
	if req.Port < 1 || req.Port > 65535 || req.Version == "" {
		return nil, oops.Code("SERVERLIST_REQUEST_INVALID").
			With("port", req.Port).
			With("version", req.Version).
			Errorf("port and version are required")
	}

	serverID := caller.Principal.ID
	server, err := r.identities.Get(ctx, serverID)
	if err != nil {
		return nil, err
	}
	raw, _ := server.Property(identity.PropServerCertificate)
	cert, err := identity.ParseCertificateProperties(raw)
	if err != nil {
		return nil, oops.With("server_id", serverID).Wrap(err)
	}
	if len(cert.Addresses) == 0 {
		return nil, oops.Code("SERVERLIST_NO_ADDRESSES").With("server_id", serverID).Errorf("server has no addresses")
	}

	err = r.admitter.Admit(ctx, AdmitRequest{
		ServerID:        serverID,
		Addresses:       cert.Addresses,
		Port:            req.Port,
		PhoenixProtocol: req.PhoenixProtocol,
	})
	if err != nil {
		return nil, err
	}

	owner, _ := server.Owner()
	entry := &Entry{
		ServerID:        serverID,
		OwnerID:         owner,
		Addresses:       slices.Clone(cert.Addresses),
		Port:            req.Port,
		Version:         req.Version,
		Protocol:        req.Protocol,
		PhoenixProtocol: req.PhoenixProtocol,
		Properties:      make(map[string]string),
		LastUpdate:      r.now(),
	}
	r.mu.Lock()
	r.entries[serverID] = entry
	r.mu.Unlock()

	r.logger.InfoContext(ctx, "server listed", "server_id", serverID, "port", req.Port, "version", req.Version)
	return entry.clone(), nil
}

// Update replaces the status properties of the calling server's listing
// and keeps it alive.
func (r *Registry) Update(ctx context.Context, caller *token.AccessContext, props map[string]string) error {
	if caller == nil || !caller.IsServer() || !caller.Token.Has(token.CapHost) {
		return oops.Code("SERVERLIST_NOT_SERVER").Wrap(identity.ErrNotServer)
	}
	serverID := caller.Principal.ID

	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[serverID]
	if !ok {
		return oops.Code("SERVERLIST_NOT_LISTED").With("server_id", serverID).Wrap(ErrNotListed)
	}
	entry.Properties = maps.Clone(props)
	if entry.Properties == nil {
		entry.Properties = make(map[string]string)
	}
	entry.LastUpdate = r.now()
	return nil
}

// Remove drops a listing. Removing an unlisted server is not an error.
func (r *Registry) Remove(serverID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, serverID)
}

// Get returns the listing of serverID.
func (r *Registry) Get(serverID string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[serverID]
	if !ok {
		return nil, false
	}
	return entry.clone(), true
}

// List returns the listings matching filter, ordered by server ID.
// Listings of expired entries, deleted servers, and servers whose owner
// is host-banned or gone are dropped.
func (r *Registry) List(ctx context.Context, filter Filter) ([]*Entry, error) {
	r.mu.RLock()
	snapshot := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		snapshot = append(snapshot, e.clone())
	}
	r.mu.RUnlock()
	slices.SortFunc(snapshot, func(a, b *Entry) int {
		switch {
		case a.ServerID < b.ServerID:
			return -1
		case a.ServerID > b.ServerID:
			return 1
		}
		return 0
	})

	now := r.now()
	out := make([]*Entry, 0, len(snapshot))
	for _, e := range snapshot {
		if r.ttl > 0 && now.Sub(e.LastUpdate) > r.ttl {
			r.drop(ctx, e, "expired")
			continue
		}
		alive, err := r.serverAlive(ctx, e.ServerID)
		if err != nil {
			return nil, err
		}
		if !alive {
			r.drop(ctx, e, "revoked")
			continue
		}
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Registry) serverAlive(ctx context.Context, serverID string) (bool, error) {
	server, err := r.identities.Get(ctx, serverID)
	if errors.Is(err, identity.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	err = r.identities.CheckServerOwner(ctx, server)
	if errors.Is(err, identity.ErrHostBanned) || errors.Is(err, identity.ErrOwnerMissing) {
		return false, nil
	}
	if err != nil {
		errutil.LogError(r.logger, "owner check failed", err)
		return false, err
	}
	return true, nil
}

// drop removes e unless it was re-posted since the snapshot.
func (r *Registry) drop(ctx context.Context, e *Entry, reason string) {
	r.mu.Lock()
	if cur, ok := r.entries[e.ServerID]; ok && cur.LastUpdate.Equal(e.LastUpdate) {
		delete(r.entries, e.ServerID)
	}
	r.mu.Unlock()
	r.logger.InfoContext(ctx, "server delisted", "server_id", e.ServerID, "reason", reason)
}
