// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/nexusgrid/nexusgrid/internal/account"
	"github.com/nexusgrid/nexusgrid/internal/keys"
	"github.com/nexusgrid/nexusgrid/internal/token"
)

// JoinSecretTTL is the lifetime of the secret a player hands to a server.
const JoinSecretTTL = 15 * time.Second

// HostCapabilities are granted to a server's host token.
var HostCapabilities = token.NewCapabilities(token.CapHost, token.CapIDGet)

// Hosting creates and maintains server identities and brokers player
// authentication against them.
type Hosting struct {
	registry *Registry
	tokens   *token.Service
	generate func() (*keys.KeyPair, error)
	logger   *slog.Logger
}

// HostingOption configures Hosting.
type HostingOption func(*Hosting)

// WithKeyGenerator overrides server key pair generation.
func WithKeyGenerator(fn func() (*keys.KeyPair, error)) HostingOption {
	return func(h *Hosting) { h.generate = fn }
}

// WithHostingLogger sets the logger.
func WithHostingLogger(l *slog.Logger) HostingOption {
	return func(h *Hosting) { h.logger = l }
}

// NewHosting creates Hosting over registry, minting host tokens with tokens.
func NewHosting(registry *Registry, tokens *token.Service, opts ...HostingOption) *Hosting {
	h := &Hosting{
		registry: registry,
		tokens:   tokens,
		generate: keys.GenerateKeyPair,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HostGrant is what a server receives when its certificate is issued.
type HostGrant struct {
	Identity    *Identity
	Certificate *CertificateProperties
	Token       string
	ExpiresAt   time.Time
}

// Player is a player authenticated by a server.
type Player struct {
	AccountID   string
	DisplayName string
}

// CreateServerIdentity creates a server owned by ownerID, issues its first
// certificate and returns a host token valid until the certificate expires.
// The owner must not be a server or host-banned.
func (h *Hosting) CreateServerIdentity(ctx context.Context, ownerID string, addresses []string) (*HostGrant, error) {
	addrs, err := normalizeAddresses(addresses)
	if err != nil {
		return nil, err
	}
	owner, err := h.registry.Get(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if owner.IsServer() {
		return nil, oops.Code("IDENTITY_SERVER_OWNER").With("owner_id", ownerID).Wrap(ErrServerOwner)
	}
	if !owner.IsSystem() {
		if err := h.ensureMayHost(ctx, owner); err != nil {
			return nil, err
		}
	}

	server, err := h.registry.Create(ctx, map[string]Property{
		PropServerHost: {Value: "true", ReadOnly: true},
		PropOwner:      {Value: ownerID, ReadOnly: true},
	})
	if err != nil {
		return nil, err
	}
	grant, err := h.issueCertificate(ctx, server, addrs, false)
	if err != nil {
		return nil, err
	}
	h.logger.InfoContext(ctx, "server identity created", "identity_id", server.ID, "owner_id", ownerID)
	return grant, nil
}

// ensureMayHost rejects host-banned owners and records an explicit
// hostBanned=false on owners that never had the flag.
func (h *Hosting) ensureMayHost(ctx context.Context, owner *Identity) error {
	banned := oops.Code("IDENTITY_HOST_BANNED").With("owner_id", owner.ID).Wrap(ErrHostBanned)
	fail := func(err error) error {
		return oops.Code("IDENTITY_UPDATE_FAILED").With("identity_id", owner.ID).Wrap(err)
	}

	if owner.IsAccount() {
		data, err := h.registry.accounts.AccountData(owner.ID)
		if err != nil {
			return err
		}
		v, ok, err := data.Bool(ctx, account.KeyHostBanned)
		if err != nil {
			return fail(err)
		}
		if !ok {
			if err := data.SetValue(ctx, account.KeyHostBanned, false); err != nil {
				return fail(err)
			}
			return nil
		}
		if v {
			return banned
		}
		return nil
	}

	value, ok := owner.Property(PropHostBanned)
	if !ok {
		owner.Properties[PropHostBanned] = Property{Value: "false"}
		return h.registry.save(ctx, owner)
	}
	if strings.EqualFold(value, "true") {
		return banned
	}
	return nil
}

// RefreshServerIdentity re-keys the calling server and replaces its
// addresses. Host tokens issued for the old certificate stop verifying.
func (h *Hosting) RefreshServerIdentity(ctx context.Context, caller *token.AccessContext, addresses []string) (*HostGrant, error) {
	if caller == nil || !caller.IsServer() || !caller.Token.Has(token.CapHost) {
		return nil, oops.Code("IDENTITY_NOT_SERVER").Wrap(ErrNotServer)
	}
	return h.rekey(ctx, caller.Principal.ID, addresses)
}

// ReactivateServerIdentity re-keys a server on behalf of an operator, for
// example after its certificate expired.
func (h *Hosting) ReactivateServerIdentity(ctx context.Context, serverID string, addresses []string) (*HostGrant, error) {
	return h.rekey(ctx, serverID, addresses)
}

func (h *Hosting) rekey(ctx context.Context, serverID string, addresses []string) (*HostGrant, error) {
	addrs, err := normalizeAddresses(addresses)
	if err != nil {
		return nil, err
	}
	server, err := h.server(ctx, serverID)
	if err != nil {
		return nil, err
	}
	grant, err := h.issueCertificate(ctx, server, addrs, true)
	if err != nil {
		return nil, err
	}
	h.logger.InfoContext(ctx, "server identity re-keyed", "identity_id", serverID)
	return grant, nil
}

// server loads a server identity whose owner is still in good standing.
func (h *Hosting) server(ctx context.Context, serverID string) (*Identity, error) {
	server, err := h.registry.Get(ctx, serverID)
	if err != nil {
		return nil, err
	}
	if !server.IsServer() {
		return nil, oops.Code("IDENTITY_NOT_SERVER").With("identity_id", serverID).Wrap(ErrNotServer)
	}
	if err := h.registry.CheckServerOwner(ctx, server); err != nil {
		return nil, err
	}
	return server, nil
}

func (h *Hosting) issueCertificate(ctx context.Context, server *Identity, addresses []string, rekey bool) (*HostGrant, error) {
	fail := func(op string, err error) error {
		return oops.Code("IDENTITY_CERTIFICATE_FAILED").With("operation", op).With("identity_id", server.ID).Wrap(err)
	}

	pair, err := h.generate()
	if err != nil {
		return nil, fail("generate key", err)
	}
	pub, err := keys.EncodePublicKeyPEM(pair.Public)
	if err != nil {
		return nil, fail("encode public key", err)
	}
	priv, err := keys.EncodePrivateKeyPEM(pair.Private)
	if err != nil {
		return nil, fail("encode private key", err)
	}

	stamp := h.registry.now().UnixMilli()
	if rekey {
		stamp = max(stamp, server.LastUpdateTime+1)
	}
	props := &CertificateProperties{
		LastUpdate: stamp,
		Expiry:     stamp + CertificateLifetime.Milliseconds(),
		Addresses:  addresses,
		PublicKey:  string(pub),
		PrivateKey: string(priv),
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return nil, fail("encode certificate", err)
	}
	if _, err := ParseCertificateProperties(string(raw)); err != nil {
		return nil, err
	}

	server.Properties[PropServerCertificate] = Property{Value: string(raw), ReadOnly: true}
	server.LastUpdateTime = stamp
	if err := h.registry.save(ctx, server); err != nil {
		return nil, err
	}

	tok, signed, err := h.tokens.Issue(ctx, token.IssueRequest{
		Subject:      server.ID,
		Capabilities: HostCapabilities,
		ExpiresAt:    props.ExpiresAt(),
	})
	if err != nil {
		return nil, err
	}
	return &HostGrant{
		Identity:    server.Public(),
		Certificate: props,
		Token:       signed,
		ExpiresAt:   tok.ExpiresAt,
	}, nil
}

// DeleteServerIdentity removes a server identity.
func (h *Hosting) DeleteServerIdentity(ctx context.Context, serverID string) error {
	server, err := h.registry.Get(ctx, serverID)
	if err != nil {
		return err
	}
	if !server.IsServer() {
		return oops.Code("IDENTITY_NOT_SERVER").With("identity_id", serverID).Wrap(ErrNotServer)
	}
	return h.registry.Delete(ctx, serverID)
}

// Certificate returns the stored certificate properties of a server.
func (h *Hosting) Certificate(ctx context.Context, serverID string) (*CertificateProperties, error) {
	server, err := h.server(ctx, serverID)
	if err != nil {
		return nil, err
	}
	raw, _ := server.Property(PropServerCertificate)
	props, err := ParseCertificateProperties(raw)
	if err != nil {
		return nil, oops.With("identity_id", serverID).Wrap(err)
	}
	return props, nil
}

// DownloadCertificate returns the binary certificate document of a server.
func (h *Hosting) DownloadCertificate(ctx context.Context, serverID string) ([]byte, error) {
	props, err := h.Certificate(ctx, serverID)
	if err != nil {
		return nil, err
	}
	cert := &Certificate{
		GameID:    h.tokens.GameID(),
		ServerID:  serverID,
		Addresses: props.Addresses,
		IssuedAt:  props.LastUpdate,
		ExpiresAt: props.Expiry,
		PublicKey: []byte(props.PublicKey),
	}
	return cert.MarshalBinary()
}

// VerifyServerSignature reports whether sig was made over data with the
// private key of the server's current certificate.
func (h *Hosting) VerifyServerSignature(ctx context.Context, serverID string, data, sig []byte) (bool, error) {
	props, err := h.Certificate(ctx, serverID)
	if err != nil {
		return false, err
	}
	pub, err := keys.ParsePublicKeyPEM([]byte(props.PublicKey))
	if err != nil {
		return false, oops.With("identity_id", serverID).Wrap(corrupt(err))
	}
	return keys.Verify(data, sig, pub), nil
}

// JoinServer issues the short-lived secret a player passes to serverID so
// the server can authenticate them.
func (h *Hosting) JoinServer(ctx context.Context, player *token.AccessContext, serverID string) (string, error) {
	if player == nil || !player.IsAccount() || !player.Token.Has(token.CapPlay) {
		return "", token.InvalidToken()
	}
	if _, err := h.server(ctx, serverID); err != nil {
		return "", err
	}
	fields := player.Principal.Significant
	if fields == nil {
		return "", token.InvalidToken()
	}
	_, secret, err := h.tokens.Issue(ctx, token.IssueRequest{
		Subject:      player.Principal.ID,
		Capabilities: token.NewCapabilities(token.CapServerAuthenticate),
		TTL:          JoinSecretTTL,
		Payload: map[string]any{
			token.PayloadServerID:          serverID,
			token.PayloadSignificantRandom: fields.Random,
			token.PayloadSignificantNumber: fields.Number,
		},
	})
	if err != nil {
		return "", err
	}
	return secret, nil
}

// AuthenticatePlayer checks a join secret presented to the calling server
// and returns the player it belongs to. A secret issued for another
// server, or after the player logged in again, is rejected.
func (h *Hosting) AuthenticatePlayer(ctx context.Context, server *token.AccessContext, secret string) (*Player, error) {
	if server == nil || !server.IsServer() || !server.Token.Has(token.CapHost) {
		return nil, oops.Code("IDENTITY_NOT_SERVER").Wrap(ErrNotServer)
	}
	access, err := h.tokens.Verify(ctx, secret, token.CapServerAuthenticate)
	if err != nil {
		return nil, err
	}
	_, hasFields := access.Token.SignificantFields()
	sid := access.Token.PayloadValue(token.PayloadServerID).String()
	if !access.IsAccount() || !hasFields || sid != server.Principal.ID {
		h.logger.WarnContext(ctx, "join secret rejected",
			"subject", access.Principal.ID, "server_id", server.Principal.ID)
		return nil, token.InvalidToken()
	}
	return &Player{AccountID: access.Principal.ID, DisplayName: access.Principal.DisplayName}, nil
}

func normalizeAddresses(addresses []string) ([]string, error) {
	out := make([]string, 0, len(addresses))
	seen := make(map[string]bool, len(addresses))
	for _, a := range addresses {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, oops.Code("IDENTITY_ADDRESSES_INVALID").Wrap(errors.New("at least one address is required"))
	}
	return out, nil
}
