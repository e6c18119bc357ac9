// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

// Package token issues and verifies the signed, capability-scoped bearer
// tokens used by players, servers and operators.
//
// Tokens are JWTs signed with RSA-PSS SHA-256. Every token is anchored to
// its principal's last-update stamp and may embed the principal's
// significant-field pair, so bumping either on the principal revokes all
// outstanding tokens without a revocation list.
package token

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/nexusgrid/nexusgrid/internal/keys"
	"github.com/nexusgrid/nexusgrid/internal/observability"
)

// DefaultGameID is the cgi claim used when no game ID is configured.
const DefaultGameID = "nexusgrid"

// GeneratedNotBeforeDelay delays the start of tokens minted through Generate.
const GeneratedNotBeforeDelay = 5 * time.Second

// ErrInvalidToken is the only error callers see for a rejected token. The
// precise reason is logged and counted but never returned.
var ErrInvalidToken = errors.New("invalid token")

// ErrCapabilityNotGrantable is returned when Generate is asked for a
// capability that may only be obtained by logging in.
var ErrCapabilityNotGrantable = errors.New("capability cannot be generated")

// Rejection reasons, used for logs and metrics only.
const (
	reasonMalformed         = "malformed"
	reasonSignature         = "bad_signature"
	reasonUnverifiable      = "unverifiable"
	reasonExpired           = "expired"
	reasonNotYetValid       = "not_yet_valid"
	reasonIssuer            = "wrong_issuer"
	reasonGame              = "wrong_game"
	reasonCapability        = "missing_capability"
	reasonUnknownPrincipal  = "unknown_principal"
	reasonStaleAnchor       = "stale_anchor"
	reasonSignificantAbsent = "significant_fields_missing"
	reasonSignificantDiffer = "significant_fields_mismatch"
	reasonInvalid           = "invalid"
)

// Service issues and verifies tokens.
type Service struct {
	keyring *keys.Keyring
	source  PrincipalSource
	gameID  string
	now     func() time.Time
	random  func() int32
	logger  *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithGameID sets the cgi claim issued and required by the service.
func WithGameID(id string) Option {
	return func(s *Service) { s.gameID = id }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRandom overrides the significant-field random generator.
func WithRandom(fn func() int32) Option {
	return func(s *Service) { s.random = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a token service signing with keyring and resolving
// subjects through source.
func NewService(keyring *keys.Keyring, source PrincipalSource, opts ...Option) *Service {
	s := &Service{
		keyring: keyring,
		source:  source,
		gameID:  DefaultGameID,
		now:     time.Now,
		random:  cryptoInt32,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GameID returns the game ID stamped into issued tokens.
func (s *Service) GameID() string {
	return s.gameID
}

// IssueRequest describes a token to mint.
type IssueRequest struct {
	Subject      string
	SaveID       string
	Capabilities Capabilities

	// TTL sets the expiry relative to now. ExpiresAt wins when both are
	// set; when neither is set the token never expires.
	TTL       time.Duration
	ExpiresAt time.Time
	NotBefore time.Time

	Payload map[string]any
}

// Issue mints a token for req.Subject anchored to the subject's current
// last-update stamp. It returns the decoded token and its wire form.
func (s *Service) Issue(ctx context.Context, req IssueRequest) (*Token, string, error) {
	principal, err := s.source.ResolvePrincipal(ctx, req.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, "", oops.Code("TOKEN_PRINCIPAL_NOT_FOUND").With("subject", req.Subject).Wrap(err)
		}
		return nil, "", oops.Code("TOKEN_PRINCIPAL_LOOKUP_FAILED").With("subject", req.Subject).Wrap(err)
	}
	return s.sign(req, principal.LastUpdate)
}

func (s *Service) sign(req IssueRequest, lastUpdate int64) (*Token, string, error) {
	for _, c := range req.Capabilities {
		if !c.Valid() {
			return nil, "", oops.Code("TOKEN_UNKNOWN_CAPABILITY").With("capability", string(c)).Wrap(ErrUnknownCapability)
		}
	}

	now := s.now()
	expires := req.ExpiresAt
	if expires.IsZero() && req.TTL > 0 {
		expires = now.Add(req.TTL)
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			Subject:   req.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: numericDate(expires),
			NotBefore: numericDate(req.NotBefore),
			ID:        ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		},
		GameID:       s.gameID,
		SaveID:       req.SaveID,
		LastUpdate:   lastUpdate,
		Capabilities: NewCapabilities(req.Capabilities...),
	}
	if len(req.Payload) > 0 {
		raw, err := json.Marshal(req.Payload)
		if err != nil {
			return nil, "", oops.Code("TOKEN_PAYLOAD_INVALID").Wrap(err)
		}
		claims.Payload = raw
	}

	key, err := s.keyring.Private()
	if err != nil {
		return nil, "", oops.Code("TOKEN_SIGNING_FAILED").With("operation", "load key").Wrap(err)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodPS256, claims).SignedString(key)
	if err != nil {
		return nil, "", oops.Code("TOKEN_SIGNING_FAILED").With("operation", "sign").Wrap(err)
	}

	return claims.token(), signed, nil
}

// AccessContext is the result of a successful verification.
type AccessContext struct {
	Token     *Token
	Principal *Principal
}

// IsServer reports whether the token belongs to a server identity.
func (a *AccessContext) IsServer() bool {
	return a.Principal.Server
}

// IsAccount reports whether the token belongs to a player account.
func (a *AccessContext) IsAccount() bool {
	return a.Principal.Kind == KindAccount
}

// Verify checks raw and returns the access context it grants. Every
// rejection returns ErrInvalidToken; lookup failures in the principal
// source are returned as they are.
func (s *Service) Verify(ctx context.Context, raw string, required ...Capability) (*AccessContext, error) {
	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodPS256.Alg()}),
		jwt.WithIssuer(Issuer),
		jwt.WithTimeFunc(s.now),
	)
	if _, err := parser.ParseWithClaims(raw, claims, s.publicKey); err != nil {
		return nil, s.reject(ctx, parseReason(err), claims.Subject)
	}
	tok := claims.token()

	if tok.GameID != s.gameID {
		return nil, s.reject(ctx, reasonGame, tok.Subject)
	}

	// Resolve before the capability check: resolving a server runs the
	// owner checks that retire it, whatever the token was presented for.
	principal, err := s.source.ResolvePrincipal(ctx, tok.Subject)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return nil, s.reject(ctx, reasonUnknownPrincipal, tok.Subject)
		}
		observability.RecordTokenVerification("lookup_failed")
		return nil, oops.Code("TOKEN_PRINCIPAL_LOOKUP_FAILED").With("subject", tok.Subject).Wrap(err)
	}
	for _, c := range required {
		if !tok.Has(c) {
			return nil, s.reject(ctx, reasonCapability, tok.Subject, "capability", string(c))
		}
	}
	if principal.LastUpdate != tok.LastUpdate {
		return nil, s.reject(ctx, reasonStaleAnchor, tok.Subject)
	}
	if principal.Kind != KindSystem {
		if embedded, ok := tok.SignificantFields(); ok {
			if principal.Significant == nil {
				return nil, s.reject(ctx, reasonSignificantAbsent, tok.Subject)
			}
			if *principal.Significant != embedded {
				return nil, s.reject(ctx, reasonSignificantDiffer, tok.Subject)
			}
		}
	}

	observability.RecordTokenVerification("ok")
	return &AccessContext{Token: tok, Principal: principal}, nil
}

func (s *Service) publicKey(*jwt.Token) (any, error) {
	return s.keyring.Public()
}

func (s *Service) reject(ctx context.Context, reason, subject string, attrs ...any) error {
	observability.RecordTokenVerification(reason)
	args := append([]any{"reason", reason, "subject", subject}, attrs...)
	s.logger.WarnContext(ctx, "token rejected", args...)
	return InvalidToken()
}

// InvalidToken returns ErrInvalidToken under the TOKEN_INVALID code. Callers
// that reject a token on grounds of their own return it too.
func InvalidToken() error {
	return oops.Code("TOKEN_INVALID").Wrap(ErrInvalidToken)
}

func parseReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return reasonExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return reasonNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return reasonSignature
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return reasonIssuer
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return reasonUnverifiable
	case errors.Is(err, jwt.ErrTokenMalformed):
		return reasonMalformed
	default:
		return reasonInvalid
	}
}

// Refresh verifies a token carrying CapRefresh and re-issues it with the
// same subject, capabilities, payload and lifetime.
func (s *Service) Refresh(ctx context.Context, raw string) (*Token, string, error) {
	access, err := s.Verify(ctx, raw, CapRefresh)
	if err != nil {
		return nil, "", err
	}
	old := access.Token

	req := IssueRequest{
		Subject:      old.Subject,
		SaveID:       old.SaveID,
		Capabilities: old.Capabilities,
		TTL:          old.Lifetime(),
	}
	if len(old.Payload) > 0 {
		if err := json.Unmarshal(old.Payload, &req.Payload); err != nil {
			return nil, "", oops.Code("TOKEN_PAYLOAD_INVALID").Wrap(err)
		}
	}
	return s.sign(req, access.Principal.LastUpdate)
}

// Generate mints a token on behalf of caller, which must hold CapGenerate.
// The login-only capabilities and CapMaster cannot be generated, and the
// new token only becomes valid GeneratedNotBeforeDelay from now.
func (s *Service) Generate(ctx context.Context, caller *AccessContext, req IssueRequest) (*Token, string, error) {
	if caller == nil || !caller.Token.Has(CapGenerate) {
		return nil, "", s.reject(ctx, reasonCapability, "", "capability", string(CapGenerate))
	}
	for _, c := range req.Capabilities {
		switch c {
		case CapMaster, CapLogin, CapPlay:
			return nil, "", oops.Code("TOKEN_CAPABILITY_FORBIDDEN").
				With("capability", string(c)).
				Wrap(ErrCapabilityNotGrantable)
		}
	}
	req.NotBefore = s.now().Add(GeneratedNotBeforeDelay)
	return s.Issue(ctx, req)
}

// InvalidateAllSessions revokes every token issued for principalID. The
// last-update stamp strictly increases and the significant-field pair is
// replaced, so tokens issued before the call never verify again.
func (s *Service) InvalidateAllSessions(ctx context.Context, principalID string) error {
	principal, err := s.source.ResolvePrincipal(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return oops.Code("TOKEN_PRINCIPAL_NOT_FOUND").With("subject", principalID).Wrap(err)
		}
		return oops.Code("TOKEN_PRINCIPAL_LOOKUP_FAILED").With("subject", principalID).Wrap(err)
	}

	nowMs := s.now().UnixMilli()
	state := SessionState{
		LastUpdate:  max(nowMs, principal.LastUpdate+1),
		Significant: s.nextSignificant(principal.Significant, nowMs),
	}
	if err := s.source.StoreSessionState(ctx, principalID, state); err != nil {
		return oops.Code("TOKEN_INVALIDATE_FAILED").With("subject", principalID).Wrap(err)
	}

	s.logger.InfoContext(ctx, "sessions invalidated", "subject", principalID)
	return nil
}

// rotateSignificant replaces the significant-field pair while keeping the
// last-update stamp, revoking previous session tokens but not refresh tokens.
func (s *Service) rotateSignificant(ctx context.Context, principal *Principal) (SignificantFields, error) {
	fields := s.nextSignificant(principal.Significant, s.now().UnixMilli())
	state := SessionState{LastUpdate: principal.LastUpdate, Significant: fields}
	if err := s.source.StoreSessionState(ctx, principal.ID, state); err != nil {
		return SignificantFields{}, oops.Code("TOKEN_SESSION_STATE_FAILED").With("subject", principal.ID).Wrap(err)
	}
	principal.Significant = &fields
	return fields, nil
}

func (s *Service) nextSignificant(current *SignificantFields, nowMs int64) SignificantFields {
	next := SignificantFields{Random: s.random(), Number: nowMs}
	for current != nil && next.Random == current.Random {
		next.Random = s.random()
	}
	return next
}

func cryptoInt32() int32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return int32(binary.BigEndian.Uint32(b[:])) //nolint:gosec // bit pattern reinterpretation
}
