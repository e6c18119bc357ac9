// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

// Package serverlist keeps the list of game servers that players can
// browse. Before a server is listed, every address on its certificate is
// checked with an out-of-band handshake.
package serverlist

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/samber/oops"

	"github.com/nexusgrid/nexusgrid/internal/observability"
)

// DefaultHandshakeTimeout bounds the connect and the whole exchange with
// one address.
const DefaultHandshakeTimeout = time.Second

// maxHandshakeField bounds the game and server IDs a server may send.
const maxHandshakeField = 1024

// Handshake modes written after the endpoint.
const modeInfo byte = 0

// Admission failures.
var (
	ErrUnreachable    = errors.New("no address could be reached")
	ErrHandshake      = errors.New("invalid handshake")
	ErrInsecure       = errors.New("server does not use encryption")
	ErrGameMismatch   = errors.New("game ID does not match")
	ErrServerMismatch = errors.New("server ID does not match")
)

// Admission results, used as metric labels.
const (
	resultOK             = "ok"
	resultUnreachable    = "unreachable"
	resultHandshake      = "handshake_failed"
	resultInsecure       = "insecure"
	resultGameMismatch   = "game_mismatch"
	resultServerMismatch = "server_mismatch"
)

// DialFunc opens a connection, like net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// Admitter performs the pre-listing handshake.
type Admitter struct {
	gameID  string
	timeout time.Duration
	dial    DialFunc
	logger  *slog.Logger
}

// AdmitterOption configures an Admitter.
type AdmitterOption func(*Admitter)

// WithHandshakeTimeout overrides DefaultHandshakeTimeout.
func WithHandshakeTimeout(d time.Duration) AdmitterOption {
	return func(a *Admitter) { a.timeout = d }
}

// WithDialer overrides how connections are opened.
func WithDialer(dial DialFunc) AdmitterOption {
	return func(a *Admitter) { a.dial = dial }
}

// WithAdmitterLogger sets the logger.
func WithAdmitterLogger(l *slog.Logger) AdmitterOption {
	return func(a *Admitter) { a.logger = l }
}

// NewAdmitter creates an Admitter expecting servers of gameID.
func NewAdmitter(gameID string, opts ...AdmitterOption) *Admitter {
	a := &Admitter{
		gameID:  gameID,
		timeout: DefaultHandshakeTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.dial == nil {
		d := &net.Dialer{Timeout: a.timeout}
		a.dial = d.DialContext
	}
	return a
}

// AdmitRequest names the server to check.
type AdmitRequest struct {
	ServerID        string
	Addresses       []string
	Port            int
	PhoenixProtocol int
}

// Admit handshakes with every address of req. Addresses that refuse the
// connection are skipped, but at least one must answer, and every server
// that answers must speak the protocol, report this game and req.ServerID,
// and require encryption. Nothing is retried.
func (a *Admitter) Admit(ctx context.Context, req AdmitRequest) error {
	reached := 0
	for _, addr := range req.Addresses {
		conn, err := a.dial(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(req.Port)))
		if err != nil {
			a.logger.DebugContext(ctx, "server address unreachable",
				"server_id", req.ServerID, "address", addr, "error", err)
			continue
		}
		reached++
		err = a.handshake(conn, addr, req)
		_ = conn.Close()
		if err != nil {
			observability.RecordServerListAdmission(resultFor(err))
			a.logger.WarnContext(ctx, "server admission rejected",
				"server_id", req.ServerID, "address", addr, "port", req.Port, "error", err)
			return oops.Code("SERVERLIST_ADMISSION_REJECTED").
				With("server_id", req.ServerID).
				With("address", addr).
				With("port", req.Port).
				Wrap(err)
		}
	}
	if reached == 0 {
		observability.RecordServerListAdmission(resultUnreachable)
		return oops.Code("SERVERLIST_ADMISSION_REJECTED").
			With("server_id", req.ServerID).
			With("port", req.Port).
			Wrap(ErrUnreachable)
	}
	observability.RecordServerListAdmission(resultOK)
	return nil
}

func (a *Admitter) handshake(conn net.Conn, addr string, req AdmitRequest) error {
	if err := conn.SetDeadline(time.Now().Add(a.timeout)); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	proto := strconv.Itoa(req.PhoenixProtocol)
	if _, err := io.WriteString(conn, "PHOENIX/HELLO/"+proto+"/"); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	want := []byte("PHOENIX/HELLO/SERVER/" + proto + "/")
	got := make([]byte, len(want))
	if _, err := io.ReadFull(conn, got); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("%w: unexpected greeting %q", ErrHandshake, got)
	}

	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, int32(len(addr))) //nolint:gosec // host names are short
	buf.WriteString(addr)
	_ = binary.Write(&buf, binary.BigEndian, int32(req.Port)) //nolint:gosec // validated port
	buf.WriteByte(modeInfo)
	if _, err := conn.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	gameID, err := readField(conn)
	if err != nil {
		return err
	}
	serverID, err := readField(conn)
	if err != nil {
		return err
	}
	var encrypted [1]byte
	if _, err := io.ReadFull(conn, encrypted[:]); err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}

	switch {
	case encrypted[0] != 1:
		return ErrInsecure
	case !strings.EqualFold(gameID, a.gameID):
		return ErrGameMismatch
	case !strings.EqualFold(serverID, req.ServerID):
		return ErrServerMismatch
	}
	return nil
}

func readField(r io.Reader) (string, error) {
	var n int32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return "", fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if n < 0 || n > maxHandshakeField {
		return "", fmt.Errorf("%w: field length %d", ErrHandshake, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	return string(b), nil
}

func resultFor(err error) string {
	switch {
	case errors.Is(err, ErrInsecure):
		return resultInsecure
	case errors.Is(err, ErrGameMismatch):
		return resultGameMismatch
	case errors.Is(err, ErrServerMismatch):
		return resultServerMismatch
	default:
		return resultHandshake
	}
}
