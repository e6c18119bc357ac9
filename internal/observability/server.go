// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 NexusGrid Contributors

// Package observability serves Prometheus metrics and health checks, and
// holds the domain collectors the services record into.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// DefaultCheckTimeout bounds each readiness check.
const DefaultCheckTimeout = 2 * time.Second

// Check reports whether one dependency is usable. A nil error means ready.
type Check func(ctx context.Context) error

type namedCheck struct {
	name  string
	check Check
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCheck adds a named readiness check. Checks run in the order added.
func WithCheck(name string, check Check) ServerOption {
	return func(s *Server) {
		s.checks = append(s.checks, namedCheck{name: name, check: check})
	}
}

// WithCheckTimeout overrides DefaultCheckTimeout.
func WithCheckTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.checkTimeout = d }
}

// WithServerLogger sets the logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// Server exposes /metrics, /healthz/liveness and /healthz/readiness.
type Server struct {
	addr         string
	registry     *prometheus.Registry
	metrics      *Metrics
	checks       []namedCheck
	checkTimeout time.Duration
	logger       *slog.Logger

	mu       sync.Mutex
	listener net.Listener
	http     *http.Server
}

// NewServer builds a server for addr ("host:port"; port 0 picks a free one)
// on a private registry carrying the Go, process and domain collectors.
func NewServer(addr string, opts ...ServerOption) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s := &Server{
		addr:         addr,
		registry:     registry,
		metrics:      NewMetrics(registry),
		checkTimeout: DefaultCheckTimeout,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the domain collectors registered with this server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the health and metrics routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("GET /healthz/liveness", func(w http.ResponseWriter, _ *http.Request) {
		writePlain(w, http.StatusOK, "ok\n")
	})
	mux.HandleFunc("GET /healthz/readiness", s.handleReadiness)
	return mux
}

// Start listens and serves in the background. The returned channel carries
// a serve failure and is closed once the server stops.
func (s *Server) Start() (<-chan error, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.http != nil {
		return nil, oops.Code("OBSERVABILITY_RUNNING").Errorf("observability server already running")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.listener, s.http = ln, srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- oops.Code("OBSERVABILITY_SERVE_FAILED").Wrap(err)
		}
	}()
	s.logger.Debug("observability listening", "addr", ln.Addr().String(), "checks", len(s.checks))
	return errCh, nil
}

// Stop shuts the server down. Stopping a server that is not running is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.http = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return oops.Code("OBSERVABILITY_SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// handleReadiness runs every check and reports one line per check. Any
// failure answers 503.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	var body []byte
	for _, c := range s.checks {
		ctx, cancel := context.WithTimeout(r.Context(), s.checkTimeout)
		err := c.check(ctx)
		cancel()
		if err != nil {
			status = http.StatusServiceUnavailable
			s.logger.Warn("readiness check failed", "check", c.name, "error", err)
			body = fmt.Appendf(body, "%s: %v\n", c.name, err)
			continue
		}
		body = fmt.Appendf(body, "%s: ok\n", c.name)
	}
	if len(s.checks) == 0 {
		body = []byte("ok\n")
	}
	writePlain(w, status, string(body))
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
