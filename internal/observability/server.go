// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability serves Prometheus metrics and health probes for a
// running plug.
package observability

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"

	"github.com/holomush/plug/pkg/future"
)

// Probe paths.
const (
	MetricsPath   = "/metrics"
	LivenessPath  = "/healthz/liveness"
	ReadinessPath = "/healthz/readiness"
)

// ReadinessChecker reports whether the plug has settled.
type ReadinessChecker func() bool

// Registration adds collectors to a registry.
type Registration func(reg prometheus.Registerer)

// SettledReadiness reports ready once the future returned by gate settles.
// gate is called on every probe so a fresh future per epoch is observed.
func SettledReadiness[T any](gate func() *future.Future[T]) ReadinessChecker {
	return func() bool {
		return gate().Settled()
	}
}

// Server exposes a private Prometheus registry and the two health probes.
type Server struct {
	addr     string
	registry *prometheus.Registry
	ready    ReadinessChecker

	running  atomic.Bool
	listener net.Listener
	http     *http.Server
}

// NewServer creates a server that listens on addr once started. Use port 0
// to pick a free port. Each registration adds collectors next to the Go and
// process collectors.
func NewServer(addr string, ready ReadinessChecker, registrations ...Registration) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, register := range registrations {
		register(registry)
	}

	return &Server{addr: addr, registry: registry, ready: ready}
}

// Start listens and serves in the background. Serve failures are sent on the
// returned channel, which closes when the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.With("addr", s.addr).Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	srv := &http.Server{
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.listener = listener
	s.http = srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("observability server error", "error", err)
			errCh <- err
		}
	}()

	return errCh, nil
}

// Stop shuts the server down. Stopping a server that is not running is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.http.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown observability server").Wrap(err)
	}
	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc(LivenessPath, func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, true)
	})
	mux.HandleFunc(ReadinessPath, func(w http.ResponseWriter, _ *http.Request) {
		writeProbe(w, s.ready == nil || s.ready())
	})
	return mux
}

func writeProbe(w http.ResponseWriter, ok bool) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	body := "ok\n"
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		body = "not ready\n"
	}
	//nolint:errcheck // client may have gone away
	w.Write([]byte(body))
}
