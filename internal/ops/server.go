// Logkeep - Durable Persistence and Recovery for Logging Pipelines
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/logkeep

// Package ops serves the operational HTTP endpoint of logkeepd: health
// probes, pending-queue statistics, and Prometheus metrics. It is an
// internal surface for monitoring, not a data API.
package ops

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/logkeep/internal/diag"
	"github.com/tomtom215/logkeep/internal/durable"
	"github.com/tomtom215/logkeep/internal/protect"
)

// Server is the ops HTTP endpoint. It implements suture.Service; Serve
// blocks until the context is canceled, then shuts down gracefully.
type Server struct {
	addr    string
	timeout time.Duration
	store   *durable.Store
	guard   *protect.Guard
	rep     *diag.Reporter
}

// NewServer wires the endpoint to the durable store and, when delivery
// protection is enabled, the pending-message guard. guard may be nil.
func NewServer(addr string, timeout time.Duration, store *durable.Store, guard *protect.Guard, rep *diag.Reporter) *Server {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		addr:    addr,
		timeout: timeout,
		store:   store,
		guard:   guard,
		rep:     rep.Component("ops"),
	}
}

// String implements fmt.Stringer for supervision tree logs.
func (s *Server) String() string { return "ops-http" }

// Router builds the chi handler. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(s.timeout))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

// Serve runs the HTTP server until ctx is canceled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.rep.Info().Str("addr", s.addr).Msg("ops endpoint listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.rep.Warn().Err(err).Msg("ops endpoint shutdown incomplete")
		}
		<-errCh
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("ops endpoint: %w", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statsResponse is the /stats payload.
type statsResponse struct {
	HeldLocks       int                           `json:"held_locks"`
	DroppedDiag     int64                         `json:"dropped_diagnostics"`
	PendingMessages map[string]protect.QueueStats `json:"pending_messages,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	resp := statsResponse{
		HeldLocks:   s.store.LockCount(),
		DroppedDiag: s.rep.Dropped(),
	}
	if s.guard != nil {
		resp.PendingMessages = s.guard.Stats()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.rep.Warn().Err(err).Msg("cannot encode ops response")
	}
}
