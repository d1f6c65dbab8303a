// Toolagent - Endpoint Tool Installation and Supervision Agent
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/toolagent

// Package api serves the agent's local HTTP endpoint using the chi router:
//
//	GET /healthz   process is alive
//	GET /readyz    command bus is connected (503 otherwise)
//	GET /metrics   Prometheus metrics
//	GET /v1/tools  installed-tool records joined with supervision state
//
// The endpoint binds to loopback by default and carries no authentication.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tomtom215/toolagent/internal/logging"
	"github.com/tomtom215/toolagent/internal/models"
	"github.com/tomtom215/toolagent/internal/runner"
)

// ToolLister lists installed-tool records. *store.Store satisfies it.
type ToolLister interface {
	List(ctx context.Context) ([]models.InstalledTool, error)
}

// SupervisionReporter reports per-tool supervision state.
// *runner.Manager satisfies it.
type SupervisionReporter interface {
	Status() []runner.ToolState
}

// BusChecker reports command bus connectivity.
// *bus.ConnectionManager satisfies it.
type BusChecker interface {
	IsConnected() bool
}

// CircuitReporter reports the fetch circuit breaker state.
// *fetch.Client satisfies it.
type CircuitReporter interface {
	State() string
}

// Dependencies are the components the handlers read from.
type Dependencies struct {
	Tools       ToolLister
	Supervision SupervisionReporter
	Bus         BusChecker
	Fetch       CircuitReporter
	MachineID   string
	Version     string
}

// Handler holds the dependencies of the HTTP handlers.
type Handler struct {
	deps      Dependencies
	logger    zerolog.Logger
	startTime time.Time
}

// NewRouter builds the chi router for the local endpoint.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRouter(deps Dependencies, logger zerolog.Logger) http.Handler {
	h := &Handler{
		deps:      deps,
		logger:    logging.Component(logger, "api"),
		startTime: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(requestLogging(h.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(prometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed")
	})

	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/tools", h.Tools)
	})

	return r
}
