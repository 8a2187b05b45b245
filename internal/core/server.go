// Package core provides the HTTP chassis for krushakd. It builds a chi router
// with the cross-cutting middleware (panic recovery, request IDs, logging,
// CORS, metrics) and the response envelope helpers shared by all handlers.
// Domain routes are mounted by the entry point through V1RouteRegistrars.
package core

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"krushak/internal/config"
)

// MetricsCollector records facade request telemetry.
type MetricsCollector interface {
	// RecordRequest is called once per request with the matched chi route
	// pattern, never the raw path, so session IDs do not become labels.
	RecordRequest(method, route, status string, duration time.Duration)
}

// Server holds the dependencies of the HTTP facade.
type Server struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics MetricsCollector

	// MetricsHandler, when set, is mounted at GET /metrics.
	MetricsHandler http.Handler

	// HealthProbes are run concurrently by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain routes under /v1. Registering through
	// closures keeps core free of handler imports.
	V1RouteRegistrars []func(chi.Router)

	router *chi.Mux
}

// NewServer validates its arguments and returns a Server with an empty
// router. Call MountRoutes once all optional fields are set.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config must not be nil")
	}
	if logger == nil {
		return nil, errors.New("logger must not be nil")
	}
	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests and route inspection.
func (s *Server) Router() *chi.Mux {
	return s.router
}
