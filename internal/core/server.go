// Package core provides the HTTP chassis for alarmrelay. It creates a chi
// router and enforces cross-cutting concerns (panic recovery, request IDs,
// logging, metrics and error rendering) before requests reach the
// domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"alarmrelay/internal/config"
)

// MetricsCollector records HTTP request telemetry.
type MetricsCollector interface {
	RecordRequest(method, route, status string, duration time.Duration)
}

// Flusher is implemented by collectors that buffer datapoints and must be
// drained on shutdown.
type Flusher interface {
	Flush(ctx context.Context) error
}

// RouteRegistrar mounts a group of domain routes on the root router. Handler
// packages supply registrars from main so core does not import them.
type RouteRegistrar func(r chi.Router)

// Server encapsulates all dependencies of the HTTP surface.
type Server struct {
	Config  *config.Config
	Logger  *slog.Logger
	Metrics MetricsCollector

	// MetricsHandler, when set, is mounted at GET /metrics.
	MetricsHandler http.Handler

	HealthProbes    []HealthProbe
	RouteRegistrars []RouteRegistrar

	router *chi.Mux
}

// NewServer validates the mandatory dependencies and prepares an empty
// router. Callers populate the optional fields and then call MountRoutes.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config: cfg,
		Logger: logger,
		router: chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown drains buffered metrics. The HTTP listener itself is shut down by
// the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	if f, ok := s.Metrics.(Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			s.Logger.Error("error flushing metrics", "error", err)
			return fmt.Errorf("flushing metrics: %w", err)
		}
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
