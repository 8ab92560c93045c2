package core

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"alarmrelay/internal/types"
)

// defaultRequestTimeout applies when the configuration leaves the request
// timeout unset.
const defaultRequestTimeout = 30 * time.Second

// requestIDHeader carries the correlation ID in both directions.
const requestIDHeader = "X-Request-Id"

// defaultRedactedHeaders lists header names whose values are masked in request
// logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
}

// MountRoutes registers the middleware chain, the domain routes and the
// operational endpoints.
//
// Middleware order:
//  1. Recoverer       - outermost so every panic is caught.
//  2. ContextTimeout  - bounds the whole request, including sink fan-out.
//  3. RequestID       - correlation ID for logs and error bodies.
//  4. RequestLogger   - one structured line per request.
//  5. Metrics         - latency and count per route pattern.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(s.MetricsMiddleware)

	for _, registrar := range s.RouteRegistrars {
		registrar(s.router)
	}

	s.router.Get("/ping", HandlePing)
	s.router.Get("/health", s.HandleHealth)
	if s.MetricsHandler != nil {
		s.router.Method(http.MethodGet, "/metrics", s.MetricsHandler)
	}

	s.router.NotFound(HandleNotFound)
	s.router.MethodNotAllowed(HandleMethodNotAllowed)
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

// HandlePing is a liveness probe that answers with a plain "OK".
func HandlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// HandleNotFound renders unknown routes with the standard error envelope.
func HandleNotFound(w http.ResponseWriter, r *http.Request) {
	Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeNotFoundRoute,
		"no route matches the request", nil,
		map[string]any{"method": r.Method, "path": r.URL.Path}))
}

// HandleMethodNotAllowed renders a known path requested with the wrong method.
func HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeMethodNotAllowed,
		"method not allowed for this route", nil,
		map[string]any{"method": r.Method, "path": r.URL.Path}))
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware propagates an incoming X-Request-Id or generates a new
// UUID, stores it in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set(requestIDHeader, requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
