package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alarmrelay/internal/types"
)

func TestMountRoutes_Ping(t *testing.T) {
	srv := newTestServer(t)
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestMountRoutes_NotFound(t *testing.T) {
	srv := newTestServer(t)
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set("X-Request-Id", "req-123")
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeNotFoundRoute), resp.Error.Code)
	assert.Equal(t, "req-123", resp.Error.RequestID)
	assert.Equal(t, "/nope", resp.Error.Details["path"])
}

func TestMountRoutes_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ping", nil))

	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeMethodNotAllowed), resp.Error.Code)
}

func TestMountRoutes_Registrars(t *testing.T) {
	srv := newTestServer(t)
	srv.RouteRegistrars = append(srv.RouteRegistrars, func(r chi.Router) {
		r.Post("/notify", func(w http.ResponseWriter, r *http.Request) {
			JSON(w, r, http.StatusAccepted, map[string]string{"request_id": types.GetRequestID(r.Context())})
		})
	})
	srv.MountRoutes()

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/notify", strings.NewReader("{}")))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), rec.Header().Get("X-Request-Id"))
}

func TestMountRoutes_MetricsEndpoint(t *testing.T) {
	t.Run("mounted when handler set", func(t *testing.T) {
		srv := newTestServer(t)
		srv.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		})
		srv.MountRoutes()

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "# metrics", rec.Body.String())
	})

	t.Run("absent otherwise", func(t *testing.T) {
		srv := newTestServer(t)
		srv.MountRoutes()

		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMountRoutes_MetricsUseRoutePattern(t *testing.T) {
	srv := newTestServer(t)
	mc := &mockMetricsCollector{}
	srv.Metrics = mc
	srv.MountRoutes()

	for _, path := range []string{"/ping", "/ping?x=1", "/missing/abc"} {
		srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	calls := mc.snapshot()
	require.Len(t, calls, 3)
	assert.Equal(t, "/ping", calls[0].route)
	assert.Equal(t, "/ping", calls[1].route)
	assert.Equal(t, "200", calls[0].status)
	assert.Equal(t, "404", calls[2].status)
	assert.NotEqual(t, "/missing/abc", calls[2].route)
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = types.GetRequestID(r.Context())
	}))

	t.Run("propagates incoming", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", "abc-123")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
	})

	t.Run("generates uuid", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
		assert.Equal(t, seen, rec.Header().Get("X-Request-Id"))
	})

	t.Run("replaces oversized", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-Id", strings.Repeat("x", 500))
		handler.ServeHTTP(httptest.NewRecorder(), req)

		assert.Len(t, seen, 36)
	})
}

func TestContextTimeoutMiddleware(t *testing.T) {
	var deadline time.Time
	var ok bool
	handler := ContextTimeoutMiddleware(time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestRequestTimeout_FromConfig(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, defaultRequestTimeout, srv.requestTimeout())

	srv.Config.Server.RequestTimeout = 5 * time.Second
	assert.Equal(t, 5*time.Second, srv.requestTimeout())
}
