package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"alarmrelay/internal/config"
)

type mockMetricsCollector struct {
	mu    sync.Mutex
	calls []metricsCall

	flushErr error
	flushed  atomic.Bool
}

type metricsCall struct {
	method, route, status string
	duration              time.Duration
}

func (m *mockMetricsCollector) RecordRequest(method, route, status string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, metricsCall{method, route, status, duration})
}

func (m *mockMetricsCollector) Flush(context.Context) error {
	m.flushed.Store(true)
	return m.flushErr
}

func (m *mockMetricsCollector) snapshot() []metricsCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]metricsCall(nil), m.calls...)
}

type mockHealthProbe struct {
	name     string
	checkErr error
	delay    time.Duration
	panicMsg string
	called   atomic.Bool
}

func (m *mockHealthProbe) Name() string { return m.name }

func (m *mockHealthProbe) Check(ctx context.Context) error {
	m.called.Store(true)
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return m.checkErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{Environment: "local", Build: config.BuildInfo{Version: "test"}}
	srv, err := NewServer(cfg, discardLogger())
	if err != nil {
		t.Fatalf("NewServer returned unexpected error: %v", err)
	}
	return srv
}
