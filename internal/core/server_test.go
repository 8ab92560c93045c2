package core

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alarmrelay/internal/config"
)

func TestNewServer(t *testing.T) {
	cfg := &config.Config{Environment: "local"}
	logger := discardLogger()

	srv, err := NewServer(cfg, logger)
	require.NoError(t, err)
	assert.Same(t, cfg, srv.Config)
	assert.Same(t, logger, srv.Logger)
	assert.NotNil(t, srv.Router())
	assert.NotNil(t, srv.Handler())
}

func TestNewServer_NilDependencies(t *testing.T) {
	_, err := NewServer(nil, discardLogger())
	assert.Error(t, err)

	_, err = NewServer(&config.Config{}, nil)
	assert.Error(t, err)
}

func TestShutdown_FlushesMetrics(t *testing.T) {
	srv := newTestServer(t)
	mc := &mockMetricsCollector{}
	srv.Metrics = mc

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.True(t, mc.flushed.Load())
}

func TestShutdown_FlushError(t *testing.T) {
	srv := newTestServer(t)
	flushErr := errors.New("cloudwatch unavailable")
	srv.Metrics = &mockMetricsCollector{flushErr: flushErr}

	err := srv.Shutdown(context.Background())
	assert.ErrorIs(t, err, flushErr)
}

func TestShutdown_NoMetrics(t *testing.T) {
	srv := newTestServer(t)
	assert.NoError(t, srv.Shutdown(context.Background()))
}
