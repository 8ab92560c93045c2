package types

import (
	"context"
	"log/slog"
	"time"
)

// AlarmSink receives a fully decoded alarm. Sinks own their transport; they
// never parse SNS payloads.
type AlarmSink interface {
	// Name identifies the sink in logs and metrics (e.g. "slack", "sqs").
	Name() string

	// Send delivers one alarm. It must honour ctx cancellation.
	Send(ctx context.Context, alarm AlarmDetails, opts DeliveryOptions) error
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// Logger defines the structured logging interface used throughout the service.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// SlogAdapter wraps *slog.Logger to implement Logger. slog.Logger.With
// returns *slog.Logger rather than Logger, so an adapter is necessary.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter adapts l to the Logger interface.
func NewSlogAdapter(l *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: l}
}

func (a *SlogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *SlogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *SlogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *SlogAdapter) With(args ...any) Logger {
	return &SlogAdapter{logger: a.logger.With(args...)}
}

// NopLogger discards everything. Constructors fall back to it when given a
// nil Logger.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (n NopLogger) With(...any) Logger { return n }
