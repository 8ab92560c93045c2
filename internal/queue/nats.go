package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"alarmrelay/internal/config"
	"alarmrelay/internal/types"
)

// NATSSinkName labels the NATS sink in logs and metrics.
const NATSSinkName = "nats"

// NATSConn is the subset of *nats.Conn used by the sink.
type NATSConn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	IsConnected() bool
	Drain() error
}

var _ types.AlarmSink = (*NATSSink)(nil)

// ConnectNATS dials cfg.URL. The connection keeps retrying in the background
// when the server is unavailable at startup, and reconnects forever after.
func ConnectNATS(cfg config.NATSConfig, name string, logger types.Logger) (*nats.Conn, error) {
	logger = logger.With("sink", NATSSinkName)
	nc, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrlRedacted())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("queue: connect to nats: %w", err)
	}
	return nc, nil
}

// NATSSink implements types.AlarmSink by publishing each alarm to a subject.
// Metadata travels as message headers.
type NATSSink struct {
	conn         NATSConn
	subject      string
	flushTimeout time.Duration
	logger       types.Logger
}

// NewNATSSink creates a sink publishing to cfg.Subject over conn.
func NewNATSSink(conn NATSConn, cfg config.NATSConfig, logger types.Logger) *NATSSink {
	timeout := cfg.FlushTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NATSSink{
		conn:         conn,
		subject:      cfg.Subject,
		flushTimeout: timeout,
		logger:       logger.With("sink", NATSSinkName),
	}
}

// Name returns NATSSinkName.
func (s *NATSSink) Name() string { return NATSSinkName }

// Send publishes alarm and flushes so a dead connection surfaces as an error
// instead of a silently buffered message.
func (s *NATSSink) Send(ctx context.Context, alarm types.AlarmDetails, opts types.DeliveryOptions) error {
	body, err := encodeAlarm(alarm)
	if err != nil {
		return err
	}

	msg := nats.NewMsg(s.subject)
	msg.Data = body
	for k, v := range alarmMetadata(ctx, alarm, opts) {
		msg.Header.Set(k, v)
	}

	if err := s.conn.PublishMsg(msg); err != nil {
		s.logger.Warn("failed to publish alarm", "alarm", alarm.Name, "subject", s.subject, "error", err)
		return sinkError(NATSSinkName, "failed to publish alarm", fmt.Errorf("queue: publish to %s: %w", s.subject, err))
	}

	// FlushWithContext requires a deadline.
	flushCtx, cancel := context.WithTimeout(ctx, s.flushTimeout)
	defer cancel()
	if err := s.conn.FlushWithContext(flushCtx); err != nil {
		s.logger.Warn("failed to flush alarm", "alarm", alarm.Name, "subject", s.subject, "error", err)
		return sinkError(NATSSinkName, "failed to publish alarm", fmt.Errorf("queue: flush %s: %w", s.subject, err))
	}

	s.logger.Info("alarm published",
		"alarm", alarm.Name,
		"state", alarm.NewState.String(),
		"subject", s.subject,
	)
	return nil
}

// Check reports whether the connection is currently up. It lets the sink
// serve as its own core.HealthProbe.
func (s *NATSSink) Check(context.Context) error {
	if !s.conn.IsConnected() {
		return errors.New("nats: not connected")
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
