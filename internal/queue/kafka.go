package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"alarmrelay/internal/config"
	"alarmrelay/internal/types"
)

// KafkaSinkName labels the Kafka sink in logs and metrics.
const KafkaSinkName = "kafka"

// KafkaWriter is the subset of *kafka.Writer used by the sink.
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ types.AlarmSink = (*KafkaSink)(nil)

// NewKafkaWriter returns a synchronous writer for cfg.Topic. Messages are
// hash-partitioned by key, so one alarm's transitions land on one partition.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		WriteTimeout: cfg.WriteTimeout,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
}

// KafkaSink implements types.AlarmSink by producing each alarm to a topic,
// keyed by alarm name.
type KafkaSink struct {
	writer KafkaWriter
	topic  string
	logger types.Logger
}

// NewKafkaSink creates a sink around writer. cfg.Topic is only used for
// logging; the writer owns the destination.
func NewKafkaSink(writer KafkaWriter, cfg config.KafkaConfig, logger types.Logger) *KafkaSink {
	return &KafkaSink{
		writer: writer,
		topic:  cfg.Topic,
		logger: logger.With("sink", KafkaSinkName),
	}
}

// Name returns KafkaSinkName.
func (s *KafkaSink) Name() string { return KafkaSinkName }

// Send produces alarm and waits for the leader's acknowledgement.
func (s *KafkaSink) Send(ctx context.Context, alarm types.AlarmDetails, opts types.DeliveryOptions) error {
	body, err := encodeAlarm(alarm)
	if err != nil {
		return err
	}

	md := alarmMetadata(ctx, alarm, opts)
	headers := make([]kafka.Header, 0, len(md))
	for _, k := range []string{HeaderAlarmName, HeaderNewState, HeaderRequestID, HeaderSlackChannel} {
		if v, ok := md[k]; ok {
			headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
		}
	}

	msg := kafka.Message{
		Key:     []byte(orderingKey(alarm)),
		Value:   body,
		Headers: headers,
		Time:    time.Now().UTC(),
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.Warn("failed to produce alarm", "alarm", alarm.Name, "topic", s.topic, "error", err)
		return sinkError(KafkaSinkName, "failed to produce alarm", fmt.Errorf("queue: write to %s: %w", s.topic, err))
	}

	s.logger.Info("alarm produced",
		"alarm", alarm.Name,
		"state", alarm.NewState.String(),
		"topic", s.topic,
	)
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

// KafkaHealthProbe checks that some broker answers a metadata request for
// the alarm topic. It satisfies core.HealthProbe.
type KafkaHealthProbe struct {
	brokers []string
	topic   string
	dial    func(ctx context.Context, network, address string) (*kafka.Conn, error)
}

// NewKafkaHealthProbe creates a probe for cfg.
func NewKafkaHealthProbe(cfg config.KafkaConfig) *KafkaHealthProbe {
	return &KafkaHealthProbe{
		brokers: cfg.Brokers,
		topic:   cfg.Topic,
		dial:    kafka.DialContext,
	}
}

// Name returns KafkaSinkName.
func (p *KafkaHealthProbe) Name() string { return KafkaSinkName }

// Check returns nil as soon as one broker lists the topic's partitions.
func (p *KafkaHealthProbe) Check(ctx context.Context) error {
	if len(p.brokers) == 0 {
		return errors.New("kafka: no brokers configured")
	}
	var errs []error
	for _, broker := range p.brokers {
		err := p.checkBroker(ctx, broker)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", broker, err))
	}
	return fmt.Errorf("kafka: %w", errors.Join(errs...))
}

func (p *KafkaHealthProbe) checkBroker(ctx context.Context, broker string) error {
	conn, err := p.dial(ctx, "tcp", broker)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	_, err = conn.ReadPartitions(p.topic)
	return err
}
