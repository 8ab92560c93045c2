// Package queue forwards decoded alarms to message brokers (SQS, Kafka and
// NATS) for downstream consumers. Every sink sends the same JSON document.
package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"alarmrelay/internal/config"
	"alarmrelay/internal/types"
)

// SQSSinkName labels the SQS sink in logs and metrics.
const SQSSinkName = "sqs"

// SQSAPI is the subset of *sqs.Client used by the sink.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

var _ types.AlarmSink = (*SQSSink)(nil)

// SQSSink implements types.AlarmSink by sending each alarm as a JSON message.
// Message attributes carry the alarm name and new state so consumers can
// filter without decoding the body.
type SQSSink struct {
	client   SQSAPI
	queueURL string
	fifo     bool
	logger   types.Logger
}

// NewSQSSink creates a sink for cfg.URL.
func NewSQSSink(client SQSAPI, cfg config.QueueConfig, logger types.Logger) *SQSSink {
	return &SQSSink{
		client:   client,
		queueURL: cfg.URL,
		fifo:     strings.HasSuffix(cfg.URL, ".fifo"),
		logger:   logger.With("sink", SQSSinkName),
	}
}

// Name returns SQSSinkName.
func (s *SQSSink) Name() string { return SQSSinkName }

// Send enqueues alarm. FIFO queues group messages by alarm name so the
// transitions of one alarm stay ordered.
func (s *SQSSink) Send(ctx context.Context, alarm types.AlarmDetails, opts types.DeliveryOptions) error {
	body, err := encodeAlarm(alarm)
	if err != nil {
		return err
	}

	// alarmMetadata omits empty values, which SQS rejects.
	attrs := make(map[string]sqsTypes.MessageAttributeValue)
	for k, v := range alarmMetadata(ctx, alarm, opts) {
		attrs[k] = stringAttr(v)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          aws.String(s.queueURL),
		MessageBody:       aws.String(string(body)),
		MessageAttributes: attrs,
	}
	if s.fifo {
		input.MessageGroupId = aws.String(orderingKey(alarm))
		input.MessageDeduplicationId = aws.String(uuid.NewString())
	}

	out, err := s.client.SendMessage(ctx, input)
	if err != nil {
		s.logger.Warn("failed to enqueue alarm", "alarm", alarm.Name, "error", err)
		return sinkError(SQSSinkName, "failed to enqueue alarm", fmt.Errorf("queue: send to %s: %w", s.queueURL, err))
	}

	s.logger.Info("alarm enqueued",
		"alarm", alarm.Name,
		"state", alarm.NewState.String(),
		"message_id", aws.ToString(out.MessageId),
	)
	return nil
}

// SQSHealthProbe checks that the queue exists and is reachable. It satisfies
// core.HealthProbe.
type SQSHealthProbe struct {
	client   SQSAPI
	queueURL string
}

// NewSQSHealthProbe creates a probe for cfg.URL.
func NewSQSHealthProbe(client SQSAPI, cfg config.QueueConfig) *SQSHealthProbe {
	return &SQSHealthProbe{client: client, queueURL: cfg.URL}
}

// Name returns SQSSinkName.
func (p *SQSHealthProbe) Name() string { return SQSSinkName }

// Check fetches the queue's message count attribute.
func (p *SQSHealthProbe) Check(ctx context.Context) error {
	_, err := p.client.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(p.queueURL),
		AttributeNames: []sqsTypes.QueueAttributeName{sqsTypes.QueueAttributeNameApproximateNumberOfMessages},
	})
	if err != nil {
		return fmt.Errorf("queue: %w", err)
	}
	return nil
}

func stringAttr(v string) sqsTypes.MessageAttributeValue {
	return sqsTypes.MessageAttributeValue{
		DataType:    aws.String("String"),
		StringValue: aws.String(v),
	}
}
