// Package main is the entry point for the AlarmRelay Lambda function.
//
// The function is subscribed to the alarm topic directly (SNS -> Lambda), so
// there is no subscription handshake and no HTTP envelope: each record's
// Message is the CloudWatch alarm document.
//
// Per record:
//  1. Check the topic against SNS_ALLOWED_TOPIC_ARNS.
//  2. Decode the alarm document.
//  3. Dispatch to every configured sink.
//
// Undecodable or disallowed records are logged and skipped since a retry
// cannot fix them. Delivery failures fail the invocation so Lambda's async
// retry policy redelivers the event. Buffered metrics are flushed before the
// invocation returns.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"

	"alarmrelay/internal/app"
	"alarmrelay/internal/config"
	"alarmrelay/internal/metrics"
	"alarmrelay/internal/sns"
	"alarmrelay/internal/types"
)

// notificationLabel is the message-type label used for Lambda records in
// metrics; SNS only invokes Lambda for notifications.
var notificationLabel = types.MessageTypeNotification.String()

// AlarmDispatcher delivers one decoded alarm.
type AlarmDispatcher interface {
	Dispatch(ctx context.Context, alarm types.AlarmDetails, opts types.DeliveryOptions) error
}

// Flusher publishes buffered telemetry.
type Flusher interface {
	Flush(ctx context.Context) error
}

// MessageRecorder receives one observation per record.
type MessageRecorder interface {
	RecordMessage(messageType, result string)
}

// Handler holds the dependencies for the Lambda handler.
type Handler struct {
	dispatcher AlarmDispatcher
	recorder   MessageRecorder
	flusher    Flusher
	snsCfg     config.SNSConfig
	logger     *slog.Logger
}

// Handle processes every record of an SNS event.
func (h *Handler) Handle(ctx context.Context, event events.SNSEvent) error {
	logger := h.logger
	if lc, ok := lambdacontext.FromContext(ctx); ok {
		logger = logger.With("aws_request_id", lc.AwsRequestID)
		ctx = types.WithRequestID(ctx, lc.AwsRequestID)
	}
	ctx = types.WithLogger(ctx, types.NewSlogAdapter(logger))

	var errs []error
	for _, record := range event.Records {
		if err := h.handleRecord(ctx, logger, record.SNS); err != nil {
			errs = append(errs, err)
		}
	}

	if err := h.flusher.Flush(ctx); err != nil {
		logger.Warn("failed to flush metrics", "error", err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%d of %d records failed: %w", len(errs), len(event.Records), errors.Join(errs...))
	}
	return nil
}

func (h *Handler) handleRecord(ctx context.Context, logger *slog.Logger, msg events.SNSEntity) error {
	logger = logger.With("message_id", msg.MessageID, "topic_arn", msg.TopicArn)

	if !h.snsCfg.TopicAllowed(msg.TopicArn) {
		h.recorder.RecordMessage(notificationLabel, metrics.ResultRejected)
		logger.Warn("record skipped: topic not allowed")
		return nil
	}

	alarm, err := sns.DecodeAlarmDetails(msg.Message)
	if err != nil {
		h.recorder.RecordMessage(notificationLabel, metrics.ResultRejected)
		appErr := sns.ToAppError(err)
		logger.Warn("record skipped: undecodable alarm", "code", string(appErr.Code), "error", err.Error())
		return nil
	}

	if err := h.dispatcher.Dispatch(ctx, alarm, types.DeliveryOptions{}); err != nil {
		h.recorder.RecordMessage(notificationLabel, metrics.ResultFailure)
		return fmt.Errorf("message %s: %w", msg.MessageID, err)
	}
	h.recorder.RecordMessage(notificationLabel, metrics.ResultSuccess)
	return nil
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading configuration: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	logger.Info("alarmrelay lambda initializing (cold start)",
		"version", cfg.Build.Version,
		"chat_enabled", cfg.Chat.Enabled(),
		"queue_enabled", cfg.Queue.Enabled(),
		"kafka_enabled", cfg.Kafka.Enabled(),
		"nats_enabled", cfg.NATS.Enabled(),
	)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to wire application", "error", err)
		os.Exit(1)
	}

	h := &Handler{
		dispatcher: a.Dispatcher,
		recorder:   a.Metrics,
		flusher:    a,
		snsCfg:     cfg.SNS,
		logger:     logger,
	}
	lambda.Start(h.Handle)
}

func parseLevel(level string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
