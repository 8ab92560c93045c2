package queue

import (
	"context"
	"encoding/json"

	"alarmrelay/internal/types"
)

// Metadata keys shared by every broker sink. SQS carries them as message
// attributes, Kafka and NATS as headers.
const (
	HeaderAlarmName    = "AlarmName"
	HeaderNewState     = "NewState"
	HeaderRequestID    = "RequestId"
	HeaderSlackChannel = "SlackChannel"
)

// encodeAlarm returns the JSON body forwarded to brokers.
func encodeAlarm(alarm types.AlarmDetails) ([]byte, error) {
	body, err := json.Marshal(alarm)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal alarm for queue", err)
	}
	return body, nil
}

// alarmMetadata returns the non-empty metadata values for alarm.
func alarmMetadata(ctx context.Context, alarm types.AlarmDetails, opts types.DeliveryOptions) map[string]string {
	md := map[string]string{HeaderNewState: alarm.NewState.String()}
	if alarm.Name != "" {
		md[HeaderAlarmName] = alarm.Name
	}
	if reqID := types.GetRequestID(ctx); reqID != "" {
		md[HeaderRequestID] = reqID
	}
	if opts.SlackChannel != "" {
		md[HeaderSlackChannel] = opts.SlackChannel
	}
	return md
}

// orderingKey groups the transitions of one alarm.
func orderingKey(alarm types.AlarmDetails) string {
	if alarm.Name == "" {
		return "unnamed"
	}
	return alarm.Name
}

// sinkError wraps a broker failure as an upstream_sink_failed AppError.
func sinkError(sink, msg string, err error) error {
	return types.NewAppErrorWithDetails(types.ErrCodeUpstreamSinkFailed, msg, err,
		map[string]any{"sink": sink})
}
