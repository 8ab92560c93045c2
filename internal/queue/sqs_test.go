package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alarmrelay/internal/config"
	"alarmrelay/internal/types"
)

// mockSQS captures calls for assertions.
type mockSQS struct {
	sends    []*sqs.SendMessageInput
	attrs    []*sqs.GetQueueAttributesInput
	sendErr  error
	attrsErr error
}

func (m *mockSQS) SendMessage(_ context.Context, params *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.sends = append(m.sends, params)
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	return &sqs.SendMessageOutput{MessageId: aws.String("msg-1")}, nil
}

func (m *mockSQS) GetQueueAttributes(_ context.Context, params *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	m.attrs = append(m.attrs, params)
	if m.attrsErr != nil {
		return nil, m.attrsErr
	}
	return &sqs.GetQueueAttributesOutput{}, nil
}

const (
	testQueueURL = "https://sqs.us-east-1.amazonaws.com/123456789012/alarms"
	testFIFOURL  = "https://sqs.us-east-1.amazonaws.com/123456789012/alarms.fifo"
)

func testLogger() types.Logger {
	return types.NewSlogAdapter(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testAlarm() types.AlarmDetails {
	return types.AlarmDetails{
		Name:          "high-cpu",
		NewState:      types.AlarmStateAlarm,
		PreviousState: types.AlarmStateOK,
		Reason:        "Threshold Crossed",
		Timestamp:     "2024-05-01T12:00:00.000+0000",
		Trigger: types.AlarmTrigger{
			MetricName:         "CPUUtilization",
			Namespace:          "AWS/EC2",
			Statistic:          "Average",
			ComparisonOperator: "GreaterThanThreshold",
			Period:             300,
			EvaluationPeriods:  2,
			Threshold:          80,
		},
	}
}

func TestSQSSink_Send(t *testing.T) {
	mock := &mockSQS{}
	sink := NewSQSSink(mock, config.QueueConfig{URL: testQueueURL}, testLogger())

	ctx := types.WithRequestID(context.Background(), "req-1")
	require.NoError(t, sink.Send(ctx, testAlarm(), types.DeliveryOptions{SlackChannel: "#ops"}))

	require.Len(t, mock.sends, 1)
	in := mock.sends[0]
	assert.Equal(t, testQueueURL, aws.ToString(in.QueueUrl))
	assert.Nil(t, in.MessageGroupId)
	assert.Nil(t, in.MessageDeduplicationId)

	assert.Equal(t, "high-cpu", aws.ToString(in.MessageAttributes["AlarmName"].StringValue))
	assert.Equal(t, "ALARM", aws.ToString(in.MessageAttributes["NewState"].StringValue))
	assert.Equal(t, "req-1", aws.ToString(in.MessageAttributes["RequestId"].StringValue))
	assert.Equal(t, "#ops", aws.ToString(in.MessageAttributes["SlackChannel"].StringValue))
	assert.Equal(t, "String", aws.ToString(in.MessageAttributes["NewState"].DataType))

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(in.MessageBody)), &body))
	assert.Equal(t, "high-cpu", body["AlarmName"])
	assert.Equal(t, "ALARM", body["NewStateValue"])
	assert.Equal(t, "OK", body["OldStateValue"])
}

func TestSQSSink_Send_OmitsEmptyAttributes(t *testing.T) {
	mock := &mockSQS{}
	sink := NewSQSSink(mock, config.QueueConfig{URL: testQueueURL}, testLogger())

	alarm := testAlarm()
	alarm.Name = ""
	require.NoError(t, sink.Send(context.Background(), alarm, types.DeliveryOptions{}))

	attrs := mock.sends[0].MessageAttributes
	assert.NotContains(t, attrs, "AlarmName")
	assert.NotContains(t, attrs, "RequestId")
	assert.NotContains(t, attrs, "SlackChannel")
	assert.Contains(t, attrs, "NewState")
}

func TestSQSSink_Send_FIFO(t *testing.T) {
	mock := &mockSQS{}
	sink := NewSQSSink(mock, config.QueueConfig{URL: testFIFOURL}, testLogger())

	require.NoError(t, sink.Send(context.Background(), testAlarm(), types.DeliveryOptions{}))
	require.NoError(t, sink.Send(context.Background(), testAlarm(), types.DeliveryOptions{}))

	require.Len(t, mock.sends, 2)
	assert.Equal(t, "high-cpu", aws.ToString(mock.sends[0].MessageGroupId))
	assert.NotEmpty(t, aws.ToString(mock.sends[0].MessageDeduplicationId))
	assert.NotEqual(t,
		aws.ToString(mock.sends[0].MessageDeduplicationId),
		aws.ToString(mock.sends[1].MessageDeduplicationId))
}

func TestSQSSink_Send_Error(t *testing.T) {
	mock := &mockSQS{sendErr: &sqsTypes.QueueDoesNotExist{Message: aws.String("gone")}}
	sink := NewSQSSink(mock, config.QueueConfig{URL: testQueueURL}, testLogger())

	err := sink.Send(context.Background(), testAlarm(), types.DeliveryOptions{})

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamSinkFailed, appErr.Code)
	assert.Equal(t, SQSSinkName, appErr.Details["sink"])

	var notExist *sqsTypes.QueueDoesNotExist
	assert.True(t, errors.As(err, &notExist))
}

func TestSQSSink_Send_InvalidState(t *testing.T) {
	mock := &mockSQS{}
	sink := NewSQSSink(mock, config.QueueConfig{URL: testQueueURL}, testLogger())

	alarm := testAlarm()
	alarm.PreviousState = 0

	err := sink.Send(context.Background(), alarm, types.DeliveryOptions{})
	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalUnexpected, appErr.Code)
	assert.Empty(t, mock.sends)
}

func TestSQSSink_Name(t *testing.T) {
	assert.Equal(t, "sqs", NewSQSSink(&mockSQS{}, config.QueueConfig{URL: testQueueURL}, testLogger()).Name())
}

func TestSQSHealthProbe(t *testing.T) {
	mock := &mockSQS{}
	probe := NewSQSHealthProbe(mock, config.QueueConfig{URL: testQueueURL})

	assert.Equal(t, "sqs", probe.Name())
	require.NoError(t, probe.Check(context.Background()))
	require.Len(t, mock.attrs, 1)
	assert.Equal(t, testQueueURL, aws.ToString(mock.attrs[0].QueueUrl))

	mock.attrsErr = errors.New("access denied")
	assert.ErrorContains(t, probe.Check(context.Background()), "access denied")
}
