package metrics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alarmrelay/internal/types"
)

// --- Prometheus ---

func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, cv.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	metric, ok := hv.WithLabelValues(labels...).(prometheus.Metric)
	require.True(t, ok)
	require.NoError(t, metric.Write(m))
	return m.GetHistogram().GetSampleCount()
}

func TestPrometheus_Records(t *testing.T) {
	p := NewPrometheus("AlarmRelay")

	p.RecordRequest("POST", "/notify", "200", 20*time.Millisecond)
	p.RecordRequest("POST", "/notify", "200", 30*time.Millisecond)
	p.RecordMessage("Notification", ResultSuccess)
	p.RecordConfirmation(ResultFailure, time.Second)
	p.RecordDelivery("slack", ResultSuccess, 100*time.Millisecond)
	p.RecordDelivery("sqs", ResultFailure, 5*time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, p.RequestsTotal, "POST", "/notify", "200"))
	assert.Equal(t, uint64(2), histogramCount(t, p.RequestDuration, "POST", "/notify"))
	assert.Equal(t, 1.0, counterValue(t, p.MessagesTotal, "Notification", ResultSuccess))
	assert.Equal(t, 1.0, counterValue(t, p.ConfirmationsTotal, ResultFailure))
	assert.Equal(t, 1.0, counterValue(t, p.DeliveriesTotal, "slack", ResultSuccess))
	assert.Equal(t, 1.0, counterValue(t, p.DeliveriesTotal, "sqs", ResultFailure))
	assert.Equal(t, uint64(1), histogramCount(t, p.DeliveryDuration, "sqs"))
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus("AlarmRelay")
	p.RecordMessage("SubscriptionConfirmation", ResultSuccess)

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `alarmrelay_sns_messages_total{result="success",type="SubscriptionConfirmation"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestPrometheus_InstancesAreIndependent(t *testing.T) {
	a := NewPrometheus("AlarmRelay")
	b := NewPrometheus("AlarmRelay")

	a.RecordMessage("Notification", ResultSuccess)
	assert.Equal(t, 0.0, counterValue(t, b.MessagesTotal, "Notification", ResultSuccess))
}

// --- CloudWatch ---

type mockCloudWatch struct {
	mu    sync.Mutex
	calls []*cloudwatch.PutMetricDataInput
	err   error
}

func (m *mockCloudWatch) PutMetricData(_ context.Context, in *cloudwatch.PutMetricDataInput, _ ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, in)
	if m.err != nil {
		return nil, m.err
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func testLogger() types.Logger {
	return types.NewSlogAdapter(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func dimMap(ds []cwtypes.Dimension) map[string]string {
	out := make(map[string]string, len(ds))
	for _, d := range ds {
		out[aws.ToString(d.Name)] = aws.ToString(d.Value)
	}
	return out
}

func TestCloudWatch_BuffersUntilFlush(t *testing.T) {
	mock := &mockCloudWatch{}
	cw := NewCloudWatch(mock, "AlarmRelay", "alarmrelay", testLogger())
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	cw.SetClock(fixedClock(now))

	cw.RecordDelivery("slack", ResultSuccess, 250*time.Millisecond)
	cw.RecordMessage("Notification", ResultSuccess)

	assert.Empty(t, mock.calls)
	assert.Equal(t, 3, cw.Buffered())

	require.NoError(t, cw.Flush(context.Background()))
	require.Len(t, mock.calls, 1)
	assert.Zero(t, cw.Buffered())

	in := mock.calls[0]
	assert.Equal(t, "AlarmRelay", aws.ToString(in.Namespace))
	require.Len(t, in.MetricData, 3)

	delivery := in.MetricData[0]
	assert.Equal(t, MetricDelivery, aws.ToString(delivery.MetricName))
	assert.Equal(t, 1.0, aws.ToFloat64(delivery.Value))
	assert.Equal(t, cwtypes.StandardUnitCount, delivery.Unit)
	assert.Equal(t, now, aws.ToTime(delivery.Timestamp))
	assert.Equal(t, map[string]string{"Service": "alarmrelay", "Sink": "slack", "Result": "success"}, dimMap(delivery.Dimensions))

	latency := in.MetricData[1]
	assert.Equal(t, MetricDeliveryLatency, aws.ToString(latency.MetricName))
	assert.Equal(t, 250.0, aws.ToFloat64(latency.Value))
	assert.Equal(t, cwtypes.StandardUnitMilliseconds, latency.Unit)
}

func TestCloudWatch_RequestDimensions(t *testing.T) {
	mock := &mockCloudWatch{}
	cw := NewCloudWatch(mock, "AlarmRelay", "alarmrelay", testLogger())

	cw.RecordRequest("POST", "/notify", "502", time.Second)
	cw.RecordConfirmation(ResultSuccess, 40*time.Millisecond)
	require.NoError(t, cw.Flush(context.Background()))

	data := mock.calls[0].MetricData
	require.Len(t, data, 4)
	assert.Equal(t, "502", dimMap(data[0].Dimensions)["Status"])
	assert.NotContains(t, dimMap(data[1].Dimensions), "Status")
	assert.Equal(t, "success", dimMap(data[2].Dimensions)["Result"])
	assert.Equal(t, map[string]string{"Service": "alarmrelay"}, dimMap(data[3].Dimensions))
}

func TestCloudWatch_FlushBatches(t *testing.T) {
	mock := &mockCloudWatch{}
	cw := NewCloudWatch(mock, "AlarmRelay", "alarmrelay", testLogger())

	for i := 0; i < 1200; i++ {
		cw.RecordMessage("Notification", ResultSuccess)
	}
	require.NoError(t, cw.Flush(context.Background()))

	require.Len(t, mock.calls, 2)
	assert.Len(t, mock.calls[0].MetricData, 1000)
	assert.Len(t, mock.calls[1].MetricData, 200)
}

func TestCloudWatch_FlushEmpty(t *testing.T) {
	mock := &mockCloudWatch{}
	cw := NewCloudWatch(mock, "AlarmRelay", "alarmrelay", testLogger())

	require.NoError(t, cw.Flush(context.Background()))
	assert.Empty(t, mock.calls)
}

func TestCloudWatch_FlushError(t *testing.T) {
	mock := &mockCloudWatch{err: errors.New("throttled")}
	cw := NewCloudWatch(mock, "AlarmRelay", "alarmrelay", testLogger())

	cw.RecordMessage("Notification", ResultSuccess)
	err := cw.Flush(context.Background())
	assert.ErrorContains(t, err, "throttled")
	assert.Zero(t, cw.Buffered(), "failed datums are discarded")
}

func TestCloudWatch_BufferBounded(t *testing.T) {
	mock := &mockCloudWatch{}
	cw := NewCloudWatch(mock, "AlarmRelay", "alarmrelay", testLogger())

	for i := 0; i < maxBuffered+10; i++ {
		cw.RecordMessage("Notification", ResultSuccess)
	}
	assert.Equal(t, maxBuffered, cw.Buffered())
}

func TestCloudWatch_Run(t *testing.T) {
	mock := &mockCloudWatch{}
	cw := NewCloudWatch(mock, "AlarmRelay", "alarmrelay", testLogger())
	cw.RecordMessage("Notification", ResultSuccess)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		cw.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return cw.Buffered() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	mock.mu.Lock()
	defer mock.mu.Unlock()
	assert.NotEmpty(t, mock.calls)
}

// --- Multi / Noop ---

type countingCollector struct {
	Noop
	requests, messages, confirmations, deliveries int
	flushed                                       bool
	flushErr                                      error
}

func (c *countingCollector) RecordRequest(string, string, string, time.Duration) { c.requests++ }
func (c *countingCollector) RecordMessage(string, string)                        { c.messages++ }
func (c *countingCollector) RecordConfirmation(string, time.Duration)             { c.confirmations++ }
func (c *countingCollector) RecordDelivery(string, string, time.Duration)         { c.deliveries++ }
func (c *countingCollector) Flush(context.Context) error {
	c.flushed = true
	return c.flushErr
}

func TestMulti(t *testing.T) {
	a := &countingCollector{}
	b := &countingCollector{flushErr: errors.New("boom")}
	m := Multi{a, b, Noop{}}

	m.RecordRequest("GET", "/ping", "200", time.Millisecond)
	m.RecordMessage("Notification", ResultSuccess)
	m.RecordConfirmation(ResultSuccess, time.Millisecond)
	m.RecordDelivery("slack", ResultSuccess, time.Millisecond)

	for _, c := range []*countingCollector{a, b} {
		assert.Equal(t, 1, c.requests)
		assert.Equal(t, 1, c.messages)
		assert.Equal(t, 1, c.confirmations)
		assert.Equal(t, 1, c.deliveries)
	}

	err := m.Flush(context.Background())
	assert.ErrorContains(t, err, "boom")
	assert.True(t, a.flushed)
	assert.True(t, b.flushed)
}

func TestResultOf(t *testing.T) {
	assert.Equal(t, ResultSuccess, ResultOf(nil))
	assert.Equal(t, ResultFailure, ResultOf(errors.New("x")))
}
