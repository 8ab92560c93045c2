package metrics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"alarmrelay/internal/types"
)

// CloudWatch metric names and dimensions.
const (
	MetricRequest          = "Request"
	MetricRequestLatency   = "RequestLatency"
	MetricMessage          = "Message"
	MetricConfirmation     = "Confirmation"
	MetricConfirmationTime = "ConfirmationLatency"
	MetricDelivery         = "Delivery"
	MetricDeliveryLatency  = "DeliveryLatency"

	DimMethod  = "Method"
	DimRoute   = "Route"
	DimStatus  = "Status"
	DimType    = "MessageType"
	DimResult  = "Result"
	DimSink    = "Sink"
	DimService = "Service"
)

const (
	// maxDatumsPerPut is the PutMetricData per-request limit.
	maxDatumsPerPut = 1000
	// maxBuffered bounds memory when CloudWatch is unreachable; older
	// datapoints are dropped first.
	maxBuffered = 20 * maxDatumsPerPut
)

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

var _ Collector = (*CloudWatch)(nil)

// CloudWatch implements Collector by buffering datums in memory. Nothing is
// sent until Flush, which the server calls periodically (see Run) and on
// shutdown, and the Lambda handler calls at the end of every invocation.
type CloudWatch struct {
	client    CloudWatchClient
	namespace string
	service   string
	clock     types.Clock
	logger    types.Logger

	mu      sync.Mutex
	buf     []cwtypes.MetricDatum
	dropped int
}

// NewCloudWatch creates a buffered publisher for namespace. Every datum
// carries a Service dimension set to service.
func NewCloudWatch(client CloudWatchClient, namespace, service string, logger types.Logger) *CloudWatch {
	return &CloudWatch{
		client:    client,
		namespace: namespace,
		service:   service,
		clock:     types.RealClock{},
		logger:    logger,
	}
}

// SetClock overrides the clock for testing.
func (c *CloudWatch) SetClock(clock types.Clock) {
	c.clock = clock
}

func (c *CloudWatch) RecordRequest(method, route, status string, d time.Duration) {
	dims := c.dims(DimMethod, method, DimRoute, route)
	c.add(
		c.datum(MetricRequest, 1, cwtypes.StandardUnitCount, append(dims, dim(DimStatus, status))),
		c.datum(MetricRequestLatency, millis(d), cwtypes.StandardUnitMilliseconds, dims),
	)
}

func (c *CloudWatch) RecordMessage(messageType, result string) {
	c.add(c.datum(MetricMessage, 1, cwtypes.StandardUnitCount,
		c.dims(DimType, messageType, DimResult, result)))
}

func (c *CloudWatch) RecordConfirmation(result string, d time.Duration) {
	c.add(
		c.datum(MetricConfirmation, 1, cwtypes.StandardUnitCount, c.dims(DimResult, result)),
		c.datum(MetricConfirmationTime, millis(d), cwtypes.StandardUnitMilliseconds, c.dims()),
	)
}

func (c *CloudWatch) RecordDelivery(sink, result string, d time.Duration) {
	c.add(
		c.datum(MetricDelivery, 1, cwtypes.StandardUnitCount, c.dims(DimSink, sink, DimResult, result)),
		c.datum(MetricDeliveryLatency, millis(d), cwtypes.StandardUnitMilliseconds, c.dims(DimSink, sink)),
	)
}

// Buffered reports the number of datums waiting for Flush.
func (c *CloudWatch) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

// Flush publishes all buffered datums in batches. Datums of a failed batch
// are discarded; the errors of all batches are joined.
func (c *CloudWatch) Flush(ctx context.Context) error {
	c.mu.Lock()
	pending := c.buf
	c.buf = nil
	dropped := c.dropped
	c.dropped = 0
	c.mu.Unlock()

	if dropped > 0 {
		c.logger.Warn("dropped metric datums: buffer full", "dropped", dropped)
	}

	var errs []error
	for start := 0; start < len(pending); start += maxDatumsPerPut {
		end := min(start+maxDatumsPerPut, len(pending))
		_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
			Namespace:  aws.String(c.namespace),
			MetricData: pending[start:end],
		})
		if err != nil {
			c.logger.Error("failed to publish metrics", "error", err.Error(), "datums", end-start)
			errs = append(errs, fmt.Errorf("cloudwatch: put %d datums: %w", end-start, err))
		}
	}
	return errors.Join(errs...)
}

// Run flushes every interval until ctx is done.
func (c *CloudWatch) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = c.Flush(ctx)
		}
	}
}

func (c *CloudWatch) add(datums ...cwtypes.MetricDatum) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, datums...)
	if over := len(c.buf) - maxBuffered; over > 0 {
		c.buf = append(c.buf[:0], c.buf[over:]...)
		c.dropped += over
	}
}

func (c *CloudWatch) datum(name string, value float64, unit cwtypes.StandardUnit, dims []cwtypes.Dimension) cwtypes.MetricDatum {
	return cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(c.clock.Now()),
		Dimensions: dims,
	}
}

// dims builds the Service dimension followed by name/value pairs.
func (c *CloudWatch) dims(pairs ...string) []cwtypes.Dimension {
	out := make([]cwtypes.Dimension, 0, 1+len(pairs)/2)
	out = append(out, dim(DimService, c.service))
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, dim(pairs[i], pairs[i+1]))
	}
	return out
}

func dim(name, value string) cwtypes.Dimension {
	return cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
