// Package metrics records relay telemetry: HTTP requests, inbound SNS
// messages, subscription confirmations and per-sink alarm deliveries.
//
// Two backends exist. Prometheus serves a scrape endpoint; CloudWatch buffers
// datapoints and publishes them with PutMetricData on Flush. Multi fans out
// to both.
package metrics

import (
	"context"
	"errors"
	"time"
)

// Result values used as the "result" label/dimension.
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultRejected = "rejected"
)

// Collector is the full set of relay metrics. It satisfies
// core.MetricsCollector.
type Collector interface {
	RecordRequest(method, route, status string, duration time.Duration)

	// RecordMessage counts one inbound SNS delivery by message type
	// ("Notification", "SubscriptionConfirmation", ... or "unknown").
	RecordMessage(messageType, result string)

	RecordConfirmation(result string, duration time.Duration)

	RecordDelivery(sink, result string, duration time.Duration)
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordRequest(string, string, string, time.Duration) {}
func (Noop) RecordMessage(string, string)                        {}
func (Noop) RecordConfirmation(string, time.Duration)             {}
func (Noop) RecordDelivery(string, string, time.Duration)         {}

// Multi forwards every record to each collector in order.
type Multi []Collector

func (m Multi) RecordRequest(method, route, status string, d time.Duration) {
	for _, c := range m {
		c.RecordRequest(method, route, status, d)
	}
}

func (m Multi) RecordMessage(messageType, result string) {
	for _, c := range m {
		c.RecordMessage(messageType, result)
	}
}

func (m Multi) RecordConfirmation(result string, d time.Duration) {
	for _, c := range m {
		c.RecordConfirmation(result, d)
	}
}

func (m Multi) RecordDelivery(sink, result string, d time.Duration) {
	for _, c := range m {
		c.RecordDelivery(sink, result, d)
	}
}

// Flush drains every member that buffers datapoints.
func (m Multi) Flush(ctx context.Context) error {
	var errs []error
	for _, c := range m {
		if f, ok := c.(interface{ Flush(context.Context) error }); ok {
			if err := f.Flush(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// ResultOf maps an error to ResultSuccess or ResultFailure.
func ResultOf(err error) string {
	if err != nil {
		return ResultFailure
	}
	return ResultSuccess
}
