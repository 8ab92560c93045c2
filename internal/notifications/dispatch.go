// Package notifications fans decoded alarms out to the configured sinks.
package notifications

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"alarmrelay/internal/metrics"
	"alarmrelay/internal/types"
)

// DeliveryRecorder receives one observation per sink per alarm.
// metrics.Collector satisfies it.
type DeliveryRecorder interface {
	RecordDelivery(sink, result string, duration time.Duration)
}

// DispatchError reports the sinks that failed for one alarm. Unwrap exposes
// every sink error to errors.Is and errors.As.
type DispatchError struct {
	Alarm     string
	Failed    map[string]error
	Delivered int
	Total     int
}

func (e *DispatchError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, name := range e.FailedSinks() {
		parts = append(parts, fmt.Sprintf("%s: %v", name, e.Failed[name]))
	}
	return fmt.Sprintf("alarm %q: %d of %d sinks failed: %s",
		e.Alarm, e.Total-e.Delivered, e.Total, strings.Join(parts, "; "))
}

func (e *DispatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, name := range e.FailedSinks() {
		errs = append(errs, e.Failed[name])
	}
	return errs
}

// FailedSinks returns the failed sink names, sorted.
func (e *DispatchError) FailedSinks() []string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatcher sends each alarm to all sinks concurrently. A failing sink never
// cancels the others.
type Dispatcher struct {
	sinks    []types.AlarmSink
	recorder DeliveryRecorder
	logger   types.Logger
}

// NewDispatcher creates a Dispatcher. A nil recorder disables metrics and a
// nil logger discards log output.
func NewDispatcher(sinks []types.AlarmSink, recorder DeliveryRecorder, logger types.Logger) *Dispatcher {
	if logger == nil {
		logger = types.NopLogger{}
	}
	return &Dispatcher{sinks: sinks, recorder: recorder, logger: logger}
}

// Sinks returns the configured sink names in order.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.Name()
	}
	return names
}

// Dispatch delivers alarm to every sink and waits for all of them. It returns
// nil when every sink succeeded (or none is configured) and a
// *DispatchError otherwise.
func (d *Dispatcher) Dispatch(ctx context.Context, alarm types.AlarmDetails, opts types.DeliveryOptions) error {
	logger := d.logger
	if l := types.LoggerFromContext(ctx); l != nil {
		logger = l
	}
	logger = logger.With("alarm", alarm.Name, "state", alarm.NewState.String())

	if len(d.sinks) == 0 {
		logger.Warn("alarm dropped: no sinks configured")
		return nil
	}

	errs := make([]error, len(d.sinks))
	var g errgroup.Group
	for i, sink := range d.sinks {
		g.Go(func() error {
			start := time.Now()
			err := sink.Send(ctx, alarm, opts)
			if d.recorder != nil {
				d.recorder.RecordDelivery(sink.Name(), metrics.ResultOf(err), time.Since(start))
			}
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()

	failed := make(map[string]error)
	failures := 0
	for i, err := range errs {
		if err != nil {
			name := d.sinks[i].Name()
			if prev, dup := failed[name]; dup {
				err = errors.Join(prev, err)
			}
			failed[name] = err
			failures++
		}
	}
	if failures == 0 {
		logger.Info("alarm dispatched", "sinks", len(d.sinks))
		return nil
	}

	dispatchErr := &DispatchError{
		Alarm:     alarm.Name,
		Failed:    failed,
		Delivered: len(d.sinks) - failures,
		Total:     len(d.sinks),
	}
	logger.Error("alarm dispatch failed", "failed_sinks", dispatchErr.FailedSinks(), "delivered", dispatchErr.Delivered)
	return dispatchErr
}
