package metrics

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var _ Collector = (*Prometheus)(nil)

// Prometheus implements Collector on a private registry so tests and
// multiple instances never collide on the global one.
//
// Metric naming follows Prometheus conventions:
//   - <prefix>_ on every metric
//   - _total suffix for counters
//   - _seconds suffix for duration histograms
type Prometheus struct {
	registry *prometheus.Registry

	RequestsTotal        *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	MessagesTotal        *prometheus.CounterVec
	ConfirmationsTotal   *prometheus.CounterVec
	ConfirmationDuration prometheus.Histogram
	DeliveriesTotal      *prometheus.CounterVec
	DeliveryDuration     *prometheus.HistogramVec
}

// NewPrometheus registers all relay metrics plus the Go runtime and process
// collectors. The lower-cased namespace becomes the metric prefix
// ("AlarmRelay" -> "alarmrelay").
func NewPrometheus(namespace string) *Prometheus {
	ns := strings.ToLower(namespace)

	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "sns_messages_total",
			Help:      "Inbound SNS deliveries by message type and result.",
		}, []string{"type", "result"}),
		ConfirmationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "subscription_confirmations_total",
			Help:      "Subscription confirmation callbacks by result.",
		}, []string{"result"}),
		ConfirmationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "subscription_confirmation_duration_seconds",
			Help:      "Latency of the SubscribeURL callback.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		DeliveriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "alarm_deliveries_total",
			Help:      "Alarm deliveries by sink and result.",
		}, []string{"sink", "result"}),
		DeliveryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "alarm_delivery_duration_seconds",
			Help:      "Alarm delivery latency by sink, including retries.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"sink"}),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.RequestsTotal,
		p.RequestDuration,
		p.MessagesTotal,
		p.ConfirmationsTotal,
		p.ConfirmationDuration,
		p.DeliveriesTotal,
		p.DeliveryDuration,
	)
	return p
}

// Registry exposes the underlying registry.
func (p *Prometheus) Registry() *prometheus.Registry { return p.registry }

// Handler serves the registry in the Prometheus exposition format.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

func (p *Prometheus) RecordRequest(method, route, status string, d time.Duration) {
	p.RequestsTotal.WithLabelValues(method, route, status).Inc()
	p.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (p *Prometheus) RecordMessage(messageType, result string) {
	p.MessagesTotal.WithLabelValues(messageType, result).Inc()
}

func (p *Prometheus) RecordConfirmation(result string, d time.Duration) {
	p.ConfirmationsTotal.WithLabelValues(result).Inc()
	p.ConfirmationDuration.Observe(d.Seconds())
}

func (p *Prometheus) RecordDelivery(sink, result string, d time.Duration) {
	p.DeliveriesTotal.WithLabelValues(sink, result).Inc()
	p.DeliveryDuration.WithLabelValues(sink).Observe(d.Seconds())
}
