// Package app assembles the runtime object graph shared by the HTTP server
// and the SNS Lambda: metrics collectors, alarm sinks, the dispatcher and
// the subscription confirmer.
//
// Broker sinks (SQS, Kafka, NATS) are enabled independently; each one that
// holds a connection is closed by App.Close.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/go-chi/chi/v5"

	"alarmrelay/internal/api/handlers"
	"alarmrelay/internal/config"
	"alarmrelay/internal/core"
	"alarmrelay/internal/metrics"
	"alarmrelay/internal/notifications"
	"alarmrelay/internal/notifications/chat"
	"alarmrelay/internal/queue"
	"alarmrelay/internal/security"
	"alarmrelay/internal/sns"
	"alarmrelay/internal/types"
)

// confirmMaxRedirects bounds redirects followed by the confirmation GET.
const confirmMaxRedirects = 3

// App holds the wired components. Optional parts are nil when disabled.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Metrics    metrics.Multi
	Prometheus *metrics.Prometheus
	CloudWatch *metrics.CloudWatch

	Dispatcher   *notifications.Dispatcher
	Confirmer    *sns.Confirmer
	HealthProbes []core.HealthProbe

	closers []io.Closer
}

// Option overrides a dependency, mainly for tests.
type Option func(*options)

type options struct {
	sqsClient  queue.SQSAPI
	kafka      queue.KafkaWriter
	natsConn   queue.NATSConn
	cwClient   metrics.CloudWatchClient
	chatOpts   []chat.SinkOption
	confirmOpt []sns.ConfirmerOption
}

// WithSQSClient injects the SQS client used by the queue sink.
func WithSQSClient(c queue.SQSAPI) Option {
	return func(o *options) { o.sqsClient = c }
}

// WithKafkaWriter injects the writer used by the Kafka sink.
func WithKafkaWriter(w queue.KafkaWriter) Option {
	return func(o *options) { o.kafka = w }
}

// WithNATSConn injects the connection used by the NATS sink.
func WithNATSConn(c queue.NATSConn) Option {
	return func(o *options) { o.natsConn = c }
}

// WithCloudWatchClient injects the client used by the CloudWatch collector.
func WithCloudWatchClient(c metrics.CloudWatchClient) Option {
	return func(o *options) { o.cwClient = c }
}

// WithChatOptions forwards options to chat.NewSink.
func WithChatOptions(opts ...chat.SinkOption) Option {
	return func(o *options) { o.chatOpts = append(o.chatOpts, opts...) }
}

// WithConfirmerOptions forwards options to sns.NewConfirmer.
func WithConfirmerOptions(opts ...sns.ConfirmerOption) Option {
	return func(o *options) { o.confirmOpt = append(o.confirmOpt, opts...) }
}

// New builds the App from cfg. The AWS SDK config is only loaded when an
// AWS-backed component is enabled and no client was injected for it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	typed := types.NewSlogAdapter(logger)
	a := &App{Config: cfg, Logger: logger}

	var awsCfg *aws.Config
	loadAWS := func() (aws.Config, error) {
		if awsCfg != nil {
			return *awsCfg, nil
		}
		c, err := loadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return aws.Config{}, err
		}
		awsCfg = &c
		return c, nil
	}

	// Metrics
	if cfg.Observability.PrometheusEnabled {
		a.Prometheus = metrics.NewPrometheus(cfg.Observability.MetricNamespace)
		a.Metrics = append(a.Metrics, a.Prometheus)
	}
	if cfg.Observability.CloudWatchEnabled {
		client := o.cwClient
		if client == nil {
			c, err := loadAWS()
			if err != nil {
				return nil, err
			}
			client = cloudwatch.NewFromConfig(c)
		}
		a.CloudWatch = metrics.NewCloudWatch(client, cfg.Observability.MetricNamespace, cfg.Service, typed)
		a.Metrics = append(a.Metrics, a.CloudWatch)
	}

	// Sinks
	var sinks []types.AlarmSink
	if cfg.Chat.Enabled() {
		sink, err := chat.NewSink(cfg.Chat, typed, o.chatOpts...)
		if err != nil {
			return nil, fmt.Errorf("creating chat sink: %w", err)
		}
		sinks = append(sinks, sink)
		a.HealthProbes = append(a.HealthProbes, sink)
	}
	if cfg.Queue.Enabled() {
		client := o.sqsClient
		if client == nil {
			c, err := loadAWS()
			if err != nil {
				return nil, err
			}
			client = sqs.NewFromConfig(c)
		}
		sinks = append(sinks, queue.NewSQSSink(client, cfg.Queue, typed))
		a.HealthProbes = append(a.HealthProbes, queue.NewSQSHealthProbe(client, cfg.Queue))
	}
	if cfg.Kafka.Enabled() {
		w := o.kafka
		if w == nil {
			w = queue.NewKafkaWriter(cfg.Kafka)
		}
		sink := queue.NewKafkaSink(w, cfg.Kafka, typed)
		sinks = append(sinks, sink)
		a.closers = append(a.closers, sink)
		a.HealthProbes = append(a.HealthProbes, queue.NewKafkaHealthProbe(cfg.Kafka))
	}
	if cfg.NATS.Enabled() {
		conn := o.natsConn
		if conn == nil {
			nc, err := queue.ConnectNATS(cfg.NATS, cfg.Service, typed)
			if err != nil {
				_ = a.Close()
				return nil, err
			}
			conn = nc
		}
		sink := queue.NewNATSSink(conn, cfg.NATS, typed)
		sinks = append(sinks, sink)
		a.closers = append(a.closers, sink)
		a.HealthProbes = append(a.HealthProbes, sink)
	}
	if len(sinks) == 0 {
		logger.Warn("no alarm sinks configured; notifications will be acknowledged and dropped")
	}

	a.Dispatcher = notifications.NewDispatcher(sinks, a.Metrics, typed)

	confirmOpts := []sns.ConfirmerOption{sns.WithUserAgent(cfg.SNS.UserAgent)}
	if !cfg.SNS.AllowPrivateNetworks {
		client, err := security.NewSafeHTTPClient(cfg.SNS.ConfirmTimeout, confirmMaxRedirects, nil)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("creating confirmation client: %w", err)
		}
		confirmOpts = append(confirmOpts, sns.WithHTTPClient(client))
	}
	confirmOpts = append(confirmOpts, o.confirmOpt...)
	a.Confirmer = sns.NewConfirmer(cfg.SNS.ConfirmTimeout, typed, confirmOpts...)

	return a, nil
}

// NewServer builds the HTTP chassis with /notify mounted and the App's
// metrics and health probes attached.
func (a *App) NewServer() (*core.Server, error) {
	srv, err := core.NewServer(a.Config, a.Logger)
	if err != nil {
		return nil, err
	}
	srv.Metrics = a.Metrics
	srv.HealthProbes = a.HealthProbes
	if a.Prometheus != nil {
		srv.MetricsHandler = a.Prometheus.Handler()
	}

	notify := handlers.NewNotifyHandler(a.Config, a.Confirmer, a.Dispatcher, a.Metrics, a.Logger)
	srv.RouteRegistrars = append(srv.RouteRegistrars, func(r chi.Router) {
		notify.RegisterRoutes(r)
	})
	srv.MountRoutes()
	return srv, nil
}

// Flush publishes buffered metrics.
func (a *App) Flush(ctx context.Context) error {
	return a.Metrics.Flush(ctx)
}

// Close releases broker connections. Call it after the last Dispatch.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func loadAWSConfig(ctx context.Context, cfg config.AWSConfig) (aws.Config, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	// LocalStack
	if cfg.EndpointURL != "" {
		loadOpts = append(loadOpts, awsconfig.WithBaseEndpoint(cfg.EndpointURL))
	}
	c, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("loading AWS config: %w", err)
	}
	return c, nil
}
