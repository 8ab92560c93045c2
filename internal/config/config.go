// Package config defines the process configuration for alarmrelay.
// Configuration is loaded once at startup (or Lambda cold start) and is
// immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File (Lowest)
//
// Any missing required value or invalid format fails startup immediately.
package config

import (
	"strings"
	"time"
)

// Config is the top-level configuration struct. Sub-components receive only
// the sections they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"alarmrelay"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	SNS           SNSConfig
	Chat          ChatConfig
	Queue         QueueConfig
	Kafka         KafkaConfig
	NATS          NATSConfig
	AWS           AWSConfig
	Observability ObservabilityConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080" validate:"required,numeric"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"1048576" validate:"min=1024"`
}

// SNSConfig holds settings for the inbound SNS endpoint.
type SNSConfig struct {
	ConfirmTimeout time.Duration `envconfig:"SNS_CONFIRM_TIMEOUT" default:"10s"`
	UserAgent      string        `envconfig:"SNS_USER_AGENT" default:"AlarmRelay/1.0"`
	// Empty means every topic is accepted.
	AllowedTopicARNs []string `envconfig:"SNS_ALLOWED_TOPIC_ARNS" validate:"dive,startswith=arn:"`
	// AllowPrivateNetworks lets SubscribeURL resolve to loopback and private
	// addresses. Only meant for local development against a stub provider.
	AllowPrivateNetworks bool `envconfig:"SNS_ALLOW_PRIVATE_NETWORKS" default:"false"`
}

// TopicAllowed reports whether arn may be confirmed or delivered.
func (c SNSConfig) TopicAllowed(arn string) bool {
	if len(c.AllowedTopicARNs) == 0 {
		return true
	}
	for _, allowed := range c.AllowedTopicARNs {
		if strings.TrimSpace(allowed) == arn {
			return true
		}
	}
	return false
}

// ChatConfig holds settings for the outbound chat webhook sink.
type ChatConfig struct {
	WebhookURL     SecretString  `envconfig:"SLACK_WEBHOOK_URL" validate:"omitempty,url"`
	DefaultChannel string        `envconfig:"SLACK_CHANNEL"`
	Username       string        `envconfig:"SLACK_USERNAME" default:"AlarmRelay"`
	UserAgent      string        `envconfig:"CHAT_USER_AGENT" default:"AlarmRelay-Webhook/1.0"`
	Timeout        time.Duration `envconfig:"CHAT_TIMEOUT" default:"10s"`
	MaxRedirects   int           `envconfig:"CHAT_MAX_REDIRECTS" default:"3" validate:"min=0,max=10"`
	// Platform forces a payload format instead of detecting it from the URL.
	Platform string `envconfig:"CHAT_PLATFORM" validate:"omitempty,oneof=slack discord teams google_chat generic"`
	// SigningSecret, when set, adds an HMAC signature header to every
	// webhook request. The previous secret keeps being signed with until
	// PreviousSecretExpiresAt so receivers can rotate without downtime.
	SigningSecret           SecretString `envconfig:"CHAT_SIGNING_SECRET"`
	PreviousSigningSecret   SecretString `envconfig:"CHAT_SIGNING_SECRET_PREVIOUS"`
	PreviousSecretExpiresAt time.Time    `envconfig:"CHAT_SIGNING_SECRET_PREVIOUS_EXPIRES_AT"`
	// AllowPrivateNetworks disables SSRF filtering. Only meant for local
	// development against a webhook stub.
	AllowPrivateNetworks bool `envconfig:"CHAT_ALLOW_PRIVATE_NETWORKS" default:"false"`
}

// Enabled reports whether a webhook URL is configured.
func (c ChatConfig) Enabled() bool { return c.WebhookURL != "" }

// QueueConfig holds settings for the SQS forwarding sink.
type QueueConfig struct {
	URL string `envconfig:"SQS_ALARM_QUEUE_URL" validate:"omitempty,url"`
}

// Enabled reports whether a queue URL is configured.
func (c QueueConfig) Enabled() bool { return c.URL != "" }

// KafkaConfig holds settings for the Kafka forwarding sink.
type KafkaConfig struct {
	Brokers      []string      `envconfig:"KAFKA_BROKERS" validate:"dive,hostname_port"`
	Topic        string        `envconfig:"KAFKA_ALARM_TOPIC" default:"cloudwatch-alarms"`
	WriteTimeout time.Duration `envconfig:"KAFKA_WRITE_TIMEOUT" default:"10s"`
}

// Enabled reports whether at least one broker is configured.
func (c KafkaConfig) Enabled() bool { return len(c.Brokers) > 0 }

// NATSConfig holds settings for the NATS forwarding sink.
type NATSConfig struct {
	URL     string `envconfig:"NATS_URL" validate:"omitempty,url"`
	Subject string `envconfig:"NATS_ALARM_SUBJECT" default:"alarms.cloudwatch"`
	// FlushTimeout bounds the round trip that confirms a publish reached
	// the server.
	FlushTimeout time.Duration `envconfig:"NATS_FLUSH_TIMEOUT" default:"5s"`
}

// Enabled reports whether a server URL is configured.
func (c NATSConfig) Enabled() bool { return c.URL != "" }

// AWSConfig holds regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL" validate:"omitempty,url"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace   string `envconfig:"METRIC_NAMESPACE" default:"AlarmRelay"`
	CloudWatchEnabled bool   `envconfig:"CLOUDWATCH_METRICS_ENABLED" default:"false"`
	PrometheusEnabled bool   `envconfig:"PROMETHEUS_ENABLED" default:"true"`
	// MetricFlushInterval is how often the HTTP server publishes buffered
	// CloudWatch datums. The Lambda flushes once per invocation instead.
	MetricFlushInterval time.Duration `envconfig:"METRIC_FLUSH_INTERVAL" default:"60s"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string `ignored:"true"`
	Commit    string `ignored:"true"`
	BuildTime string `ignored:"true"`
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrDotenv indicates a .env file exists but could not be parsed.
	ErrDotenv ConfigErrorType = "DOTENV_FAILED"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
	// ErrSecretResolution indicates a *_SSM_PARAM binding could not be
	// resolved from the parameter store.
	ErrSecretResolution ConfigErrorType = "SECRET_RESOLUTION_FAILED"
)
