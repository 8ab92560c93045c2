// Package chat delivers decoded CloudWatch alarms to a chat webhook.
//
// The destination platform (Slack, Teams, Discord, Google Chat or a generic
// JSON endpoint) is detected from the webhook URL unless configured
// explicitly. Requests go through external.BaseClient (circuit breaker and
// bounded retries) over an SSRF-filtering transport.
package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"alarmrelay/internal/config"
	"alarmrelay/internal/external"
	"alarmrelay/internal/security"
	"alarmrelay/internal/types"
)

// maxResponseBodyRead limits how much of a response body is read for
// soft-failure detection and error messages.
const maxResponseBodyRead = 4096

var _ types.AlarmSink = (*Sink)(nil)

// Doer executes HTTP requests. *external.BaseClient satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Sink posts alarms to a single configured chat webhook.
type Sink struct {
	webhookURL     string
	formatter      Formatter
	registry       *Registry
	client         Doer
	defaultChannel string
	username       string
	allowPrivate   bool
	resolver       security.Resolver
	signer         *Signer
	clock          types.Clock
	logger         types.Logger
}

// SinkOption configures a Sink.
type SinkOption func(*sinkOptions)

type sinkOptions struct {
	client     Doer
	clientOpts []external.BaseClientOption
	retry      *external.RetryPolicy
	resolver   security.Resolver
	clock      types.Clock
}

// WithDoer replaces the outbound client entirely. Intended for tests.
func WithDoer(d Doer) SinkOption {
	return func(o *sinkOptions) { o.client = d }
}

// WithRetryPolicy overrides external.DefaultRetryPolicy.
func WithRetryPolicy(p external.RetryPolicy) SinkOption {
	return func(o *sinkOptions) { o.retry = &p }
}

// WithClientOptions passes options through to external.NewBaseClient.
func WithClientOptions(opts ...external.BaseClientOption) SinkOption {
	return func(o *sinkOptions) { o.clientOpts = append(o.clientOpts, opts...) }
}

// WithResolver sets the DNS resolver used for SSRF checks.
func WithResolver(r security.Resolver) SinkOption {
	return func(o *sinkOptions) { o.resolver = r }
}

// WithClock sets the clock used for signature timestamps.
func WithClock(c types.Clock) SinkOption {
	return func(o *sinkOptions) { o.clock = c }
}

// NewSink builds a Sink from cfg. The webhook URL must be set.
func NewSink(cfg config.ChatConfig, logger types.Logger, opts ...SinkOption) (*Sink, error) {
	if !cfg.Enabled() {
		return nil, errors.New("chat sink: webhook URL is not configured")
	}
	if logger == nil {
		return nil, errors.New("chat sink: logger is nil")
	}

	var o sinkOptions
	for _, opt := range opts {
		opt(&o)
	}

	webhookURL := cfg.WebhookURL.Unmask()
	registry := NewRegistry()
	platform := registry.Detect(webhookURL, cfg.Platform)
	logger = logger.With("sink", string(platform))

	if warning, deprecated := registry.CheckDeprecation(webhookURL); deprecated {
		logger.Warn("chat webhook uses a deprecated endpoint", "warning", warning)
	}

	client := o.client
	if client == nil {
		httpClient, err := newHTTPClient(cfg, o.resolver)
		if err != nil {
			return nil, fmt.Errorf("chat sink: %w", err)
		}
		policy := external.DefaultRetryPolicy()
		if o.retry != nil {
			policy = *o.retry
		}
		clientOpts := append([]external.BaseClientOption{external.WithLogger(logger)}, o.clientOpts...)
		client = external.NewBaseClient(httpClient, "chat-"+string(platform), policy, cfg.UserAgent, clientOpts...)
	}

	clock := o.clock
	if clock == nil {
		clock = types.RealClock{}
	}

	return &Sink{
		webhookURL:     webhookURL,
		formatter:      registry.Get(platform),
		registry:       registry,
		client:         client,
		defaultChannel: cfg.DefaultChannel,
		username:       cfg.Username,
		allowPrivate:   cfg.AllowPrivateNetworks,
		resolver:       o.resolver,
		signer:         NewSigner(cfg),
		clock:          clock,
		logger:         logger,
	}, nil
}

func newHTTPClient(cfg config.ChatConfig, resolver security.Resolver) (*http.Client, error) {
	if !cfg.AllowPrivateNetworks {
		return security.NewSafeHTTPClient(cfg.Timeout, cfg.MaxRedirects, resolver)
	}
	maxRedirects := cfg.MaxRedirects
	return &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return security.ErrSSRFTooManyRedirects
			}
			return nil
		},
	}, nil
}

// Name returns the platform name, used as the sink label.
func (s *Sink) Name() string {
	return string(s.formatter.Platform())
}

// Platform returns the detected or configured platform.
func (s *Sink) Platform() Platform {
	return s.formatter.Platform()
}

// Check verifies the webhook URL is still deliverable: https and resolving
// only to public addresses. With private networks allowed only the URL
// syntax is checked. Sink satisfies core.HealthProbe through Name and Check.
func (s *Sink) Check(ctx context.Context) error {
	if s.allowPrivate {
		if _, err := url.ParseRequestURI(s.webhookURL); err != nil {
			return fmt.Errorf("chat sink: invalid webhook URL: %w", err)
		}
		return nil
	}
	return security.ValidateWebhookURL(ctx, s.webhookURL, s.resolver)
}

// Send formats alarm for the platform and posts it. opts.SlackChannel
// overrides the configured default channel.
func (s *Sink) Send(ctx context.Context, alarm types.AlarmDetails, opts types.DeliveryOptions) error {
	channel := s.defaultChannel
	if opts.SlackChannel != "" {
		channel = opts.SlackChannel
	}

	payload, err := s.formatter.Format(alarm, FormatOptions{Channel: channel, Username: s.username})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to format chat payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.signer != nil {
		req.Header.Set(SignatureHeader, s.signer.Sign(payload, s.clock.Now()))
	}

	logger := s.logger.With("alarm", alarm.Name, "state", alarm.NewState.String())
	if channel != "" {
		logger = logger.With("channel", channel)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, security.ErrSSRFBlocked) {
			logger.Error("chat webhook blocked by SSRF filter", "error", err)
		} else {
			logger.Warn("chat delivery failed", "error", err)
		}
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))

	if err := s.formatter.ValidateResponse(resp.StatusCode, body); err != nil {
		if resp.StatusCode == http.StatusGone {
			logger.Error("chat webhook no longer exists", "status", resp.StatusCode)
		} else {
			logger.Warn("chat delivery rejected", "status", resp.StatusCode, "error", err)
		}
		return types.NewAppErrorWithDetails(types.ErrCodeUpstreamSinkFailed,
			"chat webhook rejected the alarm", err,
			map[string]any{"sink": s.Name(), "status": resp.StatusCode})
	}

	logger.Info("alarm delivered to chat", "status", resp.StatusCode)
	return nil
}
