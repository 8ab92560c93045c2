package sns

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	"alarmrelay/internal/types"
)

// DefaultConfirmTimeout bounds the confirmation GET when the caller does not
// configure one.
const DefaultConfirmTimeout = 10 * time.Second

// maxDrainBytes caps how much of the confirmation response body is read
// before closing, so the connection can be reused.
const maxDrainBytes = 64 << 10

// Confirmer performs the subscription-confirmation handshake: one GET to the
// provider-supplied SubscribeURL, where only HTTP 200 counts as success.
// It is safe for concurrent use.
type Confirmer struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
	logger    types.Logger
}

// ConfirmerOption configures a Confirmer.
type ConfirmerOption func(*Confirmer)

// WithHTTPClient overrides the HTTP client used for the confirmation GET.
func WithHTTPClient(c *http.Client) ConfirmerOption {
	return func(cf *Confirmer) {
		cf.client = c
	}
}

// WithUserAgent sets the User-Agent header on confirmation requests.
func WithUserAgent(ua string) ConfirmerOption {
	return func(cf *Confirmer) {
		cf.userAgent = ua
	}
}

// NewConfirmer creates a Confirmer. A non-positive timeout falls back to
// DefaultConfirmTimeout.
func NewConfirmer(timeout time.Duration, logger types.Logger, opts ...ConfirmerOption) *Confirmer {
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	c := &Confirmer{
		client:  &http.Client{},
		timeout: timeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Confirm issues exactly one GET to env.SubscribeURL. It never retries.
//
// Returns:
//   - nil on HTTP 200.
//   - *ConfirmationBadStatusError for any other status, including other 2xx.
//   - *ConfirmationTransportError when no response was obtained, including
//     timeout expiry and ctx cancellation.
func (c *Confirmer) Confirm(ctx context.Context, env types.SubscriptionEnvelope) error {
	target := env.SubscribeURL

	// SubscribeURL comes from the provider, so an unusable URL is reported as
	// a transport fault rather than a client error.
	u, err := url.Parse(target)
	if err != nil {
		return &ConfirmationTransportError{URL: target, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &ConfirmationTransportError{URL: target, Err: err}
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.log().Warn("subscription confirmation transport failure",
			"topic_arn", env.TopicArn,
			"subscribe_url", target,
			"error", err.Error(),
		)
		return &ConfirmationTransportError{URL: target, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode != http.StatusOK {
		c.log().Warn("subscription confirmation rejected",
			"topic_arn", env.TopicArn,
			"subscribe_url", target,
			"status", resp.StatusCode,
		)
		return &ConfirmationBadStatusError{URL: target, StatusCode: resp.StatusCode}
	}

	c.log().Info("subscription confirmed",
		"topic_arn", env.TopicArn,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (c *Confirmer) log() types.Logger {
	if c.logger == nil {
		return types.NopLogger{}
	}
	return c.logger
}
