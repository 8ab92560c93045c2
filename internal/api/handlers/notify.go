// Package handlers contains the HTTP handlers mounted on the core router.
//
// NotifyHandler is the SNS HTTP(S) subscription endpoint. It is called
// directly by SNS and is not authenticated; an optional topic allow-list
// restricts which topics are confirmed and relayed.
package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzip"

	"alarmrelay/internal/config"
	"alarmrelay/internal/core"
	"alarmrelay/internal/metrics"
	"alarmrelay/internal/notifications"
	"alarmrelay/internal/sns"
	"alarmrelay/internal/types"
)

// defaultMaxBodyBytes applies when the config leaves the limit unset.
const defaultMaxBodyBytes = 1 << 20

// SubscriptionConfirmer performs the SubscribeURL handshake.
type SubscriptionConfirmer interface {
	Confirm(ctx context.Context, env types.SubscriptionEnvelope) error
}

// AlarmDispatcher delivers a decoded alarm to the configured sinks.
type AlarmDispatcher interface {
	Dispatch(ctx context.Context, alarm types.AlarmDetails, opts types.DeliveryOptions) error
}

// MessageRecorder receives per-message telemetry. metrics.Collector
// satisfies it.
type MessageRecorder interface {
	RecordMessage(messageType, result string)
	RecordConfirmation(result string, duration time.Duration)
}

// NotifyResponse is the body of a successful /notify call.
type NotifyResponse struct {
	Status      string `json:"status"` // "confirmed", "ignored", "dispatched"
	MessageType string `json:"message_type"`
	Alarm       string `json:"alarm,omitempty"`
	State       string `json:"state,omitempty"`
}

// NotifyHandler accepts SNS deliveries.
type NotifyHandler struct {
	confirmer    SubscriptionConfirmer
	dispatcher   AlarmDispatcher
	recorder     MessageRecorder
	snsCfg       config.SNSConfig
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewNotifyHandler creates a NotifyHandler. A nil recorder disables
// metrics; a nil logger uses slog.Default().
func NewNotifyHandler(
	cfg *config.Config,
	confirmer SubscriptionConfirmer,
	dispatcher AlarmDispatcher,
	recorder MessageRecorder,
	logger *slog.Logger,
) *NotifyHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = metrics.Noop{}
	}
	h := &NotifyHandler{
		confirmer:    confirmer,
		dispatcher:   dispatcher,
		recorder:     recorder,
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       logger,
	}
	if cfg != nil {
		h.snsCfg = cfg.SNS
		if cfg.Server.MaxBodyBytes > 0 {
			h.maxBodyBytes = cfg.Server.MaxBodyBytes
		}
	}
	return h
}

// RegisterRoutes mounts POST /notify.
func (h *NotifyHandler) RegisterRoutes(r chi.Router) {
	r.Post("/notify", h.Handle)
}

// Handle processes one SNS delivery:
//  1. Classifies it from the x-amz-sns-message-type header.
//  2. Reads the body (size-limited, gzip-aware, UTF-8).
//  3. SubscriptionConfirmation: decodes, checks the topic, confirms.
//  4. UnsubscribeConfirmation: acknowledged without action.
//  5. Notification: decodes both stages, checks the topic and dispatches
//     with the optional ?slack=<channel> override.
func (h *NotifyHandler) Handle(w http.ResponseWriter, r *http.Request) {
	msgType, err := sns.ClassifyRequest(r)
	if err != nil {
		h.fail(w, r, "unknown", err)
		return
	}
	label := msgType.String()

	body, err := h.readBody(w, r)
	if err != nil {
		h.fail(w, r, label, err)
		return
	}

	switch msgType {
	case types.MessageTypeSubscriptionConfirmation:
		err = h.handleSubscription(r.Context(), body)
		if err == nil {
			h.succeed(w, r, NotifyResponse{Status: "confirmed", MessageType: label})
			return
		}

	case types.MessageTypeUnsubscribeConfirmation:
		h.logger.InfoContext(r.Context(), "unsubscribe confirmation acknowledged", "bytes", len(body))
		h.succeed(w, r, NotifyResponse{Status: "ignored", MessageType: label})
		return

	case types.MessageTypeNotification:
		var alarm types.AlarmDetails
		alarm, err = h.handleNotification(r, body)
		if err == nil {
			h.succeed(w, r, NotifyResponse{
				Status:      "dispatched",
				MessageType: label,
				Alarm:       alarm.Name,
				State:       alarm.NewState.String(),
			})
			return
		}

	default:
		err = types.NewAppError(types.ErrCodeInternalUnexpected, "unhandled message type", nil)
	}

	h.fail(w, r, label, err)
}

func (h *NotifyHandler) handleSubscription(ctx context.Context, body []byte) error {
	env, err := sns.DecodeSubscription(body)
	if err != nil {
		return err
	}
	if err := h.checkTopic(env.TopicArn); err != nil {
		return err
	}

	start := time.Now()
	err = h.confirmer.Confirm(ctx, env)
	h.recorder.RecordConfirmation(metrics.ResultOf(err), time.Since(start))
	if err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "subscription confirmed", "topic_arn", env.TopicArn)
	return nil
}

func (h *NotifyHandler) handleNotification(r *http.Request, body []byte) (types.AlarmDetails, error) {
	env, err := sns.DecodeNotification(body)
	if err != nil {
		return types.AlarmDetails{}, err
	}
	if err := h.checkTopic(env.TopicArn); err != nil {
		return types.AlarmDetails{}, err
	}

	alarm, err := sns.DecodeAlarmDetails(env.Message)
	if err != nil {
		return types.AlarmDetails{}, err
	}

	opts := types.DeliveryOptions{SlackChannel: r.URL.Query().Get("slack")}
	if err := h.dispatcher.Dispatch(r.Context(), alarm, opts); err != nil {
		return alarm, dispatchAppError(err)
	}
	return alarm, nil
}

// checkTopic enforces SNS_ALLOWED_TOPIC_ARNS. With an allow-list configured,
// an envelope without a TopicArn is rejected as well.
func (h *NotifyHandler) checkTopic(arn string) error {
	if h.snsCfg.TopicAllowed(arn) {
		return nil
	}
	return types.NewAppErrorWithDetails(types.ErrCodePermissionTopicNotAllowed,
		"topic is not in the allow-list", nil, map[string]any{"topic_arn": arn})
}

// readBody reads at most maxBodyBytes of (decompressed) body. Every failure
// is an *sns.IOError; an oversized body wraps *http.MaxBytesError.
func (h *NotifyHandler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)

	var reader io.Reader = r.Body
	if strings.EqualFold(strings.TrimSpace(r.Header.Get("Content-Encoding")), "gzip") {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, &sns.IOError{Err: err}
		}
		defer gz.Close()
		reader = io.LimitReader(gz, h.maxBodyBytes+1)
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &sns.IOError{Err: err}
	}
	if int64(len(body)) > h.maxBodyBytes {
		return nil, &sns.IOError{Err: &http.MaxBytesError{Limit: h.maxBodyBytes}}
	}
	if !utf8.Valid(body) {
		return nil, &sns.IOError{Err: errors.New("stream did not contain valid UTF-8")}
	}
	return body, nil
}

func (h *NotifyHandler) succeed(w http.ResponseWriter, r *http.Request, resp NotifyResponse) {
	h.recorder.RecordMessage(resp.MessageType, metrics.ResultSuccess)
	core.JSON(w, r, http.StatusOK, resp)
}

// fail maps err onto the boundary error model, logs it and writes it.
func (h *NotifyHandler) fail(w http.ResponseWriter, r *http.Request, label string, err error) {
	appErr := sns.ToAppError(err)
	status := appErr.HTTPStatus()

	result := metrics.ResultFailure
	level := slog.LevelError
	if status < http.StatusInternalServerError {
		result = metrics.ResultRejected
		level = slog.LevelWarn
	}
	h.recorder.RecordMessage(label, result)

	h.logger.Log(r.Context(), level, "sns message not processed",
		"message_type", label,
		"code", string(appErr.Code),
		"status", status,
		"error", err.Error(),
	)
	core.Error(w, r, appErr)
}

// dispatchAppError summarises a *notifications.DispatchError as a single
// upstream_sink_failed error listing the failed sinks.
func dispatchAppError(err error) error {
	var dispatchErr *notifications.DispatchError
	if !errors.As(err, &dispatchErr) {
		return err
	}
	return types.NewAppErrorWithDetails(types.ErrCodeUpstreamSinkFailed,
		"alarm delivery failed", err, map[string]any{
			"failed_sinks": dispatchErr.FailedSinks(),
			"delivered":    dispatchErr.Delivered,
		})
}
