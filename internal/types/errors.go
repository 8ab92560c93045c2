package types

import (
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing errors returned at the HTTP
// boundary.
type ErrorCode string

// All handlers MUST use these constants instead of hardcoded strings.
const (
	// Validation (400)
	ErrCodeValidationInvalidJSON        ErrorCode = "validation_invalid_json"
	ErrCodeValidationUnreadableBody     ErrorCode = "validation_unreadable_body"
	ErrCodeValidationUnknownMessageType ErrorCode = "validation_unknown_message_type"
	ErrCodeValidationBodyTooLarge       ErrorCode = "validation_body_too_large"

	// Permission (403)
	ErrCodePermissionTopicNotAllowed ErrorCode = "permission_topic_not_allowed"

	// Not Found (404)
	ErrCodeNotFoundRoute ErrorCode = "not_found_route"

	// Method Not Allowed (405)
	ErrCodeMethodNotAllowed ErrorCode = "method_not_allowed"

	// Upstream (502)
	ErrCodeUpstreamConfirmationFailed   ErrorCode = "upstream_confirmation_failed"
	ErrCodeUpstreamConfirmationRejected ErrorCode = "upstream_confirmation_rejected"
	ErrCodeUpstreamSinkFailed           ErrorCode = "upstream_sink_failed"
	ErrCodeUpstreamUnavailable          ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited          ErrorCode = "upstream_rate_limited"

	// Internal (500)
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// HTTPStatus maps an ErrorCode to its HTTP status code. Unrecognized codes
// map to 500.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case c == ErrCodeValidationBodyTooLarge:
		return http.StatusRequestEntityTooLarge // 413
	case c == ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed // 405
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest // 400
	case strings.HasPrefix(s, "permission_"):
		return http.StatusForbidden // 403
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound // 404
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway // 502
	default:
		return http.StatusInternalServerError // 500
	}
}

// AppError is the error type rendered at the HTTP boundary. Domain packages
// return their own typed errors; the handler layer converts them to AppError.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
