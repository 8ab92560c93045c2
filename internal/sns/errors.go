package sns

import (
	"errors"
	"fmt"
	"net/http"

	"alarmrelay/internal/types"
)

// IOError reports a failure reading the inbound request body.
type IOError struct {
	Err error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	return fmt.Sprintf("IO error: %v", e.Err)
}

// Unwrap returns the underlying read error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// JSONError reports a failure decoding an envelope or the embedded alarm
// message. Err is the decoder's error, kept verbatim; Field is the JSON path
// of the offending field when known.
type JSONError struct {
	Field string
	Err   error
}

// Error implements the error interface.
func (e *JSONError) Error() string {
	return fmt.Sprintf("JSON error: %v", e.Err)
}

// Unwrap returns the decoder error, which may itself be an
// *types.EnumParseError for enum-typed fields.
func (e *JSONError) Unwrap() error {
	return e.Err
}

// ConfirmationTransportError reports that the confirmation GET never
// produced a response (DNS, connect, TLS, timeout, cancellation or an
// unusable callback URL).
type ConfirmationTransportError struct {
	URL string
	Err error
}

// Error implements the error interface.
func (e *ConfirmationTransportError) Error() string {
	return fmt.Sprintf("failed to confirm subscription using %s: %v", e.URL, e.Err)
}

// Unwrap returns the transport error.
func (e *ConfirmationTransportError) Unwrap() error {
	return e.Err
}

// ConfirmationBadStatusError reports that the provider answered the
// confirmation GET with a status other than 200.
type ConfirmationBadStatusError struct {
	URL        string
	StatusCode int
}

// Error implements the error interface.
func (e *ConfirmationBadStatusError) Error() string {
	return fmt.Sprintf("failed to confirm subscription using %s, got status code %d %s",
		e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// ToAppError maps one of the package's error kinds (or an enum parse error
// from classification) onto the HTTP boundary error. Errors that are not one
// of the known kinds map to internal_unexpected_error.
func ToAppError(err error) *types.AppError {
	if err == nil {
		return nil
	}

	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	// JSONError is checked before EnumError: an enum miss inside a body is a
	// decode failure, not a classification failure.
	var jsonErr *JSONError
	if errors.As(err, &jsonErr) {
		details := map[string]any{"reason": jsonErr.Err.Error()}
		if jsonErr.Field != "" {
			details["field"] = jsonErr.Field
		}
		var enumErr types.EnumError
		if errors.As(jsonErr.Err, &enumErr) {
			details["value"] = enumErr.OffendingValue()
			details["allowed"] = enumErr.AllowedValues()
		}
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidJSON,
			"malformed SNS message body", err, details)
	}

	var enumErr types.EnumError
	if errors.As(err, &enumErr) {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationUnknownMessageType,
			enumErr.Error(), err, map[string]any{
				"header":  HeaderMessageType,
				"value":   enumErr.OffendingValue(),
				"allowed": enumErr.AllowedValues(),
			})
	}

	var ioErr *IOError
	if errors.As(err, &ioErr) {
		var maxBytes *http.MaxBytesError
		if errors.As(ioErr.Err, &maxBytes) {
			return types.NewAppErrorWithDetails(types.ErrCodeValidationBodyTooLarge,
				"request body too large", err, map[string]any{"limit_bytes": maxBytes.Limit})
		}
		return types.NewAppError(types.ErrCodeValidationUnreadableBody,
			"failed to read request body", err)
	}

	// The subscribe URL, upstream status and dial error are logged by the
	// Confirmer and kept out of the response body.
	var statusErr *ConfirmationBadStatusError
	if errors.As(err, &statusErr) {
		return types.NewAppError(types.ErrCodeUpstreamConfirmationRejected,
			"subscription confirmation was rejected by the provider", err)
	}

	var transportErr *ConfirmationTransportError
	if errors.As(err, &transportErr) {
		return types.NewAppError(types.ErrCodeUpstreamConfirmationFailed,
			"subscription confirmation request failed", err)
	}

	return types.NewAppError(types.ErrCodeInternalUnexpected, "an unexpected error occurred", err)
}
