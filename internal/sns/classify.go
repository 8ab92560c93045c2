package sns

import (
	"net/http"

	"alarmrelay/internal/types"
)

// HeaderMessageType is the request header SNS uses to announce the kind of
// message in the body.
const HeaderMessageType = "x-amz-sns-message-type"

// Classify resolves the message-type header value. An absent header is an
// ordinary miss reported with an empty offending value.
func Classify(value string, present bool) (types.MessageType, error) {
	if !present {
		value = ""
	}
	return types.ParseMessageType(value)
}

// ClassifyRequest reads HeaderMessageType from r and classifies it.
func ClassifyRequest(r *http.Request) (types.MessageType, error) {
	values := r.Header.Values(HeaderMessageType)
	if len(values) == 0 {
		return Classify("", false)
	}
	return Classify(values[0], true)
}
