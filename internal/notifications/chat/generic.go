package chat

import (
	"encoding/json"
	"fmt"

	"alarmrelay/internal/types"
)

// GenericFormatter posts the decoded alarm for webhooks of unknown platforms.
type GenericFormatter struct{}

// Platform returns the platform identifier.
func (f *GenericFormatter) Platform() Platform {
	return PlatformGeneric
}

// Format wraps the alarm in a GenericPayload.
func (f *GenericFormatter) Format(a types.AlarmDetails, _ FormatOptions) ([]byte, error) {
	data, err := json.Marshal(GenericPayload{Source: "aws.cloudwatch", Alarm: a})
	if err != nil {
		return nil, fmt.Errorf("generic formatter: %w", err)
	}
	return data, nil
}

// ValidateResponse only checks the status code.
func (f *GenericFormatter) ValidateResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	return fmt.Errorf("generic webhook: unexpected status %d: %s", statusCode, truncateBody(body))
}
