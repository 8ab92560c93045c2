package chat

import (
	"encoding/json"
	"fmt"

	"alarmrelay/internal/types"
)

// GoogleChatFormatter formats alarms as a Google Chat card.
type GoogleChatFormatter struct{}

// Platform returns the platform identifier.
func (f *GoogleChatFormatter) Platform() Platform {
	return PlatformGoogleChat
}

// Format transforms an alarm into Google Chat card JSON.
func (f *GoogleChatFormatter) Format(a types.AlarmDetails, _ FormatOptions) ([]byte, error) {
	kv := func(label, content string) GoogleWidget {
		return GoogleWidget{KeyValue: &GoogleKeyValue{TopLabel: label, Content: content}}
	}

	sections := []GoogleSection{{
		Widgets: []GoogleWidget{
			kv("State", transition(a)),
			kv("Metric", metricName(a.Trigger)),
			kv("Condition", condition(a.Trigger)),
			kv("Dimensions", dimensions(a.Trigger)),
		},
	}}
	if a.Reason != "" {
		sections = append(sections, GoogleSection{
			Header:  "Reason",
			Widgets: []GoogleWidget{{TextParagraph: &GoogleTextParagraph{Text: a.Reason}}},
		})
	}

	title := alarmTitle(a)
	return json.Marshal(GoogleChatPayload{
		Text: title,
		Cards: []GoogleCard{{
			Header:   GoogleHeader{Title: title, Subtitle: a.Timestamp},
			Sections: sections,
		}},
	})
}

// ValidateResponse surfaces the API error message on non-2xx responses.
func (f *GoogleChatFormatter) ValidateResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var resp struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error.Message != "" {
		return fmt.Errorf("google chat: API error: %s", resp.Error.Message)
	}
	return fmt.Errorf("google chat: unexpected status %d: %s", statusCode, truncateBody(body))
}
