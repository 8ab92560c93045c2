package chat

import (
	"encoding/json"
	"fmt"

	"alarmrelay/internal/types"
)

// TeamsFormatter formats alarms as an Adaptive Card for Power Automate
// Workflows.
type TeamsFormatter struct{}

// Platform returns the platform identifier.
func (f *TeamsFormatter) Platform() Platform {
	return PlatformTeams
}

// Format transforms an alarm into Teams Adaptive Card JSON.
func (f *TeamsFormatter) Format(a types.AlarmDetails, _ FormatOptions) ([]byte, error) {
	titleColor := "Default"
	switch a.NewState {
	case types.AlarmStateAlarm:
		titleColor = "Attention"
	case types.AlarmStateOK:
		titleColor = "Good"
	}

	body := []AdaptiveItem{
		{Type: "TextBlock", Text: alarmTitle(a), Size: "Large", Weight: "Bolder", Color: titleColor, Wrap: true},
		{
			Type: "FactSet",
			Facts: []Fact{
				{Title: "State", Value: transition(a)},
				{Title: "Metric", Value: metricName(a.Trigger)},
				{Title: "Condition", Value: condition(a.Trigger)},
				{Title: "Dimensions", Value: dimensions(a.Trigger)},
				{Title: "Changed", Value: a.Timestamp},
			},
		},
	}
	if a.Reason != "" {
		body = append(body, AdaptiveItem{Type: "TextBlock", Text: a.Reason, Wrap: true})
	}
	if a.Description != "" {
		body = append(body, AdaptiveItem{Type: "TextBlock", Text: a.Description, Size: "Small", Wrap: true})
	}

	return json.Marshal(TeamsPayload{
		Type: "message",
		Attachments: []TeamsAttachment{{
			ContentType: "application/vnd.microsoft.card.adaptive",
			Content: AdaptiveCard{
				Type:    "AdaptiveCard",
				Version: "1.4",
				Body:    body,
			},
		}},
	})
}

// ValidateResponse accepts any 2xx; workflows answer 202 Accepted.
func (f *TeamsFormatter) ValidateResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}
	return fmt.Errorf("teams: unexpected status %d: %s", statusCode, truncateBody(body))
}
