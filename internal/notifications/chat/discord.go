package chat

import (
	"encoding/json"
	"fmt"

	"alarmrelay/internal/types"
)

// DiscordFormatter formats alarms as a Discord embed.
type DiscordFormatter struct{}

// Platform returns the platform identifier.
func (f *DiscordFormatter) Platform() Platform {
	return PlatformDiscord
}

// Format transforms an alarm into Discord webhook JSON.
func (f *DiscordFormatter) Format(a types.AlarmDetails, opts FormatOptions) ([]byte, error) {
	title := alarmTitle(a)

	embed := DiscordEmbed{
		Title:       title,
		Description: a.Reason,
		Color:       stateColor(a.NewState),
		Fields: []DiscordField{
			{Name: "State", Value: transition(a), Inline: true},
			{Name: "Metric", Value: metricName(a.Trigger), Inline: true},
			{Name: "Condition", Value: condition(a.Trigger)},
			{Name: "Dimensions", Value: dimensions(a.Trigger)},
		},
		Footer:    &DiscordFooter{Text: productFooter},
		Timestamp: a.Timestamp,
	}
	if a.Description != "" {
		embed.Footer.Text = a.Description + " | " + productFooter
	}

	return json.Marshal(DiscordPayload{
		Username: opts.Username,
		Content:  title,
		Embeds:   []DiscordEmbed{embed},
	})
}

// ValidateResponse accepts any 2xx; Discord answers 204 No Content.
func (f *DiscordFormatter) ValidateResponse(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.Message != "" {
		return fmt.Errorf("discord: API error: %s", resp.Message)
	}
	return fmt.Errorf("discord: unexpected status %d: %s", statusCode, truncateBody(body))
}
