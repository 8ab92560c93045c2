package chat

import (
	"encoding/json"
	"fmt"
	"strings"

	"alarmrelay/internal/types"
)

// SlackFormatter formats alarms as Slack Block Kit JSON.
type SlackFormatter struct{}

// Platform returns the platform identifier.
func (f *SlackFormatter) Platform() Platform {
	return PlatformSlack
}

// Format builds a header, a field grid, the state reason and a context
// footer. A non-empty opts.Channel is sent as the channel override.
func (f *SlackFormatter) Format(a types.AlarmDetails, opts FormatOptions) ([]byte, error) {
	title := alarmTitle(a)

	payload := SlackPayload{
		Text:     fmt.Sprintf("%s %s", stateEmoji(a.NewState), title),
		Channel:  opts.Channel,
		Username: opts.Username,
		Blocks: []SlackBlock{
			{
				Type: "header",
				Text: &SlackText{Type: "plain_text", Text: title},
			},
			{
				Type: "section",
				Fields: []*SlackText{
					{Type: "mrkdwn", Text: "*State*\n" + transition(a)},
					{Type: "mrkdwn", Text: "*Metric*\n" + metricName(a.Trigger)},
					{Type: "mrkdwn", Text: "*Condition*\n" + condition(a.Trigger)},
					{Type: "mrkdwn", Text: "*Dimensions*\n" + dimensions(a.Trigger)},
				},
			},
		},
	}

	if a.Reason != "" {
		payload.Blocks = append(payload.Blocks, SlackBlock{
			Type: "section",
			Text: &SlackText{Type: "mrkdwn", Text: a.Reason},
		})
	}

	footer := fmt.Sprintf("%s | %s", a.Timestamp, productFooter)
	if a.Description != "" {
		footer = a.Description + " | " + footer
	}
	payload.Blocks = append(payload.Blocks, SlackBlock{
		Type:     "context",
		Elements: []*SlackText{{Type: "mrkdwn", Text: footer}},
	})

	return json.Marshal(payload)
}

// slackErrors are the plain-text bodies Slack returns instead of "ok".
var slackErrors = []string{
	"no_text",
	"channel_not_found",
	"channel_is_archived",
	"invalid_payload",
	"too_many_attachments",
	"no_service",
	"no_active_hooks",
	"action_prohibited",
}

// ValidateResponse checks for Slack's soft failures: HTTP 200 with a JSON
// "ok": false or a known plain-text error.
func (f *SlackFormatter) ValidateResponse(statusCode int, body []byte) error {
	bodyStr := strings.TrimSpace(string(body))
	if statusCode < 200 || statusCode >= 300 {
		return fmt.Errorf("slack: unexpected status %d: %s", statusCode, truncateBody(body))
	}
	if bodyStr == "ok" || bodyStr == "" {
		return nil
	}

	var resp struct {
		OK    *bool  `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &resp); err == nil && resp.OK != nil && !*resp.OK {
		if resp.Error == "" {
			resp.Error = "unknown error"
		}
		return fmt.Errorf("slack: API error: %s", resp.Error)
	}

	for _, known := range slackErrors {
		if bodyStr == known {
			return fmt.Errorf("slack: API error: %s", bodyStr)
		}
	}
	return nil
}
