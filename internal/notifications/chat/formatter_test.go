package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alarmrelay/internal/types"
)

// testAlarm returns a typical CPU alarm transition.
func testAlarm() types.AlarmDetails {
	return types.AlarmDetails{
		Name:          "high-cpu",
		Description:   "CPU above 80% on the web tier",
		NewState:      types.AlarmStateAlarm,
		Reason:        "Threshold Crossed: 2 datapoints were greater than the threshold (80.0).",
		Timestamp:     "2024-05-01T12:00:00.000+0000",
		PreviousState: types.AlarmStateOK,
		Trigger: types.AlarmTrigger{
			MetricName: "CPUUtilization",
			Namespace:  "AWS/EC2",
			Statistic:  "Average",
			Dimensions: []types.Dimension{
				{Name: "AutoScalingGroupName", Value: "web"},
				{Name: "InstanceId", Value: "i-0abc"},
			},
			ComparisonOperator: "GreaterThanThreshold",
			Period:             300,
			EvaluationPeriods:  2,
			Threshold:          80,
		},
	}
}

func TestHelpers(t *testing.T) {
	a := testAlarm()

	assert.Equal(t, "ALARM: high-cpu", alarmTitle(a))
	assert.Equal(t, "OK -> ALARM", transition(a))
	assert.Equal(t, "AWS/EC2 CPUUtilization", metricName(a.Trigger))
	assert.Equal(t, "Average > 80 for 2 x 300s", condition(a.Trigger))
	assert.Equal(t, "AutoScalingGroupName=web, InstanceId=i-0abc", dimensions(a.Trigger))

	a.Trigger.Dimensions = nil
	a.Trigger.ComparisonOperator = "LessThanLowerOrGreaterThanUpperThreshold"
	a.Trigger.Threshold = 0.25
	assert.Equal(t, "none", dimensions(a.Trigger))
	assert.Equal(t, "Average LessThanLowerOrGreaterThanUpperThreshold 0.25 for 2 x 300s", condition(a.Trigger))

	a.Trigger.Namespace = ""
	assert.Equal(t, "CPUUtilization", metricName(a.Trigger))
}

func TestStateColor(t *testing.T) {
	assert.Equal(t, colorAlarm, stateColor(types.AlarmStateAlarm))
	assert.Equal(t, colorOK, stateColor(types.AlarmStateOK))
	assert.Equal(t, colorInsufficient, stateColor(types.AlarmStateInsufficientData))
}

// --- Slack ---

func TestSlackFormatter_Format(t *testing.T) {
	f := &SlackFormatter{}

	data, err := f.Format(testAlarm(), FormatOptions{Channel: "#ops", Username: "AlarmRelay"})
	require.NoError(t, err)

	var payload SlackPayload
	require.NoError(t, json.Unmarshal(data, &payload))

	assert.Equal(t, ":rotating_light: ALARM: high-cpu", payload.Text)
	assert.Equal(t, "#ops", payload.Channel)
	assert.Equal(t, "AlarmRelay", payload.Username)

	require.Len(t, payload.Blocks, 4)
	assert.Equal(t, "header", payload.Blocks[0].Type)
	assert.Equal(t, "ALARM: high-cpu", payload.Blocks[0].Text.Text)

	require.Len(t, payload.Blocks[1].Fields, 4)
	assert.Equal(t, "*State*\nOK -> ALARM", payload.Blocks[1].Fields[0].Text)
	assert.Equal(t, "*Condition*\nAverage > 80 for 2 x 300s", payload.Blocks[1].Fields[2].Text)

	assert.Contains(t, payload.Blocks[2].Text.Text, "Threshold Crossed")

	assert.Equal(t, "context", payload.Blocks[3].Type)
	assert.Contains(t, payload.Blocks[3].Elements[0].Text, "CPU above 80%")
	assert.Contains(t, payload.Blocks[3].Elements[0].Text, "2024-05-01T12:00:00.000+0000")
}

func TestSlackFormatter_Format_OmitsEmptyOptionals(t *testing.T) {
	a := testAlarm()
	a.Reason = ""
	a.Description = ""

	data, err := (&SlackFormatter{}).Format(a, FormatOptions{})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.NotContains(t, raw, "channel")
	assert.NotContains(t, raw, "username")

	blocks := raw["blocks"].([]any)
	assert.Len(t, blocks, 3, "header, fields and footer only")
}

func TestSlackFormatter_ValidateResponse(t *testing.T) {
	f := &SlackFormatter{}

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr bool
	}{
		{"plain ok", 200, "ok", false},
		{"empty body", 200, "", false},
		{"json ok", 200, `{"ok":true}`, false},
		{"json not ok", 200, `{"ok":false,"error":"invalid_blocks"}`, true},
		{"json not ok without reason", 200, `{"ok":false}`, true},
		{"plain text error", 200, "channel_not_found", true},
		{"unknown text", 200, "accepted", false},
		{"client error", 404, "no_service", true},
		{"gone", 410, "no_active_hooks", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.ValidateResponse(tt.status, []byte(tt.body))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	err := f.ValidateResponse(200, []byte(`{"ok":false,"error":"invalid_blocks"}`))
	assert.EqualError(t, err, "slack: API error: invalid_blocks")
}

// --- Discord ---

func TestDiscordFormatter_Format(t *testing.T) {
	data, err := (&DiscordFormatter{}).Format(testAlarm(), FormatOptions{Channel: "#ignored", Username: "relay"})
	require.NoError(t, err)

	var payload DiscordPayload
	require.NoError(t, json.Unmarshal(data, &payload))

	assert.Equal(t, "relay", payload.Username)
	assert.Equal(t, "ALARM: high-cpu", payload.Content)
	require.Len(t, payload.Embeds, 1)

	embed := payload.Embeds[0]
	assert.Equal(t, colorAlarm, embed.Color)
	assert.Equal(t, "2024-05-01T12:00:00.000+0000", embed.Timestamp)
	assert.Contains(t, embed.Description, "Threshold Crossed")
	require.Len(t, embed.Fields, 4)
	assert.Equal(t, "OK -> ALARM", embed.Fields[0].Value)
	assert.Equal(t, "CPU above 80% on the web tier | AlarmRelay", embed.Footer.Text)
	assert.NotContains(t, string(data), "#ignored")
}

func TestDiscordFormatter_ValidateResponse(t *testing.T) {
	f := &DiscordFormatter{}
	assert.NoError(t, f.ValidateResponse(204, nil))
	assert.EqualError(t, f.ValidateResponse(404, []byte(`{"message":"Unknown Webhook","code":10015}`)),
		"discord: API error: Unknown Webhook")
	assert.Error(t, f.ValidateResponse(400, []byte("bad")))
}

// --- Teams ---

func TestTeamsFormatter_Format(t *testing.T) {
	data, err := (&TeamsFormatter{}).Format(testAlarm(), FormatOptions{})
	require.NoError(t, err)

	var payload TeamsPayload
	require.NoError(t, json.Unmarshal(data, &payload))

	assert.Equal(t, "message", payload.Type)
	require.Len(t, payload.Attachments, 1)
	assert.Equal(t, "application/vnd.microsoft.card.adaptive", payload.Attachments[0].ContentType)

	card := payload.Attachments[0].Content
	assert.Equal(t, "AdaptiveCard", card.Type)
	require.GreaterOrEqual(t, len(card.Body), 2)
	assert.Equal(t, "ALARM: high-cpu", card.Body[0].Text)
	assert.Equal(t, "Attention", card.Body[0].Color)
	assert.Equal(t, "FactSet", card.Body[1].Type)
	assert.Equal(t, Fact{Title: "Metric", Value: "AWS/EC2 CPUUtilization"}, card.Body[1].Facts[1])
}

func TestTeamsFormatter_OKIsGood(t *testing.T) {
	a := testAlarm()
	a.NewState, a.PreviousState = types.AlarmStateOK, types.AlarmStateAlarm

	data, err := (&TeamsFormatter{}).Format(a, FormatOptions{})
	require.NoError(t, err)

	var payload TeamsPayload
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, "Good", payload.Attachments[0].Content.Body[0].Color)
}

// --- Google Chat ---

func TestGoogleChatFormatter_Format(t *testing.T) {
	data, err := (&GoogleChatFormatter{}).Format(testAlarm(), FormatOptions{})
	require.NoError(t, err)

	var payload GoogleChatPayload
	require.NoError(t, json.Unmarshal(data, &payload))

	assert.Equal(t, "ALARM: high-cpu", payload.Text)
	require.Len(t, payload.Cards, 1)
	assert.Equal(t, "2024-05-01T12:00:00.000+0000", payload.Cards[0].Header.Subtitle)
	require.Len(t, payload.Cards[0].Sections, 2)
	assert.Equal(t, "State", payload.Cards[0].Sections[0].Widgets[0].KeyValue.TopLabel)
	assert.Equal(t, "Reason", payload.Cards[0].Sections[1].Header)
}

func TestGoogleChatFormatter_ValidateResponse(t *testing.T) {
	f := &GoogleChatFormatter{}
	assert.NoError(t, f.ValidateResponse(200, []byte(`{}`)))
	assert.EqualError(t, f.ValidateResponse(403, []byte(`{"error":{"code":403,"message":"Permission denied"}}`)),
		"google chat: API error: Permission denied")
}

// --- Generic ---

func TestGenericFormatter_Format(t *testing.T) {
	data, err := (&GenericFormatter{}).Format(testAlarm(), FormatOptions{})
	require.NoError(t, err)

	var raw struct {
		Source string         `json:"source"`
		Alarm  map[string]any `json:"alarm"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "aws.cloudwatch", raw.Source)
	assert.Equal(t, "high-cpu", raw.Alarm["AlarmName"])
	assert.Equal(t, "ALARM", raw.Alarm["NewStateValue"])
	assert.Equal(t, "OK", raw.Alarm["OldStateValue"])
}

func TestGenericFormatter_RejectsZeroState(t *testing.T) {
	a := testAlarm()
	a.NewState = 0

	_, err := (&GenericFormatter{}).Format(a, FormatOptions{})
	assert.Error(t, err)
}

func TestTruncateBody(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'x'
	}
	assert.Len(t, truncateBody(long), 203)
	assert.Equal(t, "short", truncateBody([]byte("short")))
}
