package chat

import (
	"fmt"
	"strconv"
	"strings"

	"alarmrelay/internal/types"
)

// Embed colors by alarm state (decimal for Discord, hex strings elsewhere).
const (
	colorAlarm        = 0xF44336 // Red
	colorOK           = 0x4CAF50 // Green
	colorInsufficient = 0x9E9E9E // Grey
)

const productFooter = "AlarmRelay"

// alarmTitle renders "ALARM: high-cpu".
func alarmTitle(a types.AlarmDetails) string {
	return fmt.Sprintf("%s: %s", a.NewState, a.Name)
}

func stateEmoji(s types.AlarmState) string {
	switch s {
	case types.AlarmStateAlarm:
		return ":rotating_light:"
	case types.AlarmStateOK:
		return ":white_check_mark:"
	default:
		return ":grey_question:"
	}
}

func stateColor(s types.AlarmState) int {
	switch s {
	case types.AlarmStateAlarm:
		return colorAlarm
	case types.AlarmStateOK:
		return colorOK
	default:
		return colorInsufficient
	}
}

// transition renders "OK -> ALARM".
func transition(a types.AlarmDetails) string {
	return fmt.Sprintf("%s -> %s", a.PreviousState, a.NewState)
}

// metricName renders "AWS/EC2 CPUUtilization".
func metricName(t types.AlarmTrigger) string {
	if t.Namespace == "" {
		return t.MetricName
	}
	return t.Namespace + " " + t.MetricName
}

var comparisonSymbols = map[string]string{
	"GreaterThanOrEqualToThreshold": ">=",
	"GreaterThanThreshold":          ">",
	"LessThanThreshold":             "<",
	"LessThanOrEqualToThreshold":    "<=",
}

// condition renders "Average > 80 for 2 x 300s". Unknown operators are shown
// verbatim.
func condition(t types.AlarmTrigger) string {
	op, ok := comparisonSymbols[t.ComparisonOperator]
	if !ok {
		op = t.ComparisonOperator
	}
	threshold := strconv.FormatFloat(t.Threshold, 'f', -1, 64)
	return fmt.Sprintf("%s %s %s for %d x %ds", t.Statistic, op, threshold, t.EvaluationPeriods, t.Period)
}

// dimensions renders "InstanceId=i-123, AutoScalingGroupName=web" in source
// order, or "none".
func dimensions(t types.AlarmTrigger) string {
	if len(t.Dimensions) == 0 {
		return "none"
	}
	parts := make([]string, len(t.Dimensions))
	for i, d := range t.Dimensions {
		parts[i] = d.Name + "=" + d.Value
	}
	return strings.Join(parts, ", ")
}

// truncateBody shortens a response body for error messages.
func truncateBody(body []byte) string {
	const maxLen = 200
	if len(body) > maxLen {
		return string(body[:maxLen]) + "..."
	}
	return string(body)
}
