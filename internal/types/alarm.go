package types

// SubscriptionEnvelope is the part of an SNS SubscriptionConfirmation (or
// UnsubscribeConfirmation) body needed to confirm the subscription. Values
// are kept exactly as delivered.
type SubscriptionEnvelope struct {
	TopicArn     string `json:"TopicArn"`
	SubscribeURL string `json:"SubscribeURL"`
	// Timestamp is required on the wire but never checked for skew.
	Timestamp string `json:"Timestamp"`
}

// NotificationEnvelope is the outer SNS Notification body. Message holds the
// alarm document as a JSON string; TopicArn is empty when absent.
type NotificationEnvelope struct {
	TopicArn string `json:"TopicArn"`
	Message  string `json:"Message"`
}

// AlarmDetails is one CloudWatch alarm state transition, decoded from the
// JSON string carried in an SNS Notification's Message field.
type AlarmDetails struct {
	Name          string       `json:"AlarmName"`
	Description   string       `json:"AlarmDescription"`
	NewState      AlarmState   `json:"NewStateValue"`
	Reason        string       `json:"NewStateReason"`
	Timestamp     string       `json:"StateChangeTime"`
	PreviousState AlarmState   `json:"OldStateValue"`
	Trigger       AlarmTrigger `json:"Trigger"`
}

// AlarmTrigger describes the metric and threshold that drove the transition.
type AlarmTrigger struct {
	MetricName         string      `json:"MetricName"`
	Namespace          string      `json:"Namespace"`
	Statistic          string      `json:"Statistic"`
	Dimensions         []Dimension `json:"Dimensions"`
	ComparisonOperator string      `json:"ComparisonOperator"`
	Period             int         `json:"Period"`
	EvaluationPeriods  int         `json:"EvaluationPeriods"`
	Threshold          float64     `json:"Threshold"`
}

// Dimension is a metric dimension; slices of Dimension keep source order.
type Dimension struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DeliveryOptions carries per-request routing hints for sinks, taken from
// the inbound request (e.g. ?slack=#ops).
type DeliveryOptions struct {
	SlackChannel string
}
