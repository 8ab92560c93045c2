// Package sns implements the inbound side of SNS HTTP(S) delivery: message
// classification from the x-amz-sns-message-type header, decoding of the
// subscription and notification envelopes (including the second decode of the
// JSON string carried in a notification's Message field), and the
// subscription-confirmation handshake.
package sns

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"alarmrelay/internal/types"
)

// Wire structs use pointers so that an absent field can be told apart from a
// present zero value; validator's "required" rejects nil pointers only.
// AlarmState fields are the exception: their zero value is not a valid state,
// and a non-pointer field routes an explicit null through UnmarshalJSON.

type subscriptionWire struct {
	TopicArn     *string `json:"TopicArn" validate:"required"`
	SubscribeURL *string `json:"SubscribeURL" validate:"required"`
	Timestamp    *string `json:"Timestamp" validate:"required"`
}

type notificationWire struct {
	Message *string `json:"Message" validate:"required"`
	// TopicArn is only consulted by the topic allow-list.
	TopicArn *string `json:"TopicArn"`
}

type alarmWire struct {
	Name          *string           `json:"AlarmName" validate:"required"`
	Description   *string           `json:"AlarmDescription" validate:"required"`
	NewState      types.AlarmState  `json:"NewStateValue" validate:"required"`
	Reason        *string           `json:"NewStateReason" validate:"required"`
	Timestamp     *string           `json:"StateChangeTime" validate:"required"`
	PreviousState types.AlarmState  `json:"OldStateValue" validate:"required"`
	Trigger       *triggerWire      `json:"Trigger" validate:"required"`
}

type triggerWire struct {
	MetricName         *string         `json:"MetricName" validate:"required"`
	Namespace          *string         `json:"Namespace" validate:"required"`
	Statistic          *string         `json:"Statistic" validate:"required"`
	Dimensions         []dimensionWire `json:"Dimensions" validate:"required,dive"`
	ComparisonOperator *string         `json:"ComparisonOperator" validate:"required"`
	Period             *int            `json:"Period" validate:"required"`
	EvaluationPeriods  *int            `json:"EvaluationPeriods" validate:"required"`
	Threshold          *float64        `json:"Threshold" validate:"required"`
}

type dimensionWire struct {
	Name  *string `json:"name" validate:"required"`
	Value *string `json:"value" validate:"required"`
}

// presence is the validator used for required-field checks. Field names in
// its errors are the JSON names.
var presence = sync.OnceValue(func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
})

// DecodeSubscription decodes a SubscriptionConfirmation or
// UnsubscribeConfirmation body. TopicArn, SubscribeURL and Timestamp are
// required; values are returned verbatim.
func DecodeSubscription(body []byte) (types.SubscriptionEnvelope, error) {
	var wire subscriptionWire
	if err := decodeStrict(body, &wire); err != nil {
		return types.SubscriptionEnvelope{}, err
	}
	return types.SubscriptionEnvelope{
		TopicArn:     *wire.TopicArn,
		SubscribeURL: *wire.SubscribeURL,
		Timestamp:    *wire.Timestamp,
	}, nil
}

// DecodeNotificationEnvelope decodes the outer Notification body and returns
// the embedded Message string. A Message that is not a JSON string (e.g. a
// bare number) fails here rather than being mistaken for the alarm document.
func DecodeNotificationEnvelope(body []byte) (string, error) {
	env, err := DecodeNotification(body)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// DecodeNotification is DecodeNotificationEnvelope that also returns the
// optional TopicArn.
func DecodeNotification(body []byte) (types.NotificationEnvelope, error) {
	var wire notificationWire
	if err := decodeStrict(body, &wire); err != nil {
		return types.NotificationEnvelope{}, err
	}
	env := types.NotificationEnvelope{Message: *wire.Message}
	if wire.TopicArn != nil {
		env.TopicArn = *wire.TopicArn
	}
	return env, nil
}

// DecodeAlarmDetails decodes the CloudWatch alarm document carried as a
// string in a notification's Message field (or an SNS->Lambda record).
func DecodeAlarmDetails(message string) (types.AlarmDetails, error) {
	var wire alarmWire
	if err := decodeStrict([]byte(message), &wire); err != nil {
		return types.AlarmDetails{}, err
	}

	dims := make([]types.Dimension, len(wire.Trigger.Dimensions))
	for i, d := range wire.Trigger.Dimensions {
		dims[i] = types.Dimension{Name: *d.Name, Value: *d.Value}
	}

	return types.AlarmDetails{
		Name:          *wire.Name,
		Description:   *wire.Description,
		NewState:      wire.NewState,
		Reason:        *wire.Reason,
		Timestamp:     *wire.Timestamp,
		PreviousState: wire.PreviousState,
		Trigger: types.AlarmTrigger{
			MetricName:         *wire.Trigger.MetricName,
			Namespace:          *wire.Trigger.Namespace,
			Statistic:          *wire.Trigger.Statistic,
			Dimensions:         dims,
			ComparisonOperator: *wire.Trigger.ComparisonOperator,
			Period:             *wire.Trigger.Period,
			EvaluationPeriods:  *wire.Trigger.EvaluationPeriods,
			Threshold:          *wire.Trigger.Threshold,
		},
	}, nil
}

// ParseNotification runs both decode stages on a Notification body.
func ParseNotification(body []byte) (types.AlarmDetails, error) {
	message, err := DecodeNotificationEnvelope(body)
	if err != nil {
		return types.AlarmDetails{}, err
	}
	return DecodeAlarmDetails(message)
}

// decodeStrict unmarshals data into dst and enforces exact key names and
// required fields. Every failure is returned as a *JSONError.
func decodeStrict(data []byte, dst any) error {
	if err := json.Unmarshal(data, dst); err != nil {
		jsonErr := &JSONError{Err: err}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			jsonErr.Field = typeErr.Field
		}
		return jsonErr
	}

	if err := checkKeys(data, reflect.TypeOf(dst), ""); err != nil {
		return err
	}

	if err := presence().Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			field := fieldPath(verrs[0].Namespace())
			return &JSONError{
				Field: field,
				Err:   fmt.Errorf("missing field `%s`", field),
			}
		}
		return &JSONError{Err: err}
	}
	return nil
}

// checkKeys walks the objects in data alongside the wire type t. encoding/json
// matches keys case-insensitively and keeps the last of repeated keys, so a
// key that differs from a field name only by case, or a repeated key, is
// rejected here. Keys unrelated to any field are ignored. data must already
// be valid JSON.
func checkKeys(data []byte, t reflect.Type, path string) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch t.Kind() {
	case reflect.Struct:
	case reflect.Slice:
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil
		}
		for i, item := range items {
			if err := checkKeys(item, t.Elem(), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil
	}

	fields := wireFields(t)
	seen := make(map[string]struct{})
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		key, _ := tok.(string)
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil
		}

		field := joinField(path, key)
		if _, dup := seen[key]; dup {
			return &JSONError{Field: field, Err: fmt.Errorf("duplicate field `%s`", key)}
		}
		seen[key] = struct{}{}

		ft, ok := fields[key]
		if !ok {
			for name := range fields {
				if strings.EqualFold(name, key) {
					return &JSONError{
						Field: field,
						Err:   fmt.Errorf("unknown field `%s`, expected `%s`", key, name),
					}
				}
			}
			continue
		}
		if err := checkKeys(value, ft, field); err != nil {
			return err
		}
	}
	return nil
}

// wireFields maps the JSON names of t's fields to their types.
func wireFields(t reflect.Type) map[string]reflect.Type {
	fields := make(map[string]reflect.Type, t.NumField())
	for i := range t.NumField() {
		f := t.Field(i)
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			continue
		}
		fields[name] = f.Type
	}
	return fields
}

func joinField(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// fieldPath drops the Go struct name that prefixes a validator namespace.
func fieldPath(namespace string) string {
	if _, rest, ok := strings.Cut(namespace, "."); ok {
		return rest
	}
	return namespace
}
