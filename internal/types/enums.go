package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// EnumTag binds a literal wire tag to its enum variant.
type EnumTag[V comparable] struct {
	Tag   string
	Value V
}

// EnumRegistry is an immutable lookup table from literal tags to the variants
// of a single enum domain. It is built once and only read afterwards, so
// concurrent lookups need no locking.
type EnumRegistry[V comparable] struct {
	domain  string
	entries []EnumTag[V]
	byTag   map[string]V
	byValue map[V]string
}

// NewEnumRegistry builds a registry for the given domain. Tags are matched
// exactly and case-sensitively. It panics on a duplicate tag or variant since
// registries are declared statically.
func NewEnumRegistry[V comparable](domain string, entries ...EnumTag[V]) *EnumRegistry[V] {
	r := &EnumRegistry[V]{
		domain:  domain,
		entries: make([]EnumTag[V], 0, len(entries)),
		byTag:   make(map[string]V, len(entries)),
		byValue: make(map[V]string, len(entries)),
	}
	for _, e := range entries {
		if _, dup := r.byTag[e.Tag]; dup {
			panic(fmt.Sprintf("enum registry %s: duplicate tag %q", domain, e.Tag))
		}
		if _, dup := r.byValue[e.Value]; dup {
			panic(fmt.Sprintf("enum registry %s: duplicate variant for tag %q", domain, e.Tag))
		}
		r.entries = append(r.entries, e)
		r.byTag[e.Tag] = e.Value
		r.byValue[e.Value] = e.Tag
	}
	return r
}

// Domain returns the registry's domain name (e.g. "MessageType").
func (r *EnumRegistry[V]) Domain() string {
	return r.domain
}

// Lookup resolves tag to its variant. A miss returns an *EnumParseError
// carrying the offending tag and the full allowed set.
func (r *EnumRegistry[V]) Lookup(tag string) (V, error) {
	if v, ok := r.byTag[tag]; ok {
		return v, nil
	}
	var zero V
	return zero, r.parseError(tag)
}

// Tag is the reverse lookup, used for diagnostics and marshalling.
func (r *EnumRegistry[V]) Tag(v V) (string, bool) {
	tag, ok := r.byValue[v]
	return tag, ok
}

// Tags returns the allowed tags in declaration order.
func (r *EnumRegistry[V]) Tags() []string {
	tags := make([]string, len(r.entries))
	for i, e := range r.entries {
		tags[i] = e.Tag
	}
	return tags
}

func (r *EnumRegistry[V]) parseError(value string) *EnumParseError[V] {
	mapping := make([]EnumTag[V], len(r.entries))
	copy(mapping, r.entries)
	return &EnumParseError[V]{
		Value:   value,
		Domain:  r.domain,
		Mapping: mapping,
	}
}

// EnumParseError reports a tag that is not part of an enum domain. It carries
// the complete allowed mapping so callers can render a precise diagnostic.
type EnumParseError[V comparable] struct {
	Value   string
	Domain  string
	Mapping []EnumTag[V]
}

// Error implements the error interface.
func (e *EnumParseError[V]) Error() string {
	return fmt.Sprintf("'%s' does not match allowed enum values: %s", e.Value, strings.Join(e.Allowed(), " | "))
}

// Allowed returns the allowed tags in declaration order.
func (e *EnumParseError[V]) Allowed() []string {
	tags := make([]string, len(e.Mapping))
	for i, m := range e.Mapping {
		tags[i] = m.Tag
	}
	return tags
}

// OffendingValue returns the tag that failed to resolve.
func (e *EnumParseError[V]) OffendingValue() string { return e.Value }

// AllowedValues returns the allowed tags without exposing the variant type.
func (e *EnumParseError[V]) AllowedValues() []string { return e.Allowed() }

// EnumDomain names the domain the lookup failed in.
func (e *EnumParseError[V]) EnumDomain() string { return e.Domain }

// EnumError is implemented by every EnumParseError instantiation.
type EnumError interface {
	error
	OffendingValue() string
	AllowedValues() []string
	EnumDomain() string
}

// DecodeEnumString is the string-then-enum adapter used by UnmarshalJSON
// implementations of enum types embedded in JSON documents. The raw value
// must be a JSON string; anything else fails with "<Domain> expects a string"
// before the registry is consulted.
func DecodeEnumString[V comparable](data []byte, reg *EnumRegistry[V]) (V, error) {
	var zero V
	var tag string
	trimmed := strings.TrimSpace(string(data))
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return zero, fmt.Errorf("%s expects a string", reg.Domain())
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return zero, fmt.Errorf("%s expects a string: %w", reg.Domain(), err)
	}
	return reg.Lookup(tag)
}

// encodeEnumString is the inverse of DecodeEnumString.
func encodeEnumString[V comparable](v V, reg *EnumRegistry[V]) ([]byte, error) {
	tag, ok := reg.Tag(v)
	if !ok {
		return nil, fmt.Errorf("%s: value is not a registered variant", reg.Domain())
	}
	return json.Marshal(tag)
}

// MessageType is the SNS delivery kind signalled by the
// x-amz-sns-message-type header. The zero value is not a valid variant.
type MessageType int

const (
	_ MessageType = iota
	MessageTypeNotification
	MessageTypeSubscriptionConfirmation
	MessageTypeUnsubscribeConfirmation
)

var messageTypes = sync.OnceValue(func() *EnumRegistry[MessageType] {
	return NewEnumRegistry("MessageType",
		EnumTag[MessageType]{Tag: "Notification", Value: MessageTypeNotification},
		EnumTag[MessageType]{Tag: "SubscriptionConfirmation", Value: MessageTypeSubscriptionConfirmation},
		EnumTag[MessageType]{Tag: "UnsubscribeConfirmation", Value: MessageTypeUnsubscribeConfirmation},
	)
})

// MessageTypes returns the process-wide MessageType registry.
func MessageTypes() *EnumRegistry[MessageType] {
	return messageTypes()
}

// ParseMessageType resolves a header tag to a MessageType.
func ParseMessageType(tag string) (MessageType, error) {
	return messageTypes().Lookup(tag)
}

// String returns the wire tag, or "invalid" for the zero value.
func (m MessageType) String() string {
	if tag, ok := messageTypes().Tag(m); ok {
		return tag
	}
	return "invalid"
}

// UnmarshalJSON decodes a MessageType from its JSON string tag.
func (m *MessageType) UnmarshalJSON(data []byte) error {
	v, err := DecodeEnumString(data, messageTypes())
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// MarshalJSON encodes a MessageType as its string tag.
func (m MessageType) MarshalJSON() ([]byte, error) {
	return encodeEnumString(m, messageTypes())
}

// AlarmState is the CloudWatch alarm state. The zero value is not a valid
// variant.
type AlarmState int

const (
	_ AlarmState = iota
	AlarmStateOK
	AlarmStateAlarm
	AlarmStateInsufficientData
)

var alarmStates = sync.OnceValue(func() *EnumRegistry[AlarmState] {
	return NewEnumRegistry("AlarmState",
		EnumTag[AlarmState]{Tag: "OK", Value: AlarmStateOK},
		EnumTag[AlarmState]{Tag: "ALARM", Value: AlarmStateAlarm},
		EnumTag[AlarmState]{Tag: "INSUFFICIENT_DATA", Value: AlarmStateInsufficientData},
	)
})

// AlarmStates returns the process-wide AlarmState registry.
func AlarmStates() *EnumRegistry[AlarmState] {
	return alarmStates()
}

// ParseAlarmState resolves a literal tag ("OK", "ALARM",
// "INSUFFICIENT_DATA") to an AlarmState.
func ParseAlarmState(tag string) (AlarmState, error) {
	return alarmStates().Lookup(tag)
}

// String returns the wire tag, or "invalid" for the zero value.
func (s AlarmState) String() string {
	if tag, ok := alarmStates().Tag(s); ok {
		return tag
	}
	return "invalid"
}

// UnmarshalJSON decodes an AlarmState via the string-then-enum adapter.
func (s *AlarmState) UnmarshalJSON(data []byte) error {
	v, err := DecodeEnumString(data, alarmStates())
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// MarshalJSON encodes an AlarmState as its string tag.
func (s AlarmState) MarshalJSON() ([]byte, error) {
	return encodeEnumString(s, alarmStates())
}
