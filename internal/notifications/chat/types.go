package chat

import (
	"alarmrelay/internal/types"
)

// Platform identifies a chat webhook destination.
type Platform string

const (
	// PlatformGeneric posts the decoded alarm as plain JSON.
	PlatformGeneric Platform = "generic"

	// PlatformSlack represents Slack incoming webhooks.
	PlatformSlack Platform = "slack"

	// PlatformDiscord represents Discord webhook endpoints.
	PlatformDiscord Platform = "discord"

	// PlatformTeams represents Microsoft Teams Power Automate Workflows.
	PlatformTeams Platform = "teams"

	// PlatformGoogleChat represents Google Chat webhook endpoints.
	PlatformGoogleChat Platform = "google_chat"
)

// FormatOptions carries per-delivery presentation settings.
type FormatOptions struct {
	// Channel overrides the webhook's default channel. Only Slack honours it.
	Channel  string
	Username string
}

// Formatter turns an alarm into a platform-specific JSON payload.
type Formatter interface {
	Format(alarm types.AlarmDetails, opts FormatOptions) ([]byte, error)

	// Platform returns the identifier used in logs and metrics.
	Platform() Platform

	// ValidateResponse interprets the HTTP response to catch "soft failures"
	// (e.g. Slack returning 200 with a plain-text error).
	ValidateResponse(statusCode int, body []byte) error
}

// --- Slack (Block Kit) ---

// SlackPayload is the top-level Slack incoming webhook message.
type SlackPayload struct {
	Text     string       `json:"text"` // fallback for push notifications
	Channel  string       `json:"channel,omitempty"`
	Username string       `json:"username,omitempty"`
	Blocks   []SlackBlock `json:"blocks"`
}

// SlackBlock is a single Block Kit block.
type SlackBlock struct {
	Type     string       `json:"type"` // "section", "header", "context"
	Text     *SlackText   `json:"text,omitempty"`
	Fields   []*SlackText `json:"fields,omitempty"`
	Elements []*SlackText `json:"elements,omitempty"`
}

// SlackText is a Block Kit text object.
type SlackText struct {
	Type string `json:"type"` // "plain_text", "mrkdwn"
	Text string `json:"text"`
}

// --- Microsoft Teams (Adaptive Cards) ---

// TeamsPayload is the top-level Teams workflow message.
type TeamsPayload struct {
	Type        string            `json:"type"` // "message"
	Attachments []TeamsAttachment `json:"attachments"`
}

// TeamsAttachment wraps an Adaptive Card.
type TeamsAttachment struct {
	ContentType string       `json:"contentType"`
	Content     AdaptiveCard `json:"content"`
}

// AdaptiveCard is the Microsoft Adaptive Card structure.
type AdaptiveCard struct {
	Type    string         `json:"type"`
	Version string         `json:"version"`
	Body    []AdaptiveItem `json:"body"`
}

// AdaptiveItem is an element of the card body.
type AdaptiveItem struct {
	Type   string `json:"type"` // "TextBlock", "FactSet"
	Text   string `json:"text,omitempty"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Color  string `json:"color,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
	Facts  []Fact `json:"facts,omitempty"`
}

// Fact is a key-value pair in a FactSet.
type Fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// --- Discord (Embeds) ---

// DiscordPayload is the top-level Discord webhook message.
type DiscordPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content"`
	Embeds   []DiscordEmbed `json:"embeds"`
}

// DiscordEmbed is a rich embed.
type DiscordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Fields      []DiscordField `json:"fields"`
	Footer      *DiscordFooter `json:"footer,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

// DiscordField is a field within an embed.
type DiscordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordFooter is the footer of an embed.
type DiscordFooter struct {
	Text string `json:"text"`
}

// --- Google Chat (Cards) ---

// GoogleChatPayload is the top-level Google Chat card message.
type GoogleChatPayload struct {
	Text  string       `json:"text"`
	Cards []GoogleCard `json:"cards"`
}

// GoogleCard is a card in a Google Chat message.
type GoogleCard struct {
	Header   GoogleHeader    `json:"header"`
	Sections []GoogleSection `json:"sections"`
}

// GoogleHeader is the header of a card.
type GoogleHeader struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
}

// GoogleSection is a section within a card.
type GoogleSection struct {
	Header  string         `json:"header,omitempty"`
	Widgets []GoogleWidget `json:"widgets"`
}

// GoogleWidget is a widget in a card section.
type GoogleWidget struct {
	KeyValue      *GoogleKeyValue      `json:"keyValue,omitempty"`
	TextParagraph *GoogleTextParagraph `json:"textParagraph,omitempty"`
}

// GoogleKeyValue is a key-value widget.
type GoogleKeyValue struct {
	TopLabel string `json:"topLabel"`
	Content  string `json:"content"`
}

// GoogleTextParagraph is a text paragraph widget.
type GoogleTextParagraph struct {
	Text string `json:"text"`
}

// --- Generic ---

// GenericPayload is posted to webhooks of unknown platforms.
type GenericPayload struct {
	Source string             `json:"source"`
	Alarm  types.AlarmDetails `json:"alarm"`
}
