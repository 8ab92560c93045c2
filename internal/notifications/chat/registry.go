package chat

import (
	"strings"
)

// Registry maps webhook URLs to platform formatters. It is read-only after
// construction and safe for concurrent use.
type Registry struct {
	formatters map[Platform]Formatter
}

// NewRegistry creates a Registry with all built-in formatters.
func NewRegistry() *Registry {
	return &Registry{
		formatters: map[Platform]Formatter{
			PlatformSlack:      &SlackFormatter{},
			PlatformTeams:      &TeamsFormatter{},
			PlatformDiscord:    &DiscordFormatter{},
			PlatformGoogleChat: &GoogleChatFormatter{},
			PlatformGeneric:    &GenericFormatter{},
		},
	}
}

// Detect picks the platform for url. A registered override wins; otherwise
// the host is matched against known webhook patterns:
//   - "hooks.slack.com" -> PlatformSlack
//   - "discord.com/api/webhooks" -> PlatformDiscord
//   - ".webhook.office.com" OR ".logic.azure.com" -> PlatformTeams
//   - "chat.googleapis.com" -> PlatformGoogleChat
//
// Anything else is PlatformGeneric.
func (r *Registry) Detect(url string, override string) Platform {
	if override != "" {
		p := Platform(override)
		if _, ok := r.formatters[p]; ok {
			return p
		}
	}

	lowerURL := strings.ToLower(url)
	switch {
	case strings.Contains(lowerURL, "hooks.slack.com"):
		return PlatformSlack
	case strings.Contains(lowerURL, "discord.com/api/webhooks"):
		return PlatformDiscord
	case strings.Contains(lowerURL, ".webhook.office.com"), strings.Contains(lowerURL, ".logic.azure.com"):
		return PlatformTeams
	case strings.Contains(lowerURL, "chat.googleapis.com"):
		return PlatformGoogleChat
	}
	return PlatformGeneric
}

// Get returns the formatter for p, falling back to the generic one.
func (r *Registry) Get(p Platform) Formatter {
	if f, ok := r.formatters[p]; ok {
		return f
	}
	return r.formatters[PlatformGeneric]
}

// CheckDeprecation reports known platform retirements for url. The sink logs
// the warning once at startup.
func (r *Registry) CheckDeprecation(url string) (warning string, deprecated bool) {
	if strings.Contains(strings.ToLower(url), ".webhook.office.com") {
		return "Teams Connectors are retiring. Migrate to Power Automate Workflows.", true
	}
	return "", false
}
