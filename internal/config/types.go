// Package config loads and validates the approval-gate configuration
// document: messenger selection and credentials, store endpoint, rule-engine
// extensions, and the machine-identity shared secret.
package config

import "time"

// MessengerType selects which notifier variant is active.
type MessengerType string

const (
	MessengerSlack    MessengerType = "slack"
	MessengerTelegram MessengerType = "telegram"
	MessengerTwilio   MessengerType = "twilio"
)

// DefaultAction is the fallback decision chosen once per request, on
// notification failure or on timeout.
type DefaultAction string

const (
	ActionAllow DefaultAction = "allow"
	ActionDeny  DefaultAction = "deny"
)

// MinTimeoutSeconds is the floor enforced at config load time.
const MinTimeoutSeconds = 10

// MinEnvTimeoutSeconds is the stricter floor enforced when the timeout is
// overridden from the environment (the environment override must not let an
// operator weaken the coordinator deadline below what a careful config file
// would allow).
const MinEnvTimeoutSeconds = 60

// Config is the fully loaded, validated, and clamped configuration document.
type Config struct {
	Messenger MessengerConfig `yaml:"messenger"`
	Store     StoreConfig     `yaml:"store"`
	Rules     RulesConfig     `yaml:"rules"`

	// MachineIDSecret is the HMAC shared secret used to sign the machine
	// identity attached to every approval row.
	MachineIDSecret string `yaml:"machineIdSecret"`
}

// MessengerConfig selects and configures exactly one chat-notifier variant.
type MessengerConfig struct {
	Type     MessengerType  `yaml:"type"`
	Slack    SlackConfig    `yaml:"slack"`
	Telegram TelegramConfig `yaml:"telegram"`
	Twilio   TwilioConfig   `yaml:"twilio"`
}

// SlackConfig holds the credentials for the signed-body webhook provider.
type SlackConfig struct {
	WebhookURL    string `yaml:"webhookUrl"`
	SigningSecret string `yaml:"signingSecret"`
	Channel       string `yaml:"channel"`
}

// TelegramConfig holds the credentials for the bot-API provider.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   int64  `yaml:"chatId"`
}

// TwilioConfig holds the credentials for the inbound-SMS-style provider.
type TwilioConfig struct {
	AccountSID string `yaml:"accountSid"`
	AuthToken  string `yaml:"authToken"`
	FromNumber string `yaml:"fromNumber"`
	ToNumber   string `yaml:"toNumber"`
}

// StoreConfig points at the row-keyed store.
type StoreConfig struct {
	URL     string `yaml:"url"`
	AnonKey string `yaml:"anonKey"`
}

// RulesConfig configures the coordinator deadline, the fail-open/closed
// posture, and rule-engine extensions.
type RulesConfig struct {
	TimeoutSeconds int           `yaml:"timeoutSeconds"`
	DefaultAction  DefaultAction `yaml:"defaultAction"`
	CustomPatterns []PatternSpec `yaml:"customPatterns"`
	Whitelist      []string      `yaml:"whitelist"`
}

// PatternSpec is the YAML/JSON shape of one rules.customPatterns[] entry.
type PatternSpec struct {
	Pattern  string `yaml:"pattern"`
	Severity string `yaml:"severity"`
	Reason   string `yaml:"reason"`
}

// Timeout returns the coordinator deadline as a time.Duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Rules.TimeoutSeconds) * time.Second
}
