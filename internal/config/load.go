package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/bdobrica/cmdgate/common/environment"
)

// Load reads the YAML configuration document at path, validates it against
// the embedded schema, applies environment overrides, and clamps
// rules.timeoutSeconds to its load-time and env-override floors.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse validates and decodes a YAML configuration document already read
// into memory. Exported separately from Load so tests can exercise it
// without a filesystem fixture.
func Parse(raw []byte) (Config, error) {
	var generic interface{}
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return Config{}, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validateAgainstSchema(generic); err != nil {
		return Config{}, fmt.Errorf("config: schema validation: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}

	if cfg.Rules.TimeoutSeconds < MinTimeoutSeconds {
		cfg.Rules.TimeoutSeconds = MinTimeoutSeconds
	}
	if cfg.Rules.DefaultAction == "" {
		cfg.Rules.DefaultAction = ActionDeny
	}

	applyEnvOverrides(&cfg)

	if err := validateVariantCredentials(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// validateAgainstSchema compiles the embedded schema fresh on every call.
// Config documents are loaded once per process at startup, so the cost of
// compiling the schema each time is irrelevant; it keeps the validator
// stateless and side-effect free.
func validateAgainstSchema(doc interface{}) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("cmdgate-config.json", strings.NewReader(documentSchema)); err != nil {
		return fmt.Errorf("compile embedded schema: %w", err)
	}
	schema, err := compiler.Compile("cmdgate-config.json")
	if err != nil {
		return fmt.Errorf("compile embedded schema: %w", err)
	}

	// jsonschema validates against JSON-native types (map[string]interface{},
	// []interface{}, json.Number, ...); yaml.Unmarshal into interface{}
	// produces map[string]interface{} with compatible scalar types, except
	// that it uses plain int/float64 rather than json.Number, which the
	// library accepts transparently. A JSON round trip normalizes any
	// remaining divergence (e.g. map[interface{}]interface{} from older
	// yaml.v2-style decodes, which yaml.v3 does not produce, but guarding
	// against it costs nothing).
	normalized, err := jsonRoundTrip(doc)
	if err != nil {
		return err
	}
	return schema.Validate(normalized)
}

func jsonRoundTrip(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}
	return out, nil
}

// applyEnvOverrides layers environment variables over the parsed document:
// *_SIGNING_SECRET, *_BOT_TOKEN, *_WEBHOOK_SECRET, *_AUTH_TOKEN,
// MACHINE_ID_SECRET, store URL and service credential. A timeout override
// from the environment is clamped to the stricter MinEnvTimeoutSeconds
// floor: the environment must never be used to weaken the coordinator
// deadline below what an operator would be allowed to configure in the file
// alone.
func applyEnvOverrides(cfg *Config) {
	cfg.MachineIDSecret = environment.StringOr("MACHINE_ID_SECRET", cfg.MachineIDSecret)
	cfg.Store.URL = environment.StringOr("STORE_URL", cfg.Store.URL)
	cfg.Store.AnonKey = environment.StringOr("STORE_ANON_KEY", cfg.Store.AnonKey)

	cfg.Messenger.Slack.SigningSecret = environment.StringOr("SLACK_SIGNING_SECRET", cfg.Messenger.Slack.SigningSecret)
	cfg.Messenger.Slack.WebhookURL = environment.StringOr("SLACK_WEBHOOK_SECRET", cfg.Messenger.Slack.WebhookURL)
	cfg.Messenger.Telegram.BotToken = environment.StringOr("TELEGRAM_BOT_TOKEN", cfg.Messenger.Telegram.BotToken)
	cfg.Messenger.Twilio.AuthToken = environment.StringOr("TWILIO_AUTH_TOKEN", cfg.Messenger.Twilio.AuthToken)

	if raw, ok := environment.String("RULES_TIMEOUT_SECONDS"); ok {
		if n, err := strconv.Atoi(raw); err == nil {
			if n < MinEnvTimeoutSeconds {
				n = MinEnvTimeoutSeconds
			}
			cfg.Rules.TimeoutSeconds = n
		}
	}
}

func validateVariantCredentials(cfg Config) error {
	switch cfg.Messenger.Type {
	case MessengerSlack:
		if cfg.Messenger.Slack.WebhookURL == "" || cfg.Messenger.Slack.SigningSecret == "" {
			return fmt.Errorf("config: messenger.slack requires webhookUrl and signingSecret")
		}
	case MessengerTelegram:
		if cfg.Messenger.Telegram.BotToken == "" || cfg.Messenger.Telegram.ChatID == 0 {
			return fmt.Errorf("config: messenger.telegram requires botToken and chatId")
		}
	case MessengerTwilio:
		if cfg.Messenger.Twilio.AccountSID == "" || cfg.Messenger.Twilio.AuthToken == "" {
			return fmt.Errorf("config: messenger.twilio requires accountSid and authToken")
		}
	default:
		return fmt.Errorf("config: unrecognized messenger.type %q", cfg.Messenger.Type)
	}
	return nil
}
