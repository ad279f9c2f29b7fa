package notifier_test

import (
	"testing"

	"github.com/bdobrica/cmdgate/internal/config"
	"github.com/bdobrica/cmdgate/internal/notifier"
)

func TestNew_UnrecognizedTypeErrors(t *testing.T) {
	_, err := notifier.New(config.MessengerConfig{Type: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unrecognized messenger type")
	}
}

func TestSlack_ValidateConfig(t *testing.T) {
	n, err := notifier.New(config.MessengerConfig{
		Type: config.MessengerSlack,
		Slack: config.SlackConfig{
			WebhookURL:    "https://hooks.slack.example/services/x",
			SigningSecret: "shh",
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.ValidateConfig(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestSlack_ValidateConfig_MissingSigningSecret(t *testing.T) {
	n, err := notifier.New(config.MessengerConfig{
		Type:  config.MessengerSlack,
		Slack: config.SlackConfig{WebhookURL: "https://hooks.slack.example/services/x"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.ValidateConfig(); err == nil {
		t.Fatal("expected validation error for missing signingSecret")
	}
}

func TestTelegram_ValidateConfig_MissingChatID(t *testing.T) {
	n, err := notifier.New(config.MessengerConfig{
		Type:     config.MessengerTelegram,
		Telegram: config.TelegramConfig{BotToken: "123:abc"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.ValidateConfig(); err == nil {
		t.Fatal("expected validation error for missing chatId")
	}
}

func TestTwilio_ValidateConfig(t *testing.T) {
	n, err := notifier.New(config.MessengerConfig{
		Type: config.MessengerTwilio,
		Twilio: config.TwilioConfig{
			AccountSID: "ACxxxx",
			AuthToken:  "token",
			FromNumber: "+15550000000",
			ToNumber:   "+15550000001",
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := n.ValidateConfig(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
