// Package notifier implements the chat-channel variant over the approval
// prompt: one shared behavior interface, one implementation per messenger
// type, and a factory keyed on configuration.
package notifier

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/bdobrica/cmdgate/internal/config"
)

// outboundLimit bounds calls to a provider's API per second, well under the
// generous limits chat providers document, so a burst of approval prompts
// never trips their own throttling.
const outboundLimit = 5

// outboundLimiter returns a fresh per-notifier throttle. Each notifier
// instance is long-lived for the process, so one limiter per instance is
// sufficient to shape its outbound call rate.
func outboundLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(outboundLimit), outboundLimit)
}

// Prompt is the content of one approval notification.
type Prompt struct {
	RequestID     string
	Severity      string
	Reason        string
	MaskedCommand string
	CWD           string
	Timestamp     time.Time
}

// Identity is the display handle a provider returns once its credentials
// have been authenticated.
type Identity struct {
	Handle string
}

// Notifier is the shared behavior every messenger variant implements.
type Notifier interface {
	// SendNotification delivers an approval prompt with approve/reject
	// affordances bound to p.RequestID.
	SendNotification(ctx context.Context, p Prompt) error
	// SendTest sends a no-op-effect message, used to confirm delivery works.
	SendTest(ctx context.Context) error
	// ProbeConnection authenticates credentials against the provider and
	// returns a display handle on success.
	ProbeConnection(ctx context.Context) (Identity, error)
	// ValidateConfig performs a purely structural check of the credentials,
	// with no network call.
	ValidateConfig() error
}

// New builds the Notifier variant selected by cfg.Messenger.Type.
func New(cfg config.MessengerConfig) (Notifier, error) {
	switch cfg.Type {
	case config.MessengerSlack:
		return newSlackNotifier(cfg.Slack), nil
	case config.MessengerTelegram:
		return newTelegramNotifier(cfg.Telegram)
	case config.MessengerTwilio:
		return newTwilioNotifier(cfg.Twilio), nil
	default:
		return nil, fmt.Errorf("notifier: unrecognized messenger type %q", cfg.Type)
	}
}
