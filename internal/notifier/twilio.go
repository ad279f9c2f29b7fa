package notifier

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"golang.org/x/time/rate"

	"github.com/bdobrica/cmdgate/common/redact"
	"github.com/bdobrica/cmdgate/internal/config"
)

// twilioNotifier delivers approval prompts as inbound-SMS-style text
// messages: the channel has no interactive affordance, so the prompt
// instructs the recipient to reply "APPROVE <id>" or "REJECT <id>".
type twilioNotifier struct {
	cfg     config.TwilioConfig
	client  *twilio.RestClient
	limiter *rate.Limiter
}

func newTwilioNotifier(cfg config.TwilioConfig) *twilioNotifier {
	var client *twilio.RestClient
	if cfg.AccountSID != "" && cfg.AuthToken != "" {
		client = twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: cfg.AccountSID,
			Password: cfg.AuthToken,
		})
	}
	return &twilioNotifier{cfg: cfg, client: client, limiter: outboundLimiter()}
}

func (t *twilioNotifier) SendNotification(ctx context.Context, p Prompt) error {
	body := fmt.Sprintf(
		"Approval requested (%s): %s\n%s\ncwd: %s\nReply APPROVE %s or REJECT %s",
		p.Severity, p.MaskedCommand, p.Reason, p.CWD, p.RequestID, p.RequestID,
	)
	return t.sendSMS(ctx, body)
}

func (t *twilioNotifier) SendTest(ctx context.Context) error {
	return t.sendSMS(ctx, "cmdgate test notification")
}

// ProbeConnection has no lightweight bot-identity endpoint on Twilio; it
// authenticates by fetching the account resource, which fails with a 401 if
// the account SID / auth token pair is wrong.
func (t *twilioNotifier) ProbeConnection(ctx context.Context) (Identity, error) {
	if t.client == nil {
		return Identity{}, fmt.Errorf("notifier: twilio credentials not configured")
	}
	account, err := t.client.Api.FetchAccount(t.cfg.AccountSID, &openapi.FetchAccountParams{})
	if err != nil {
		return Identity{}, fmt.Errorf("notifier: twilio auth probe failed: %s", redact.String(err.Error(), t.cfg.AuthToken))
	}
	friendly := t.cfg.AccountSID
	if account != nil && account.FriendlyName != nil {
		friendly = *account.FriendlyName
	}
	return Identity{Handle: friendly}, nil
}

func (t *twilioNotifier) ValidateConfig() error {
	if t.cfg.AccountSID == "" || t.cfg.AuthToken == "" {
		return fmt.Errorf("notifier: twilio accountSid and authToken are required")
	}
	if t.cfg.FromNumber == "" || t.cfg.ToNumber == "" {
		return fmt.Errorf("notifier: twilio fromNumber and toNumber are required")
	}
	return nil
}

func (t *twilioNotifier) sendSMS(ctx context.Context, body string) error {
	if t.client == nil {
		return fmt.Errorf("notifier: twilio credentials not configured")
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notifier: twilio rate limiter: %w", err)
	}
	params := &openapi.CreateMessageParams{}
	params.SetTo(t.cfg.ToNumber)
	params.SetFrom(t.cfg.FromNumber)
	params.SetBody(body)
	if _, err := t.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("notifier: twilio send failed: %s", redact.String(err.Error(), t.cfg.AuthToken))
	}
	return nil
}
