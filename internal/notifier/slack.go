package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/time/rate"

	"github.com/bdobrica/cmdgate/common/redact"
	"github.com/bdobrica/cmdgate/common/retry"
	"github.com/bdobrica/cmdgate/internal/config"
)

// slackNotifier delivers approval prompts through an incoming webhook, with
// interactive approve/reject buttons carried as Block Kit actions.
type slackNotifier struct {
	cfg     config.SlackConfig
	limiter *rate.Limiter
}

func newSlackNotifier(cfg config.SlackConfig) *slackNotifier {
	return &slackNotifier{cfg: cfg, limiter: outboundLimiter()}
}

func (s *slackNotifier) SendNotification(ctx context.Context, p Prompt) error {
	msg := &slack.WebhookMessage{
		Channel: s.cfg.Channel,
		Blocks: &slack.Blocks{
			BlockSet: []slack.Block{
				slack.NewSectionBlock(
					slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf(
						"*Approval requested* (%s)\n```%s```\n%s\ncwd: `%s`\nrequested at: %s",
						p.Severity, p.MaskedCommand, p.Reason, p.CWD, p.Timestamp.UTC().Format(time.RFC3339),
					), false, false),
					nil, nil,
				),
				slack.NewActionBlock("",
					slack.NewButtonBlockElement("approve_command", p.RequestID,
						slack.NewTextBlockObject(slack.PlainTextType, "Approve", false, false)),
					slack.NewButtonBlockElement("reject_command", p.RequestID,
						slack.NewTextBlockObject(slack.PlainTextType, "Reject", false, false)),
				),
			},
		},
	}
	return s.post(ctx, msg)
}

func (s *slackNotifier) SendTest(ctx context.Context) error {
	return s.post(ctx, &slack.WebhookMessage{Channel: s.cfg.Channel, Text: "cmdgate test notification"})
}

// ProbeConnection has no bot-identity endpoint to call when only an
// incoming-webhook URL is configured (there is no bearer token to present to
// auth.test); it proves the credential works by actually delivering a test
// message and reporting the webhook itself as the identity.
func (s *slackNotifier) ProbeConnection(ctx context.Context) (Identity, error) {
	if err := s.SendTest(ctx); err != nil {
		return Identity{}, err
	}
	return Identity{Handle: "slack-webhook:" + s.cfg.Channel}, nil
}

func (s *slackNotifier) ValidateConfig() error {
	if s.cfg.WebhookURL == "" {
		return fmt.Errorf("notifier: slack webhookUrl is required")
	}
	if s.cfg.SigningSecret == "" {
		return fmt.Errorf("notifier: slack signingSecret is required")
	}
	return nil
}

func (s *slackNotifier) post(ctx context.Context, msg *slack.WebhookMessage) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notifier: slack rate limiter: %w", err)
	}
	err := retry.Do(ctx, retry.DefaultConfig, func() error {
		return slack.PostWebhookContext(ctx, s.cfg.WebhookURL, msg)
	})
	if err != nil {
		return fmt.Errorf("notifier: slack post failed: %s", redact.String(err.Error(), s.cfg.SigningSecret))
	}
	return nil
}
