package notifier

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/bdobrica/cmdgate/common/redact"
	"github.com/bdobrica/cmdgate/internal/config"
)

// telegramNotifier delivers approval prompts through the Telegram bot API,
// with inline-keyboard approve/reject buttons whose callback_data carries
// the action and request id.
type telegramNotifier struct {
	cfg     config.TelegramConfig
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
}

func newTelegramNotifier(cfg config.TelegramConfig) (*telegramNotifier, error) {
	if cfg.BotToken == "" {
		return &telegramNotifier{cfg: cfg, limiter: outboundLimiter()}, nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("notifier: telegram bot init failed: %s", redact.String(err.Error(), cfg.BotToken))
	}
	bot.Debug = false
	return &telegramNotifier{cfg: cfg, bot: bot, limiter: outboundLimiter()}, nil
}

func (t *telegramNotifier) SendNotification(ctx context.Context, p Prompt) error {
	text := fmt.Sprintf(
		"Approval requested (%s)\n```\n%s\n```\n%s\ncwd: %s\nrequested at: %s",
		p.Severity, p.MaskedCommand, p.Reason, p.CWD, p.Timestamp.UTC().Format(time.RFC3339),
	)
	msg := tgbotapi.NewMessage(t.cfg.ChatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Approve", "approve:"+p.RequestID),
			tgbotapi.NewInlineKeyboardButtonData("Reject", "reject:"+p.RequestID),
		),
	)
	msg.ReplyMarkup = keyboard
	_, err := t.send(ctx, msg)
	return err
}

func (t *telegramNotifier) SendTest(ctx context.Context) error {
	_, err := t.send(ctx, tgbotapi.NewMessage(t.cfg.ChatID, "cmdgate test notification"))
	return err
}

func (t *telegramNotifier) ProbeConnection(ctx context.Context) (Identity, error) {
	if t.bot == nil {
		return Identity{}, fmt.Errorf("notifier: telegram bot token not configured")
	}
	me, err := t.bot.GetMe()
	if err != nil {
		return Identity{}, fmt.Errorf("notifier: telegram auth probe failed: %s", redact.String(err.Error(), t.cfg.BotToken))
	}
	return Identity{Handle: "@" + me.UserName}, nil
}

func (t *telegramNotifier) ValidateConfig() error {
	if t.cfg.BotToken == "" {
		return fmt.Errorf("notifier: telegram botToken is required")
	}
	if t.cfg.ChatID == 0 {
		return fmt.Errorf("notifier: telegram chatId is required")
	}
	return nil
}

func (t *telegramNotifier) send(ctx context.Context, msg tgbotapi.MessageConfig) (tgbotapi.Message, error) {
	if t.bot == nil {
		return tgbotapi.Message{}, fmt.Errorf("notifier: telegram bot token not configured")
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return tgbotapi.Message{}, fmt.Errorf("notifier: telegram rate limiter: %w", err)
	}
	sent, err := t.bot.Send(msg)
	if err != nil {
		return tgbotapi.Message{}, fmt.Errorf("notifier: telegram send failed: %s", redact.String(err.Error(), t.cfg.BotToken))
	}
	return sent, nil
}
