package verifier

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bdobrica/cmdgate/common/observability"
	"github.com/bdobrica/cmdgate/common/redact"
)

// TelegramHandler serves the bot-API provider's callback_query webhook.
type TelegramHandler struct {
	Pipeline    *Pipeline
	SecretToken string

	bot *tgbotapi.BotAPI
}

// NewTelegramHandler builds a TelegramHandler. botToken is optional: without
// it the handler still resolves callbacks, it just cannot strip the
// approve/reject keyboard from the original message afterward.
func NewTelegramHandler(p *Pipeline, secretToken, botToken string) (*TelegramHandler, error) {
	h := &TelegramHandler{Pipeline: p, SecretToken: secretToken}
	if botToken == "" {
		return h, nil
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("verifier: telegram bot init failed: %s", redact.String(err.Error(), botToken))
	}
	h.bot = bot
	return h, nil
}

type telegramUpdate struct {
	UpdateID      int64 `json:"update_id"`
	CallbackQuery struct {
		ID   string `json:"id"`
		From struct {
			ID        int64  `json:"id"`
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
			Username  string `json:"username"`
		} `json:"from"`
		Message struct {
			MessageID int    `json:"message_id"`
			Text      string `json:"text"`
			Chat      struct {
				ID int64 `json:"id"`
			} `json:"chat"`
		} `json:"message"`
		Data string `json:"data"`
	} `json:"callback_query"`
}

func (h *TelegramHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := RequestContext(r)

	identifier := ClientIdentifier(r)
	if allowed, err := h.Pipeline.CheckRateLimit(ctx, identifier); err != nil {
		observability.WithTrace(ctx).Warn("verifier: rate limit check failed, fail-open", "error", err)
	} else if !allowed {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
		return
	}

	if h.SecretToken == "" {
		http.Error(w, "telegram webhook secret not configured", http.StatusInternalServerError)
		return
	}
	token := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.SecretToken)) != 1 {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var update telegramUpdate
	if err := json.Unmarshal(body, &update); err != nil || update.CallbackQuery.Data == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	parts := strings.SplitN(update.CallbackQuery.Data, ":", 2)
	if len(parts) != 2 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	action, ok := ParseAction(parts[0])
	requestID := parts[1]
	if !ok || !ValidateRequestID(requestID) {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	handle := update.CallbackQuery.From.Username
	if handle == "" {
		handle = strings.TrimSpace(update.CallbackQuery.From.FirstName + " " + update.CallbackQuery.From.LastName)
	}
	if handle == "" {
		handle = strconv.FormatInt(update.CallbackQuery.From.ID, 10)
	}

	outcome := h.Pipeline.Resolve(ctx, requestID, action, handle)
	if h.bot != nil && outcome.Status == http.StatusOK {
		h.updateOriginalMessage(ctx, update, outcome.Message)
	}
	http.Error(w, outcome.Message, outcome.Status)
}

// updateOriginalMessage answers the callback query (dismissing the client's
// loading spinner) and edits the original message to strip the inline
// approve/reject keyboard and append the verdict and actor, the same
// closing-the-loop step Slack performs via response_url.
func (h *TelegramHandler) updateOriginalMessage(ctx context.Context, update telegramUpdate, verdict string) {
	callback := tgbotapi.NewCallback(update.CallbackQuery.ID, verdict)
	if _, err := h.bot.Request(callback); err != nil {
		observability.WithTrace(ctx).Warn("verifier: telegram answerCallbackQuery failed", "error", err)
	}

	chatID := update.CallbackQuery.Message.Chat.ID
	messageID := update.CallbackQuery.Message.MessageID
	text := update.CallbackQuery.Message.Text
	if text != "" {
		text = text + "\n\n" + verdict
	} else {
		text = verdict
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, tgbotapi.NewInlineKeyboardMarkup())
	if _, err := h.bot.Send(edit); err != nil {
		observability.WithTrace(ctx).Warn("verifier: telegram edit message failed", "error", err)
	}
}
