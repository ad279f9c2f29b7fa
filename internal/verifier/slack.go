package verifier

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bdobrica/cmdgate/common/observability"
)

// SlackHandler serves the signed-body provider's interactive-component
// callback: POST, application/x-www-form-urlencoded with a `payload` field
// carrying the block_actions JSON.
type SlackHandler struct {
	Pipeline      *Pipeline
	SigningSecret string
}

type slackPayload struct {
	Type string `json:"type"`
	User struct {
		Username string `json:"username"`
		Name     string `json:"name"`
		ID       string `json:"id"`
	} `json:"user"`
	Actions []struct {
		ActionID string `json:"action_id"`
		Value    string `json:"value"`
	} `json:"actions"`
	ResponseURL string `json:"response_url"`
}

func (h *SlackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	rawBody, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	ts := r.Header.Get("X-Slack-Request-Timestamp")
	sig := r.Header.Get("X-Slack-Signature")
	if ts == "" || sig == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !h.verifySignature(ts, sig, rawBody) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	values, err := url.ParseQuery(string(rawBody))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	var payload slackPayload
	if err := json.Unmarshal([]byte(values.Get("payload")), &payload); err != nil || len(payload.Actions) == 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	action, ok := actionFromSlackID(payload.Actions[0].ActionID)
	requestID := payload.Actions[0].Value
	if !ok || !ValidateRequestID(requestID) {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	handle := payload.User.Username
	if handle == "" {
		handle = payload.User.Name
	}
	if handle == "" {
		handle = payload.User.ID
	}

	outcome := h.Pipeline.Resolve(ctx, requestID, action, handle)
	if payload.ResponseURL != "" && outcome.Status == http.StatusOK {
		h.updateOriginalMessage(ctx, payload.ResponseURL, outcome.Message)
	}
	http.Error(w, outcome.Message, outcome.Status)
}

// updateOriginalMessage replaces the original interactive message via Slack's
// response_url: the approve/reject buttons disappear because the new message
// carries no action block, and the text becomes the resolution verdict.
func (h *SlackHandler) updateOriginalMessage(ctx context.Context, responseURL, text string) {
	body, err := json.Marshal(struct {
		Text            string `json:"text"`
		ReplaceOriginal bool   `json:"replace_original"`
	}{Text: text, ReplaceOriginal: true})
	if err != nil {
		observability.WithTrace(ctx).Warn("verifier: slack response_url marshal failed", "error", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, responseURL, bytes.NewReader(body))
	if err != nil {
		observability.WithTrace(ctx).Warn("verifier: slack response_url request build failed", "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		observability.WithTrace(ctx).Warn("verifier: slack response_url post failed", "error", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		observability.WithTrace(ctx).Warn("verifier: slack response_url post rejected", "status", resp.StatusCode)
	}
}

// verifySignature checks "v0:" + timestamp + ":" + body against the
// X-Slack-Signature header within a 300s freshness window, constant-time.
func (h *SlackHandler) verifySignature(timestamp, signature string, body []byte) bool {
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := time.Now().Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > 300 {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.SigningSecret))
	fmt.Fprintf(mac, "v0:%s:%s", timestamp, body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func actionFromSlackID(actionID string) (Action, bool) {
	switch actionID {
	case "approve_command":
		return ActionApprove, true
	case "reject_command":
		return ActionReject, true
	default:
		return "", false
	}
}

