package verifier

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/twilio/twilio-go/client"

	"github.com/bdobrica/cmdgate/common/observability"
)

// TwilioHandler serves the inbound-SMS-style provider's webhook: form
// encoded body, Body field carrying "APPROVE <id>" or "REJECT <id>",
// authenticated via Twilio's sorted-params-MAC signature scheme.
type TwilioHandler struct {
	Pipeline   *Pipeline
	AuthToken  string
	PublicURL  string // the externally visible URL Twilio signed against
	validator  *client.RequestValidator
}

var smsCommandPattern = regexp.MustCompile(`(?i)^(APPROVE|REJECT)\s+([0-9a-fA-F-]{36})$`)

func NewTwilioHandler(p *Pipeline, authToken, publicURL string) *TwilioHandler {
	v := client.NewRequestValidator(authToken)
	return &TwilioHandler{Pipeline: p, AuthToken: authToken, PublicURL: publicURL, validator: &v}
}

func (h *TwilioHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
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

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	params := make(map[string]string, len(values))
	for k := range values {
		params[k] = values.Get(k)
	}

	signature := r.Header.Get("X-Twilio-Signature")
	if !h.validator.Validate(h.PublicURL, params, signature) {
		h.writeTwiML(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	matches := smsCommandPattern.FindStringSubmatch(strings.TrimSpace(values.Get("Body")))
	if matches == nil {
		h.writeTwiML(w, http.StatusBadRequest, "Could not parse command. Reply APPROVE <id> or REJECT <id>.")
		return
	}
	action, ok := ParseAction(matches[1])
	requestID := matches[2]
	if !ok || !ValidateRequestID(requestID) {
		h.writeTwiML(w, http.StatusBadRequest, "Could not parse command. Reply APPROVE <id> or REJECT <id>.")
		return
	}

	handle := values.Get("From")
	if handle == "" {
		handle = identifier
	}

	outcome := h.Pipeline.Resolve(ctx, requestID, action, handle)
	h.writeTwiML(w, outcome.Status, outcome.Message)
}

func (h *TwilioHandler) writeTwiML(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<Response><Message>%s</Message></Response>", escapeXML(message))
}

func escapeXML(s string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(s)
}
