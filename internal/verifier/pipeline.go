// Package verifier implements the webhook-side state machine shared by
// every chat provider: rate limit, authenticate, parse, fetch, check
// freshness and machine identity, then atomically transition the row.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bdobrica/cmdgate/common/trace"
	"github.com/bdobrica/cmdgate/internal/machineid"
	"github.com/bdobrica/cmdgate/internal/store"
)

// DefaultRateLimit is the per-identifier budget over RateLimitWindow.
const DefaultRateLimit = 30

// DefaultRateLimitWindow is the rolling window rate limiting is measured
// over; it is strictly less than a minute so a burst at the boundary cannot
// double the effective budget.
const DefaultRateLimitWindow = 59 * time.Second

// requestIDPattern validates the canonical v4-style identifier shape.
var requestIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// approvalStore is the subset of *store.Store the verifier needs.
type approvalStore interface {
	SelectSingle(ctx context.Context, id string) (store.ApprovalRequest, error)
	UpdateWhere(ctx context.Context, id string, newStatus store.Status, resolvedBy string) (int64, error)
	Allow(ctx context.Context, identifier string, limit int, window time.Duration) (bool, error)
}

// Pipeline is the shared callback-verification logic every provider handler
// wraps with its own authentication and acknowledgement steps.
type Pipeline struct {
	Store              approvalStore
	MachineIDSecret    []byte
	FreshnessWindow    time.Duration
	IdentityFreshness  time.Duration
	RateLimit          int
	RateLimitWindow    time.Duration

	localMu       sync.Mutex
	localLimiters map[string]*rate.Limiter
}

// NewPipeline builds a Pipeline with sensible defaults filled in for any
// zero field.
func NewPipeline(st approvalStore, machineIDSecret []byte) *Pipeline {
	return &Pipeline{
		Store:             st,
		MachineIDSecret:   machineIDSecret,
		FreshnessWindow:   store.FreshnessBound,
		IdentityFreshness: machineid.DefaultFreshnessWindow,
		RateLimit:         DefaultRateLimit,
		RateLimitWindow:   DefaultRateLimitWindow,
		localLimiters:     make(map[string]*rate.Limiter),
	}
}

// localLimiter returns the in-process burst absorber for identifier,
// creating one sized to the same budget as the persisted limiter. It exists
// to reject obvious floods without a round trip to the store; the store
// remains the authoritative limiter shared across webhook instances.
func (p *Pipeline) localLimiter(identifier string) *rate.Limiter {
	p.localMu.Lock()
	defer p.localMu.Unlock()
	if p.localLimiters == nil {
		p.localLimiters = make(map[string]*rate.Limiter)
	}
	lim, ok := p.localLimiters[identifier]
	if !ok {
		every := p.RateLimitWindow / time.Duration(p.RateLimit)
		lim = rate.NewLimiter(rate.Every(every), p.RateLimit)
		p.localLimiters[identifier] = lim
	}
	return lim
}

// Outcome is the result of resolving one callback action.
type Outcome struct {
	Status  int
	Message string
	Row     store.ApprovalRequest
}

// RequestContext returns r's context carrying a freshly generated trace ID,
// so every log line one callback touches — rate limiting, authentication,
// resolution — can be correlated via observability.WithTrace. Each provider
// handler calls this once, at the top of ServeHTTP.
func RequestContext(r *http.Request) context.Context {
	return trace.WithTraceID(r.Context(), trace.GenerateID())
}

// ClientIdentifier derives a rate-limit identifier from the documented
// header order: connecting-IP, real-IP, last hop of forwarded-for, falling
// back to the request's remote address.
func ClientIdentifier(r *http.Request) string {
	if v := r.Header.Get("CF-Connecting-IP"); v != "" {
		return v
	}
	if v := r.Header.Get("X-Real-IP"); v != "" {
		return v
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		parts := strings.Split(v, ",")
		return strings.TrimSpace(parts[len(parts)-1])
	}
	return r.RemoteAddr
}

// CheckRateLimit enforces the per-identifier rolling-window budget. A local
// in-memory limiter rejects obvious floods before touching the store; the
// store-persisted check remains authoritative across webhook instances.
// Store failures are fail-open: availability of the approval flow is
// preferred over limit strictness, and the failure is returned to the
// caller to log.
func (p *Pipeline) CheckRateLimit(ctx context.Context, identifier string) (allowed bool, storeErr error) {
	if !p.localLimiter(identifier).Allow() {
		return false, nil
	}
	ok, err := p.Store.Allow(ctx, identifier, p.RateLimit, p.RateLimitWindow)
	if err != nil {
		return true, err
	}
	return ok, nil
}

// ValidateRequestID reports whether id matches the canonical v4 shape.
func ValidateRequestID(id string) bool {
	return requestIDPattern.MatchString(id)
}

// Resolve runs steps 5-8 of the shared pipeline: fetch the row, check
// freshness, check machine identity, and atomically transition it.
// actorHandle is the provider's derived human-readable handle (username,
// falling back to display name, falling back to an opaque id).
func (p *Pipeline) Resolve(ctx context.Context, requestID string, action Action, actorHandle string) Outcome {
	row, err := p.Store.SelectSingle(ctx, requestID)
	if errors.Is(err, store.ErrNotFound) {
		return Outcome{Status: http.StatusNotFound, Message: "not found"}
	}
	if err != nil {
		return Outcome{Status: http.StatusInternalServerError, Message: "internal error"}
	}

	if row.Status != store.StatusPending {
		return Outcome{Status: http.StatusOK, Message: "already resolved", Row: row}
	}

	if time.Since(row.CreatedAt) > p.FreshnessWindow {
		return Outcome{Status: http.StatusGone, Message: "expired", Row: row}
	}

	if len(p.MachineIDSecret) > 0 && row.MachineID != "" {
		if err := machineid.Verify(row.MachineID, p.MachineIDSecret, p.IdentityFreshness, time.Now()); err != nil {
			return Outcome{Status: http.StatusForbidden, Message: "invalid signature", Row: row}
		}
	}

	newStatus := store.StatusRejected
	if action == ActionApprove {
		newStatus = store.StatusApproved
	}

	affected, err := p.Store.UpdateWhere(ctx, requestID, newStatus, actorHandle)
	if err != nil {
		return Outcome{Status: http.StatusInternalServerError, Message: "internal error", Row: row}
	}
	if affected == 0 {
		return Outcome{Status: http.StatusConflict, Message: "already resolved", Row: row}
	}

	verb := "rejected"
	if action == ActionApprove {
		verb = "approved"
	}
	return Outcome{Status: http.StatusOK, Message: fmt.Sprintf("%s by %s", verb, actorHandle), Row: row}
}

// Action is the parsed callback action.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// ParseAction maps a provider-specific token to an Action.
func ParseAction(token string) (Action, bool) {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "approve", "approved", "yes", "y":
		return ActionApprove, true
	case "reject", "rejected", "no", "n", "deny", "denied":
		return ActionReject, true
	default:
		return "", false
	}
}
