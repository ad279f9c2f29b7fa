// Package coordinator implements the hook-side state machine: parse the
// incoming event, classify the command, persist and announce a pending
// approval, then race a remote subscription, a local terminal prompt, and a
// deadline to produce exactly one decision.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/cmdgate/common/observability"
	"github.com/bdobrica/cmdgate/internal/config"
	"github.com/bdobrica/cmdgate/internal/hookio"
	"github.com/bdobrica/cmdgate/internal/machineid"
	"github.com/bdobrica/cmdgate/internal/notifier"
	"github.com/bdobrica/cmdgate/internal/rules"
	"github.com/bdobrica/cmdgate/internal/secretmask"
	"github.com/bdobrica/cmdgate/internal/store"
)

// ApprovalStore is the subset of *store.Store the coordinator needs.
type ApprovalStore interface {
	Insert(ctx context.Context, req store.ApprovalRequest) error
	Subscribe(ctx context.Context, id string) (<-chan store.ApprovalRequest, func(), error)
	UpdateWhere(ctx context.Context, id string, newStatus store.Status, resolvedBy string) (int64, error)
}

// StoreOpener lazily establishes the store connection a dangerous command
// needs. It is called at most once per Decide invocation, and never at all
// for a safe command or a non-shell tool call, so those pay no store I/O.
// The returned close func releases the connection and must be deferred by
// the caller.
type StoreOpener func(ctx context.Context) (ApprovalStore, func(), error)

// Coordinator runs one hook invocation end to end.
type Coordinator struct {
	// Store is the already-open store connection, used by awaitVerdict and
	// markTimeoutBestEffort. Decide populates it lazily via OpenStore once a
	// command is classified dangerous; callers that already hold an open
	// store (e.g. tests driving awaitVerdict directly) may set it upfront
	// instead of going through OpenStore.
	Store     ApprovalStore
	OpenStore StoreOpener
	Engine    *rules.Engine
	Config    config.Config
	NewTerm   TerminalOpener
}

// New builds a Coordinator wired from cfg. Each hook invocation constructs
// its own Coordinator and adapter instances; nothing is shared across
// invocations. openStore is called only once Classify has returned a
// dangerous verdict, so a safe command or a non-shell tool call never opens
// a store connection.
func New(openStore StoreOpener, cfg config.Config) *Coordinator {
	engine := rules.NewEngine(
		rules.WithWhitelist(cfg.Rules.Whitelist),
		rules.WithCustomPatterns(config.CompileCustomPatterns(cfg.Rules.CustomPatterns)),
	)
	return &Coordinator{OpenStore: openStore, Engine: engine, Config: cfg, NewTerm: openControllingTTY}
}

// Decide runs the full state machine for one event and returns the decision
// to write to the hook's primary output channel.
func (c *Coordinator) Decide(ctx context.Context, ev hookio.Event) hookio.Decision {
	if !hookio.IsShellTool(ev.ToolName) || ev.ToolInput.Command == "" {
		return hookio.Allow("")
	}

	verdict := c.Engine.Classify(ev.ToolInput.Command)
	if !verdict.Dangerous {
		return hookio.Allow("")
	}

	st, closeStore, err := c.OpenStore(ctx)
	if err != nil {
		return c.defaultAction(ctx, fmt.Sprintf("failed to open store: %v", err))
	}
	defer closeStore()
	c.Store = st

	id := uuid.NewString()
	fingerprint, err := machineid.DeriveFingerprint()
	if err != nil {
		return c.defaultAction(ctx, fmt.Sprintf("failed to derive machine identity: %v", err))
	}
	signedIdentity := machineid.Sign(fingerprint, []byte(c.Config.MachineIDSecret), time.Now())

	cwd, _ := os.Getwd()
	masked := secretmask.Mask(ev.ToolInput.Command)

	req := store.ApprovalRequest{
		ID:           id,
		Command:      masked,
		DangerReason: verdict.Reason,
		Severity:     string(verdict.Severity),
		CWD:          cwd,
		MachineID:    signedIdentity,
	}
	if err := c.Store.Insert(ctx, req); err != nil {
		return c.defaultAction(ctx, fmt.Sprintf("failed to persist approval request: %v", err))
	}

	n, err := notifier.New(c.Config.Messenger)
	if err != nil {
		return c.defaultAction(ctx, fmt.Sprintf("failed to build notifier: %v", err))
	}
	if err := n.SendNotification(ctx, notifier.Prompt{
		RequestID:     id,
		Severity:      string(verdict.Severity),
		Reason:        verdict.Reason,
		MaskedCommand: masked,
		CWD:           cwd,
		Timestamp:     time.Now(),
	}); err != nil {
		return c.defaultAction(ctx, fmt.Sprintf("failed to notify: %v", err))
	}

	return c.awaitVerdict(ctx, id)
}

// awaitVerdict races the remote subscription, the local terminal prompt, and
// the deadline. Exactly one resolver's outcome is used; the other two are
// cancelled before this function returns.
func (c *Coordinator) awaitVerdict(ctx context.Context, id string) hookio.Decision {
	deadline := c.Config.Timeout()
	waitCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	type outcome struct {
		decision hookio.Decision
		resolved bool
	}
	results := make(chan outcome, 3)

	remoteCh, remoteRelease, err := c.Store.Subscribe(waitCtx, id)
	if err != nil {
		observability.WithTrace(ctx).Warn("coordinator: remote subscription unavailable, continuing without it", "error", err)
		remoteCh = nil
		remoteRelease = func() {}
	}
	defer remoteRelease()

	go func() {
		if remoteCh == nil {
			return
		}
		for row := range remoteCh {
			if row.Status == store.StatusPending {
				continue
			}
			results <- outcome{decision: decisionFromStatus(row.Status, "chat channel"), resolved: true}
			return
		}
	}()

	localCh := make(chan hookio.Decision, 1)
	go c.runLocalWait(waitCtx, localCh)
	go func() {
		select {
		case d, ok := <-localCh:
			if ok {
				results <- outcome{decision: d, resolved: true}
			}
		case <-waitCtx.Done():
		}
	}()

	select {
	case r := <-results:
		return r.decision
	case <-waitCtx.Done():
		c.markTimeoutBestEffort(ctx, id)
		return c.defaultAction(ctx, "Approval timed out")
	}
}

func decisionFromStatus(status store.Status, channel string) hookio.Decision {
	switch status {
	case store.StatusApproved:
		return hookio.Allow("Approved via " + channel)
	case store.StatusRejected:
		return hookio.Deny("Rejected via " + channel)
	default:
		return hookio.Deny("Approval timed out")
	}
}

// markTimeoutBestEffort records the timeout in the store so the webhook side
// refuses a late callback as "already resolved". Errors are logged and never
// change the verdict already decided by the deadline firing.
//
// The write uses context.WithoutCancel(parent) so it still carries the
// request's trace ID for logging but is not aborted just because parent
// (the race's waitCtx) has already fired its deadline.
func (c *Coordinator) markTimeoutBestEffort(parent context.Context, id string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), 5*time.Second)
	defer cancel()
	if _, err := c.Store.UpdateWhere(ctx, id, store.StatusTimeout, "timeout"); err != nil {
		observability.WithTrace(ctx).Warn("coordinator: failed to mark row as timed out", "id", id, "error", err)
	}
}

// defaultAction applies the configured fail-open/closed posture. The
// environment cannot weaken it from deny to allow: internal/config reads no
// environment variable for defaultAction, so only the file sets it.
func (c *Coordinator) defaultAction(ctx context.Context, reason string) hookio.Decision {
	observability.WithTrace(ctx).Warn("coordinator: falling back to default action", "reason", reason, "action", c.Config.Rules.DefaultAction)
	if c.Config.Rules.DefaultAction == config.ActionAllow {
		return hookio.Allow(reason)
	}
	return hookio.Deny(reason)
}
