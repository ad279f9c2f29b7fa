// Command guard-hook is the synchronous pre-execution hook: it reads one
// tool-invocation event from standard input and writes exactly one decision
// to standard output. All diagnostics go to stderr so the host's JSON parser
// on stdout is never corrupted.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bdobrica/cmdgate/common/observability"
	"github.com/bdobrica/cmdgate/common/trace"
	"github.com/bdobrica/cmdgate/common/version"
	"github.com/bdobrica/cmdgate/internal/config"
	"github.com/bdobrica/cmdgate/internal/coordinator"
	"github.com/bdobrica/cmdgate/internal/hookio"
	"github.com/bdobrica/cmdgate/internal/store"
)

func main() {
	observability.Setup(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "text"), os.Stderr)
	slog.Info("guard-hook starting", "version", version.Version)

	cfg, err := config.Load(getEnv("CMDGATE_CONFIG", "./cmdgate.yaml"))
	if err != nil {
		writeDenyAndExit(fmt.Sprintf("configuration error: %v", err))
	}

	ev, err := hookio.ReadEvent(os.Stdin)
	if err != nil {
		writeDenyAndExit(err.Error())
	}

	ctx := trace.WithTraceID(context.Background(), trace.GenerateID())
	observability.WithTrace(ctx).Info("hook invocation received", "tool_name", ev.ToolName)

	// Opening the store connection (and running migrations) is deferred to
	// the coordinator, which only calls this once Classify has found the
	// command dangerous: a safe command or a non-shell tool call resolves
	// to {decision:"allow"} without ever touching Postgres.
	openStore := func(ctx context.Context) (coordinator.ApprovalStore, func(), error) {
		st, err := store.New(ctx, cfg.Store.URL)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	}

	coord := coordinator.New(openStore, cfg)
	decision := coord.Decide(ctx, ev)
	writeDecision(decision)
}

func writeDecision(d hookio.Decision) {
	if err := hookio.WriteDecision(os.Stdout, d); err != nil {
		slog.Error("failed to write decision", "error", err)
		os.Exit(1)
	}
}

func writeDenyAndExit(reason string) {
	writeDecision(hookio.Deny(reason))
	os.Exit(0)
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
