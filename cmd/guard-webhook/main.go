// Command guard-webhook runs the callback verifier: an HTTP server that
// authenticates, rate-limits, and resolves inbound chat-provider callbacks
// against the shared approval-request store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bdobrica/cmdgate/common/observability"
	"github.com/bdobrica/cmdgate/common/version"
	"github.com/bdobrica/cmdgate/internal/config"
	"github.com/bdobrica/cmdgate/internal/store"
	"github.com/bdobrica/cmdgate/internal/verifier"
)

// cleanupInterval is how often cleanupLoop sweeps stale rows and rate limit
// events; short enough that DefaultRetention is a soft bound in practice.
const cleanupInterval = time.Hour

func main() {
	listPending := flag.Bool("list-pending", false, "list pending approval requests and exit, without starting the server")
	flag.Parse()

	observability.Setup(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "json"), os.Stderr)
	slog.Info("guard-webhook starting", "version", version.Version)

	cfg, err := config.Load(getEnv("CMDGATE_CONFIG", "./cmdgate.yaml"))
	if err != nil {
		slog.Error("configuration error", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	st, err := store.New(ctx, cfg.Store.URL)
	if err != nil {
		slog.Error("failed to connect to store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if *listPending {
		runListPending(ctx, st)
		return
	}

	go cleanupLoop(ctx, st)

	pipeline := verifier.NewPipeline(st, []byte(cfg.MachineIDSecret))

	mux := http.NewServeMux()
	mux.Handle("/webhooks/slack", &verifier.SlackHandler{
		Pipeline:      pipeline,
		SigningSecret: cfg.Messenger.Slack.SigningSecret,
	})
	telegramHandler, err := verifier.NewTelegramHandler(
		pipeline,
		getEnv("TELEGRAM_WEBHOOK_SECRET", ""),
		cfg.Messenger.Telegram.BotToken,
	)
	if err != nil {
		slog.Error("failed to build telegram handler", "error", err)
		os.Exit(1)
	}
	mux.Handle("/webhooks/telegram", telegramHandler)
	mux.Handle("/webhooks/twilio", verifier.NewTwilioHandler(
		pipeline,
		cfg.Messenger.Twilio.AuthToken,
		getEnv("TWILIO_PUBLIC_URL", ""),
	))

	addr := getEnv("LISTEN_ADDR", ":8080")
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	slog.Info("guard-webhook listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// runListPending prints every pending approval request to stdout, one per
// line, for an operator to eyeball without reaching for psql.
func runListPending(ctx context.Context, st *store.Store) {
	rows, err := st.List(ctx, store.StatusPending)
	if err != nil {
		slog.Error("failed to list pending approval requests", "error", err)
		os.Exit(1)
	}
	for _, row := range rows {
		fmt.Printf("%s\t%s\t%s\t%s\n", row.ID, row.CreatedAt.Format(time.RFC3339), row.Severity, row.Command)
	}
}

// cleanupLoop periodically deletes rows and rate limit events past
// retention. It runs for the lifetime of the process, since request
// handling itself never ages out a row.
func cleanupLoop(ctx context.Context, st *store.Store) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := st.DeleteOlderThan(ctx, store.DefaultRetention); err != nil {
				observability.WithTrace(ctx).Warn("cleanup: delete stale approval requests failed", "error", err)
			} else if n > 0 {
				observability.WithTrace(ctx).Info("cleanup: deleted stale approval requests", "count", n)
			}
			if n, err := st.CleanupRateLimitEvents(ctx, verifier.DefaultRateLimitWindow); err != nil {
				observability.WithTrace(ctx).Warn("cleanup: delete stale rate limit events failed", "error", err)
			} else if n > 0 {
				observability.WithTrace(ctx).Info("cleanup: deleted stale rate limit events", "count", n)
			}
		}
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
