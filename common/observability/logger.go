// Package observability provides structured logging helpers shared by the
// hook and webhook binaries.
//
// It wraps log/slog with trace ID propagation, so every log line emitted
// through WithTrace during a request carries the trace context. The
// configured handlers do not redact anything; RedactSecrets strips known
// values only from a message a caller passes to it explicitly.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/bdobrica/cmdgate/common/redact"
	"github.com/bdobrica/cmdgate/common/trace"
)

// Setup configures the global slog logger according to the provided level and
// format strings (e.g. level="info", format="json").
//
// The hook binary MUST call this with a format that writes to stderr, never
// stdout: stdout is reserved for the single decision JSON object.
func Setup(level, format string, out *os.File) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithTrace returns a child logger that always includes the trace_id from ctx.
func WithTrace(ctx context.Context) *slog.Logger {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		return slog.Default()
	}
	return slog.Default().With("trace_id", traceID)
}

// RedactSecrets replaces known-sensitive values in a log message with "[REDACTED]".
// Call with the message text and the sensitive values to strip out.
func RedactSecrets(msg string, sensitiveValues ...string) string {
	return redact.String(msg, sensitiveValues...)
}
