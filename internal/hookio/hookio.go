// Package hookio defines the stdin/stdout JSON contract between the host
// assistant and the hook process: one event in, one decision out.
package hookio

import (
	"encoding/json"
	"fmt"
	"io"
)

// Event is the JSON object read from standard input.
type Event struct {
	ToolName  string    `json:"tool_name"`
	ToolInput ToolInput `json:"tool_input"`
}

// ToolInput carries the command for shell-executing tools. Other fields the
// host may send are accepted and ignored.
type ToolInput struct {
	Command string `json:"command"`
}

// Decision is the JSON object written to standard output. Reason is omitted
// from the encoded object when empty.
type Decision struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Allow builds an allow decision, optionally carrying a reason.
func Allow(reason string) Decision { return Decision{Decision: DecisionAllow, Reason: reason} }

// Deny builds a deny decision, optionally carrying a reason.
func Deny(reason string) Decision { return Decision{Decision: DecisionDeny, Reason: reason} }

// ReadEvent decodes exactly one Event from r. An empty or malformed input is
// reported as an error; the caller maps that to a deny decision with a
// reason, per the coordinator's error-handling policy.
func ReadEvent(r io.Reader) (Event, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Event{}, fmt.Errorf("hookio: read stdin: %w", err)
	}
	if len(data) == 0 {
		return Event{}, fmt.Errorf("hookio: empty input")
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("hookio: malformed input: %w", err)
	}
	return ev, nil
}

// WriteDecision encodes d as the sole JSON object written to w. This is the
// hook's primary output channel; nothing else may be written to it.
func WriteDecision(w io.Writer, d Decision) error {
	enc := json.NewEncoder(w)
	return enc.Encode(d)
}

// IsShellTool reports whether toolName is one the coordinator must classify
// rather than allow unconditionally.
func IsShellTool(toolName string) bool {
	return toolName == "Bash" || toolName == "Shell" || toolName == "Exec"
}
