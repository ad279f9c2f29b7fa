package hookio_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bdobrica/cmdgate/internal/hookio"
)

func TestReadEvent_Valid(t *testing.T) {
	ev, err := hookio.ReadEvent(strings.NewReader(`{"tool_name":"Bash","tool_input":{"command":"ls -la"}}`))
	if err != nil {
		t.Fatalf("ReadEvent: %v", err)
	}
	if ev.ToolName != "Bash" || ev.ToolInput.Command != "ls -la" {
		t.Errorf("unexpected event: %+v", ev)
	}
}

func TestReadEvent_Empty(t *testing.T) {
	if _, err := hookio.ReadEvent(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestReadEvent_Malformed(t *testing.T) {
	if _, err := hookio.ReadEvent(strings.NewReader("{not json")); err == nil {
		t.Fatal("expected error for malformed input")
	}
}

func TestWriteDecision_AllowOmitsEmptyReason(t *testing.T) {
	var buf bytes.Buffer
	if err := hookio.WriteDecision(&buf, hookio.Allow("")); err != nil {
		t.Fatalf("WriteDecision: %v", err)
	}
	got := strings.TrimSpace(buf.String())
	if got != `{"decision":"allow"}` {
		t.Errorf("unexpected output: %s", got)
	}
}

func TestWriteDecision_DenyWithReason(t *testing.T) {
	var buf bytes.Buffer
	if err := hookio.WriteDecision(&buf, hookio.Deny("Approval timed out")); err != nil {
		t.Fatalf("WriteDecision: %v", err)
	}
	got := strings.TrimSpace(buf.String())
	if got != `{"decision":"deny","reason":"Approval timed out"}` {
		t.Errorf("unexpected output: %s", got)
	}
}

func TestIsShellTool(t *testing.T) {
	if !hookio.IsShellTool("Bash") {
		t.Error("Bash should be a shell tool")
	}
	if hookio.IsShellTool("ReadFile") {
		t.Error("ReadFile should not be a shell tool")
	}
}
