package coordinator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/bdobrica/cmdgate/common/observability"
	"github.com/bdobrica/cmdgate/internal/hookio"
)

// TerminalOpener opens the process-controlling terminal device, bypassing
// standard input (which has already been consumed by the hook event).
type TerminalOpener func() (io.ReadWriteCloser, error)

func openControllingTTY() (io.ReadWriteCloser, error) {
	return os.OpenFile("/dev/tty", os.O_RDWR, 0)
}

// runLocalWait prompts a human at the controlling terminal and sends their
// decision on out. If no terminal is available it emits a one-line
// diagnostic and returns without sending anything, so it never wins (or
// loses) the race — it simply does not participate.
func (c *Coordinator) runLocalWait(ctx context.Context, out chan<- hookio.Decision) {
	term, err := c.NewTerm()
	if err != nil {
		observability.WithTrace(ctx).Info("coordinator: local terminal unavailable, not participating in approval wait", "error", err)
		return
	}
	defer term.Close()

	// Closing the terminal unblocks the scanner's read when the deadline or
	// a winning remote resolution ends the wait first.
	go func() {
		<-ctx.Done()
		term.Close()
	}()

	fmt.Fprintln(term, "Approve this command? [y/n]")
	scanner := bufio.NewScanner(term)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		switch line {
		case "y", "yes":
			send(ctx, out, hookio.Allow("Approved via Local TTY"))
			return
		case "n", "no":
			send(ctx, out, hookio.Deny("Rejected via Local TTY"))
			return
		default:
			fmt.Fprintln(term, "Please answer y or n.")
		}
	}
}

func send(ctx context.Context, out chan<- hookio.Decision, d hookio.Decision) {
	select {
	case out <- d:
	case <-ctx.Done():
	}
}
