package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bdobrica/cmdgate/common/observability"
)

// changeChannel is the Postgres NOTIFY channel the 0001_init.sql trigger
// publishes to.
const changeChannel = "approval_requests_changed"

// Subscribe opens a dedicated connection LISTENing for changes to the row
// identified by id and returns a channel delivering its post-image on every
// UPDATE. Delivery is at-least-once: a slow consumer may observe the same
// status more than once.
//
// The returned cancel function releases the dedicated connection; it must be
// called on every exit path of the caller, matching the rest of this system's
// scoped-resource discipline (see the coordinator's TTY handle and timer).
func (s *Store) Subscribe(ctx context.Context, id string) (<-chan ApprovalRequest, func(), error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("store: acquire listen connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "LISTEN "+changeChannel); err != nil {
		conn.Release()
		return nil, nil, fmt.Errorf("store: listen: %w", err)
	}

	out := make(chan ApprovalRequest, 4)
	listenCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		for {
			notification, err := conn.Conn().WaitForNotification(listenCtx)
			if err != nil {
				return
			}
			var row ApprovalRequest
			if err := json.Unmarshal([]byte(notification.Payload), &row); err != nil {
				observability.WithTrace(listenCtx).Warn("store: dropping malformed change notification", "error", err)
				continue
			}
			if row.ID != id {
				continue
			}
			select {
			case out <- row:
			case <-listenCtx.Done():
				return
			}
		}
	}()

	release := func() {
		cancel()
		conn.Release()
	}
	return out, release, nil
}
