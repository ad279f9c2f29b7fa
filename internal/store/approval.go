package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// Status is the lifecycle state of an ApprovalRequest. pending is the only
// non-terminal value.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusTimeout  Status = "timeout"
)

// FreshnessBound is the default age past which internal/verifier.Pipeline
// treats a row as expired (spec §4.7 step 6); it is not enforced here, see
// SelectSingle.
const FreshnessBound = time.Hour

// ErrNotFound is returned when a row with the given id does not exist.
var ErrNotFound = errors.New("store: approval request not found")

// ApprovalRequest is one outstanding or resolved command-approval decision.
type ApprovalRequest struct {
	ID           string     `json:"id"`
	Command      string     `json:"command"`
	DangerReason string     `json:"danger_reason"`
	Severity     string     `json:"severity"`
	CWD          string     `json:"cwd"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	ResolvedAt   *time.Time `json:"resolved_at"`
	ResolvedBy   *string    `json:"resolved_by"`
	MachineID    string     `json:"machine_id"`
}

// Insert creates a new pending row. machine_id must be present and at least
// 16 characters; the database CHECK constraints enforce this and every other
// row-level invariant, so Insert itself does no client-side validation
// beyond what is needed to produce a clear error.
func (s *Store) Insert(ctx context.Context, req ApprovalRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO approval_requests (id, command, danger_reason, severity, cwd, status, machine_id)
		VALUES ($1, $2, $3, $4, $5, 'pending', $6)
	`, req.ID, req.Command, req.DangerReason, req.Severity, req.CWD, req.MachineID)
	if err != nil {
		return fmt.Errorf("store: insert approval request: %w", err)
	}
	return nil
}

// UpdateWhere transitions a row out of pending, recording who resolved it.
// The WHERE clause includes status = 'pending', so this is the single
// serialization point for the whole system: concurrent callers racing to
// resolve the same row produce exactly one nonzero-affected-rows winner.
//
// RowsAffected() == 0 means either the id does not exist or the row was
// already resolved by someone else; callers must treat both the same way
// (the race was lost, not an error).
func (s *Store) UpdateWhere(ctx context.Context, id string, newStatus Status, resolvedBy string) (rowsAffected int64, err error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE approval_requests
		SET status = $2, resolved_at = now(), resolved_by = $3
		WHERE id = $1 AND status = 'pending'
	`, id, string(newStatus), resolvedBy)
	if err != nil {
		return 0, fmt.Errorf("store: update approval request %s: %w", id, err)
	}
	return tag.RowsAffected(), nil
}

// SelectSingle fetches one row by id. Confidentiality comes from the id
// itself being an unguessable v4 identifier and from the signed machine
// identity checked at transition time, not from an age bound here: the
// caller (internal/verifier.Pipeline.Resolve) is the sole arbiter of
// whether a row is too old to act on, so it can return the spec-mandated
// 410 "expired" response instead of this method silently reporting
// ErrNotFound for a row that is merely stale.
func (s *Store) SelectSingle(ctx context.Context, id string) (ApprovalRequest, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, command, danger_reason, severity, cwd, status, created_at, resolved_at, resolved_by, machine_id
		FROM approval_requests
		WHERE id = $1
	`, id)

	var req ApprovalRequest
	err := row.Scan(
		&req.ID, &req.Command, &req.DangerReason, &req.Severity, &req.CWD,
		&req.Status, &req.CreatedAt, &req.ResolvedAt, &req.ResolvedBy, &req.MachineID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return ApprovalRequest{}, ErrNotFound
	}
	if err != nil {
		return ApprovalRequest{}, fmt.Errorf("store: select approval request %s: %w", id, err)
	}
	return req, nil
}

// List returns every row in the given status, most recently created first.
// It backs operator-facing diagnostics such as guard-webhook's
// -list-pending flag; nothing in the request-handling path calls it.
func (s *Store) List(ctx context.Context, status Status) ([]ApprovalRequest, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, command, danger_reason, severity, cwd, status, created_at, resolved_at, resolved_by, machine_id
		FROM approval_requests
		WHERE status = $1
		ORDER BY created_at DESC
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("store: list approval requests: %w", err)
	}
	defer rows.Close()

	var out []ApprovalRequest
	for rows.Next() {
		var req ApprovalRequest
		if err := rows.Scan(
			&req.ID, &req.Command, &req.DangerReason, &req.Severity, &req.CWD,
			&req.Status, &req.CreatedAt, &req.ResolvedAt, &req.ResolvedBy, &req.MachineID,
		); err != nil {
			return nil, fmt.Errorf("store: scan approval request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list approval requests: %w", err)
	}
	return out, nil
}

// DefaultRetention is how long a resolved or stale row is kept before
// cleanupLoop deletes it.
const DefaultRetention = 7 * 24 * time.Hour

// DeleteOlderThan removes resolved and unresolved rows past retention. It is
// run periodically by guard-webhook's cleanupLoop rather than inline with
// request handling.
func (s *Store) DeleteOlderThan(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM approval_requests WHERE created_at < now() - $1::interval
	`, fmt.Sprintf("%d seconds", int64(retention.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("store: delete stale approval requests: %w", err)
	}
	return tag.RowsAffected(), nil
}
