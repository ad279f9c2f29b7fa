package store

import (
	"context"
	"fmt"
	"time"
)

// Allow reports whether one more attempt for identifier falls within limit
// attempts over the trailing window, and records the attempt only when it is
// allowed; refused attempts are not stored. The window is persisted
// in the shared store rather than held in process memory, so multiple
// webhook instances behind a load balancer share one limiter.
func (s *Store) Allow(ctx context.Context, identifier string, limit int, window time.Duration) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("store: rate limit begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var count int
	err = tx.QueryRow(ctx, `
		SELECT count(*) FROM rate_limit_events
		WHERE identifier = $1 AND created_at > now() - $2::interval
	`, identifier, fmt.Sprintf("%d seconds", int64(window.Seconds()))).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: rate limit count: %w", err)
	}

	if count >= limit {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `INSERT INTO rate_limit_events (identifier) VALUES ($1)`, identifier); err != nil {
		return false, fmt.Errorf("store: rate limit record: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("store: rate limit commit: %w", err)
	}
	return true, nil
}

// CleanupRateLimitEvents deletes events older than window. It is called
// periodically by guard-webhook's cleanupLoop rather than on every request.
func (s *Store) CleanupRateLimitEvents(ctx context.Context, window time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM rate_limit_events WHERE created_at < now() - $1::interval
	`, fmt.Sprintf("%d seconds", int64(window.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("store: cleanup rate limit events: %w", err)
	}
	return tag.RowsAffected(), nil
}
