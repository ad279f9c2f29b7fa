// Package store is the thin port over the row-keyed approval store: insert,
// conditional update, select, and a change-feed subscription, backed by
// Postgres and its LISTEN/NOTIFY mechanism.
package store

import (
	"context"
	"embed"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bdobrica/cmdgate/common/observability"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a pooled Postgres connection and exposes the approval-request
// and rate-limit operations the coordinator and verifier need.
//
// Row-level policy (who may insert, who may update, what a select may see)
// is enforced by Postgres itself, not by this adapter; Store only shapes the
// queries, it does not hold a privileged bypass.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the Postgres instance at connString and applies any
// pending migrations.
func New(ctx context.Context, connString string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	s := &Store{pool: pool}
	if err := s.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Pool exposes the underlying pool for components that need a raw
// connection, such as the LISTEN-based subscription.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) runMigrations(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			description TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var currentVersion int
	if err := s.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion); err != nil {
		return fmt.Errorf("read current schema version: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	seenVersions := make(map[int]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, _, ok := parseMigrationName(entry.Name())
		if !ok {
			continue
		}
		if prev, exists := seenVersions[version]; exists {
			return fmt.Errorf("duplicate migration version %04d: %q and %q", version, prev, entry.Name())
		}
		seenVersions[version] = entry.Name()
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, description, ok := parseMigrationName(entry.Name())
		if !ok || version <= currentVersion {
			continue
		}

		content, err := migrationsFS.ReadFile(filepath.Join("migrations", entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		tx, err := s.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", version, err)
		}
		if _, err := tx.Exec(ctx, string(content)); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("apply migration %d: %w", version, err)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			version, description,
		); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("record migration %d: %w", version, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %d: %w", version, err)
		}
		observability.WithTrace(ctx).Info("applied migration", "version", fmt.Sprintf("%04d", version), "description", description)
	}
	return nil
}

func parseMigrationName(name string) (version int, description string, ok bool) {
	parts := strings.SplitN(name, "_", 2)
	if len(parts) < 2 {
		return 0, "", false
	}
	if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
		return 0, "", false
	}
	return version, strings.TrimSuffix(parts[1], ".sql"), true
}
