package store_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/bdobrica/cmdgate/internal/store"
)

// newTestStore connects to a real Postgres instance named by
// CMDGATE_TEST_POSTGRES_URL. These tests exercise the row-level
// serialization guarantee the rest of the system depends on and cannot be
// meaningfully faked with an in-memory stand-in, so they skip rather than
// mock when no database is available.
func newTestStore(t *testing.T) (*store.Store, context.Context) {
	t.Helper()
	url := os.Getenv("CMDGATE_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("CMDGATE_TEST_POSTGRES_URL not set; skipping store integration test")
	}
	ctx := context.Background()
	s, err := store.New(ctx, url)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(s.Close)
	return s, ctx
}

func TestInsertAndSelectSingle(t *testing.T) {
	s, ctx := newTestStore(t)

	req := store.ApprovalRequest{
		ID:           "test-" + t.Name(),
		Command:      "rm -rf /tmp/scratch",
		DangerReason: "recursive delete",
		Severity:     "medium",
		CWD:          "/tmp",
		MachineID:    "0123456789abcdef0123456789abcdef",
	}
	if err := s.Insert(ctx, req); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.SelectSingle(ctx, req.ID)
	if err != nil {
		t.Fatalf("SelectSingle: %v", err)
	}
	if got.Status != store.StatusPending {
		t.Errorf("expected pending, got %q", got.Status)
	}
	if got.ResolvedAt != nil || got.ResolvedBy != nil {
		t.Errorf("pending row must have nil resolved_at/resolved_by, got %+v", got)
	}
}

func TestUpdateWhere_OnlyOneWinnerOnRace(t *testing.T) {
	s, ctx := newTestStore(t)

	req := store.ApprovalRequest{
		ID:           "test-race-" + t.Name(),
		Command:      "git push --force",
		DangerReason: "force push",
		Severity:     "critical",
		CWD:          "/repo",
		MachineID:    "0123456789abcdef0123456789abcdef",
	}
	if err := s.Insert(ctx, req); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	type result struct {
		rows int64
		err  error
	}
	results := make(chan result, 2)
	go func() {
		n, err := s.UpdateWhere(ctx, req.ID, store.StatusApproved, "alice")
		results <- result{n, err}
	}()
	go func() {
		n, err := s.UpdateWhere(ctx, req.ID, store.StatusRejected, "bob")
		results <- result{n, err}
	}()

	var totalAffected int64
	for i := 0; i < 2; i++ {
		r := <-results
		if r.err != nil {
			t.Fatalf("UpdateWhere: %v", r.err)
		}
		totalAffected += r.rows
	}
	if totalAffected != 1 {
		t.Fatalf("expected exactly one winning transition, got %d rows affected total", totalAffected)
	}
}

func TestAllow_RateLimitWindow(t *testing.T) {
	s, ctx := newTestStore(t)
	identifier := "test-ip-" + t.Name()

	for i := 0; i < 30; i++ {
		ok, err := s.Allow(ctx, identifier, 30, time.Minute)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Fatalf("request %d should have been allowed", i+1)
		}
	}

	ok, err := s.Allow(ctx, identifier, 30, time.Minute)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("31st request within the window should have been refused")
	}
}
