package verifier_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bdobrica/cmdgate/internal/machineid"
	"github.com/bdobrica/cmdgate/internal/store"
	"github.com/bdobrica/cmdgate/internal/verifier"
)

type fakeStore struct {
	row          store.ApprovalRequest
	found        bool
	updatedTimes int
	allow        bool
	allowErr     error
}

func (f *fakeStore) SelectSingle(ctx context.Context, id string) (store.ApprovalRequest, error) {
	if !f.found {
		return store.ApprovalRequest{}, store.ErrNotFound
	}
	return f.row, nil
}

func (f *fakeStore) UpdateWhere(ctx context.Context, id string, newStatus store.Status, resolvedBy string) (int64, error) {
	f.updatedTimes++
	if f.row.Status != store.StatusPending {
		return 0, nil
	}
	f.row.Status = newStatus
	return 1, nil
}

func (f *fakeStore) Allow(ctx context.Context, identifier string, limit int, window time.Duration) (bool, error) {
	return f.allow, f.allowErr
}

func TestResolve_NotFound(t *testing.T) {
	p := verifier.NewPipeline(&fakeStore{found: false}, nil)
	out := p.Resolve(context.Background(), "missing", verifier.ActionApprove, "alice")
	if out.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", out.Status)
	}
}

func TestResolve_AlreadyResolvedIsIdempotent(t *testing.T) {
	fs := &fakeStore{found: true, row: store.ApprovalRequest{Status: store.StatusApproved, CreatedAt: time.Now()}}
	p := verifier.NewPipeline(fs, nil)
	out := p.Resolve(context.Background(), "req", verifier.ActionApprove, "alice")
	if out.Status != http.StatusOK || out.Message != "already resolved" {
		t.Fatalf("expected idempotent 200 already-resolved, got %+v", out)
	}
}

func TestResolve_ExpiredRow(t *testing.T) {
	fs := &fakeStore{found: true, row: store.ApprovalRequest{Status: store.StatusPending, CreatedAt: time.Now().Add(-2 * time.Hour)}}
	p := verifier.NewPipeline(fs, nil)
	out := p.Resolve(context.Background(), "req", verifier.ActionApprove, "alice")
	if out.Status != http.StatusGone {
		t.Fatalf("expected 410 gone, got %d", out.Status)
	}
}

func TestResolve_InvalidMachineSignatureForbidden(t *testing.T) {
	fp, _ := machineid.DeriveFingerprint()
	badSigned := machineid.Sign(fp, []byte("wrong-secret"), time.Now())
	fs := &fakeStore{found: true, row: store.ApprovalRequest{
		Status: store.StatusPending, CreatedAt: time.Now(), MachineID: badSigned,
	}}
	p := verifier.NewPipeline(fs, []byte("real-secret"))
	out := p.Resolve(context.Background(), "req", verifier.ActionApprove, "alice")
	if out.Status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", out.Status)
	}
}

func TestResolve_HappyPathApprove(t *testing.T) {
	fp, _ := machineid.DeriveFingerprint()
	secret := []byte("shared-secret")
	signed := machineid.Sign(fp, secret, time.Now())
	fs := &fakeStore{found: true, row: store.ApprovalRequest{
		Status: store.StatusPending, CreatedAt: time.Now(), MachineID: signed,
	}}
	p := verifier.NewPipeline(fs, secret)
	out := p.Resolve(context.Background(), "req", verifier.ActionApprove, "alice")
	if out.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", out.Status, out.Message)
	}
	if fs.updatedTimes != 1 {
		t.Fatalf("expected exactly one update call, got %d", fs.updatedTimes)
	}
}

func TestValidateRequestID(t *testing.T) {
	if !verifier.ValidateRequestID("550e8400-e29b-41d4-a716-446655440000") {
		t.Error("expected canonical UUID to validate")
	}
	if verifier.ValidateRequestID("not-a-uuid") {
		t.Error("expected malformed id to be rejected")
	}
}

func TestParseAction(t *testing.T) {
	cases := map[string]verifier.Action{
		"approve": verifier.ActionApprove,
		"APPROVE": verifier.ActionApprove,
		"reject":  verifier.ActionReject,
		"REJECT":  verifier.ActionReject,
	}
	for in, want := range cases {
		got, ok := verifier.ParseAction(in)
		if !ok || got != want {
			t.Errorf("ParseAction(%q) = %q, %v; want %q, true", in, got, ok, want)
		}
	}
	if _, ok := verifier.ParseAction("banana"); ok {
		t.Error("expected unrecognized token to fail")
	}
}

func TestClientIdentifier_PrefersConnectingIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 203.0.113.5")
	r.Header.Set("X-Real-IP", "198.51.100.9")
	r.Header.Set("CF-Connecting-IP", "192.0.2.44")
	if got := verifier.ClientIdentifier(r); got != "192.0.2.44" {
		t.Errorf("expected CF-Connecting-IP to win, got %q", got)
	}
}

func TestClientIdentifier_FallsBackToForwardedForLastHop(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	r.Header.Set("X-Forwarded-For", "10.0.0.1, 203.0.113.5")
	if got := verifier.ClientIdentifier(r); got != "203.0.113.5" {
		t.Errorf("expected last hop of X-Forwarded-For, got %q", got)
	}
}
