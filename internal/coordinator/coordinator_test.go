package coordinator

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/bdobrica/cmdgate/internal/config"
	"github.com/bdobrica/cmdgate/internal/store"
)

// fakeStore is a minimal in-memory ApprovalStore for exercising the
// await_verdict race without a real Postgres instance.
type fakeStore struct {
	changes         chan store.ApprovalRequest
	updateWhereCall chan store.Status
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		changes:         make(chan store.ApprovalRequest, 1),
		updateWhereCall: make(chan store.Status, 1),
	}
}

func (f *fakeStore) Insert(ctx context.Context, req store.ApprovalRequest) error { return nil }

func (f *fakeStore) Subscribe(ctx context.Context, id string) (<-chan store.ApprovalRequest, func(), error) {
	return f.changes, func() {}, nil
}

func (f *fakeStore) UpdateWhere(ctx context.Context, id string, newStatus store.Status, resolvedBy string) (int64, error) {
	select {
	case f.updateWhereCall <- newStatus:
	default:
	}
	return 1, nil
}

// pipeRWC adapts a pair of pipe ends into a single io.ReadWriteCloser, the
// shape a terminal device presents to the local-wait reader.
type pipeRWC struct {
	io.Reader
	io.Writer
	closers []io.Closer
}

func (p *pipeRWC) Close() error {
	var err error
	for _, c := range p.closers {
		if cerr := c.Close(); cerr != nil {
			err = cerr
		}
	}
	return err
}

func testConfig(timeout time.Duration) config.Config {
	return config.Config{
		Rules: config.RulesConfig{
			TimeoutSeconds: int(timeout.Seconds()),
			DefaultAction:  config.ActionDeny,
		},
	}
}

func TestAwaitVerdict_RemoteApprovalWins(t *testing.T) {
	fs := newFakeStore()
	c := &Coordinator{
		Store:  fs,
		Config: testConfig(10 * time.Second),
		NewTerm: func() (io.ReadWriteCloser, error) {
			return nil, errors.New("no terminal in test")
		},
	}
	fs.changes <- store.ApprovalRequest{Status: store.StatusApproved}

	d := c.awaitVerdict(context.Background(), "req-1")
	if d.Decision != "allow" {
		t.Fatalf("expected allow, got %+v", d)
	}
}

func TestAwaitVerdict_RemoteRejectionWins(t *testing.T) {
	fs := newFakeStore()
	c := &Coordinator{
		Store:  fs,
		Config: testConfig(10 * time.Second),
		NewTerm: func() (io.ReadWriteCloser, error) {
			return nil, errors.New("no terminal in test")
		},
	}
	fs.changes <- store.ApprovalRequest{Status: store.StatusRejected}

	d := c.awaitVerdict(context.Background(), "req-1")
	if d.Decision != "deny" {
		t.Fatalf("expected deny, got %+v", d)
	}
}

func TestAwaitVerdict_LocalApprovalWins(t *testing.T) {
	fs := newFakeStore()
	promptR, promptW := io.Pipe()
	replyR, replyW := io.Pipe()
	go io.Copy(io.Discard, promptR)

	c := &Coordinator{
		Store:  fs,
		Config: testConfig(10 * time.Second),
		NewTerm: func() (io.ReadWriteCloser, error) {
			return &pipeRWC{Reader: replyR, Writer: promptW, closers: []io.Closer{replyR, promptW}}, nil
		},
	}

	go func() {
		replyW.Write([]byte("y\n"))
	}()

	d := c.awaitVerdict(context.Background(), "req-1")
	if d.Decision != "allow" || d.Reason != "Approved via Local TTY" {
		t.Fatalf("expected local approval, got %+v", d)
	}
}

func TestAwaitVerdict_DeadlineFiresAndMarksTimeout(t *testing.T) {
	fs := newFakeStore()
	c := &Coordinator{
		Store:  fs,
		Config: testConfig(50 * time.Millisecond),
		NewTerm: func() (io.ReadWriteCloser, error) {
			return nil, errors.New("no terminal in test")
		},
	}

	d := c.awaitVerdict(context.Background(), "req-1")
	if d.Decision != "deny" {
		t.Fatalf("expected deny (default action) on timeout, got %+v", d)
	}

	select {
	case status := <-fs.updateWhereCall:
		if status != store.StatusTimeout {
			t.Errorf("expected timeout status recorded, got %q", status)
		}
	case <-time.After(time.Second):
		t.Fatal("expected markTimeoutBestEffort to call UpdateWhere")
	}
}

func TestDefaultAction_RespectsAllowPosture(t *testing.T) {
	c := &Coordinator{Config: config.Config{Rules: config.RulesConfig{DefaultAction: config.ActionAllow}}}
	d := c.defaultAction(context.Background(), "store unavailable")
	if d.Decision != "allow" {
		t.Fatalf("expected allow posture honored, got %+v", d)
	}
}
