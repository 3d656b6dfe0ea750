package detector

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ringvote/ringvote/internal/logging"
)

type fakeTarget struct {
	mu           sync.Mutex
	leaderAddr   string
	hasLeader    bool
	probeErr     error
	cleared      int32
	recoveryHits int32
}

func (f *fakeTarget) LeaderAddr() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.leaderAddr, f.hasLeader
}

func (f *fakeTarget) UID() int { return 1 }

func (f *fakeTarget) Probe(ctx context.Context, addr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probeErr
}

func (f *fakeTarget) ClearLeaderState() int {
	atomic.AddInt32(&f.cleared, 1)
	return 99
}

func (f *fakeTarget) TriggerRecoveryElection(ctx context.Context, failedLeaderUID int) {
	atomic.AddInt32(&f.recoveryHits, 1)
}

func TestDetectorTriggersRecoveryOnProbeFailure(t *testing.T) {
	target := &fakeTarget{leaderAddr: "http://leader", hasLeader: true, probeErr: errors.New("connection refused")}
	d := New(target, 10*time.Millisecond, 50*time.Millisecond, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	d.Start(ctx)
	defer d.Stop()
	defer cancel()

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&target.recoveryHits) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if atomic.LoadInt32(&target.cleared) == 0 {
		t.Error("expected ClearLeaderState to be called")
	}
	if atomic.LoadInt32(&target.recoveryHits) == 0 {
		t.Error("expected TriggerRecoveryElection to be called")
	}
}

func TestDetectorSkipsProbeWithoutLeader(t *testing.T) {
	target := &fakeTarget{hasLeader: false}
	d := New(target, 10*time.Millisecond, 50*time.Millisecond, logging.Nop())

	d.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	d.Stop()

	if atomic.LoadInt32(&target.recoveryHits) != 0 {
		t.Error("expected no recovery trigger when no leader is known")
	}
}

func TestDetectorStopIsClean(t *testing.T) {
	target := &fakeTarget{hasLeader: true, leaderAddr: "http://leader", probeErr: nil}
	d := New(target, 5*time.Millisecond, 20*time.Millisecond, logging.Nop())
	d.Start(context.Background())
	d.Stop()
	// second Stop should not panic or block
	d.Stop()
}
