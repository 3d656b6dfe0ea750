// Package detector implements the per-node failure detector: a periodic
// liveness probe against the current leader that, on failure, coordinates
// with the Registrar's single-writer guard to trigger exactly one recovery
// election.
package detector

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ringvote/ringvote/internal/telemetry"
)

// Target is the narrow view of a Node the detector needs. Node implements
// it; the detector never imports the node package to avoid a cycle.
type Target interface {
	// LeaderAddr returns the address of the currently known leader and
	// whether one is known at all.
	LeaderAddr() (addr string, ok bool)
	// UID returns this node's own identifier, for logging and metrics.
	UID() int
	// Probe performs one liveness check against addr, returning an error
	// on failure (timeout, connection refused, non-2xx).
	Probe(ctx context.Context, addr string) error
	// ClearLeaderState resets local leader knowledge so InitiateElection's
	// "valid leader exists" guard does not block the recovery round. It
	// returns the UID of the leader that was just cleared (0 if none was
	// known), since the caller clears state before deciding what to
	// exclude from the ring.
	ClearLeaderState() (previousLeaderUID int)
	// TriggerRecoveryElection attempts to claim the recovery-coordinator
	// role at the Registrar and, if successful, drives a recovery election
	// against failedLeaderUID. It returns once the round has been
	// initiated or the claim failed.
	TriggerRecoveryElection(ctx context.Context, failedLeaderUID int)
}

// Detector runs the periodic probe loop for a single node.
type Detector struct {
	target Target
	log    *zap.SugaredLogger

	period  time.Duration
	timeout time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Detector for target, probing every period with timeout per
// probe attempt.
func New(target Target, period, timeout time.Duration, log *zap.SugaredLogger) *Detector {
	return &Detector{target: target, period: period, timeout: timeout, log: log}
}

// Start begins the probe loop in a background goroutine. Calling Start
// again after Stop restarts the loop.
func (d *Detector) Start(ctx context.Context) {
	d.mu.Lock()
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go d.loop(ctx)
}

// Stop cancels the probe loop and waits for it to exit.
func (d *Detector) Stop() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
}

func (d *Detector) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.probeOnce(ctx)
		}
	}
}

func (d *Detector) probeOnce(ctx context.Context) {
	addr, ok := d.target.LeaderAddr()
	if !ok {
		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	err := d.target.Probe(probeCtx, addr)
	cancel()
	if err == nil {
		return
	}

	uid := d.target.UID()
	telemetry.ProbeFailuresTotal.WithLabelValues(nodeLabel(uid)).Inc()
	d.log.Warnw("leader probe failed", "uid", uid, "leader_addr", addr, "err", err)

	failedLeaderUID := d.target.ClearLeaderState()
	d.target.TriggerRecoveryElection(ctx, failedLeaderUID)
}

func nodeLabel(uid int) string {
	return "node-" + strconv.Itoa(uid)
}
