package node

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ringvote/ringvote/internal/ledger"
	"github.com/ringvote/ringvote/internal/telemetry"
	"github.com/ringvote/ringvote/internal/wire"
)

// LeaderAddr implements detector.Target.
func (n *Node) LeaderAddr() (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.leaderUID == 0 || n.leaderAddr == "" {
		return "", false
	}
	return n.leaderAddr, true
}

// Probe implements detector.Target: a lightweight status call against addr.
func (n *Node) Probe(ctx context.Context, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/status", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("probe %s: unexpected status %d", addr, resp.StatusCode)
	}
	return nil
}

// ClearLeaderState implements detector.Target. It reports the leader UID
// that was known before clearing, since the caller (the detector) decides
// what to exclude from the ring based on that value, not on post-reset
// state.
func (n *Node) ClearLeaderState() int {
	n.mu.Lock()
	previous := n.leaderUID
	n.mu.Unlock()
	n.Reset()
	return previous
}

// TriggerRecoveryElection implements detector.Target. It attempts to claim
// the single-writer recovery guard at the Registrar; only the winner among
// concurrent detectors initiates the recovery round. failedLeaderUID is the
// leader the probe just failed against, captured by the caller before local
// leader state was reset.
func (n *Node) TriggerRecoveryElection(ctx context.Context, failedLeaderUID int) {
	var claim struct {
		Claimed bool `json:"claimed"`
	}
	if err := wire.PostJSON(ctx, n.registrarAddr+"/claim-recovery", nil, &claim); err != nil {
		n.log.Errorw("recovery claim request failed", "uid", n.uid, "err", err)
		return
	}
	if !claim.Claimed {
		n.log.Infow("recovery claim lost, waiting for election traffic", "uid", n.uid)
		return
	}

	n.mu.Lock()
	n.recoveryCoordinated = true
	n.mu.Unlock()

	if failedLeaderUID != 0 {
		if err := n.excludeFromRing(ctx, failedLeaderUID); err != nil {
			n.log.Warnw("failed to exclude unreachable leader from ring", "uid", n.uid, "leader", failedLeaderUID, "err", err)
		}
	}

	telemetry.RecoveriesTriggeredTotal.WithLabelValues("node-" + strconv.Itoa(n.uid)).Inc()
	n.ledger.Record("", ledger.EventRecoveryStarted, fmt.Sprintf("uid=%d claimed recovery", n.uid))
	n.log.Infow("claimed recovery coordinator role, initiating election", "uid", n.uid)

	if err := n.InitiateElection(ctx, true); err != nil {
		n.log.Errorw("recovery election failed to start", "uid", n.uid, "err", err)
		n.mu.Lock()
		n.recoveryCoordinated = false
		n.mu.Unlock()
		n.releaseRecovery(ctx)
	}
}

func (n *Node) excludeFromRing(ctx context.Context, uid int) error {
	req := struct {
		UID int `json:"uid"`
	}{uid}
	return wire.PostJSON(ctx, n.registrarAddr+"/exclude", req, nil)
}

func (n *Node) releaseRecovery(ctx context.Context) {
	if err := wire.PostJSON(ctx, n.registrarAddr+"/release-recovery", nil, nil); err != nil {
		n.log.Errorw("failed to release recovery guard", "uid", n.uid, "err", err)
	}
}
