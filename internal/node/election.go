package node

import (
	"context"
	"fmt"
	"time"

	"github.com/ringvote/ringvote/internal/ledger"
	"github.com/ringvote/ringvote/internal/telemetry"
	"github.com/ringvote/ringvote/internal/wire"
)

// decision is the outcome of classifying an incoming election message,
// computed while holding the election lock and acted on after release.
type decision int

const (
	decisionDrop decision = iota
	decisionForwardAsIs
	decisionBecomeLeader
	decisionUsurp
	decisionForwardOwn
)

// ReceiveElection applies the Chang-Roberts decision table to an incoming
// election token. Message classification happens under the election lock;
// forwarding happens afterward on a separate goroutine so a slow successor
// never stalls this handler.
func (n *Node) ReceiveElection(ctx context.Context, msg wire.ElectionMessage) {
	sleepNetworkDelay(n.cfg.NetworkDelay)

	n.mu.Lock()
	if n.state == StateDead {
		n.mu.Unlock()
		return
	}
	if msg.Epoch < n.epoch {
		n.mu.Unlock()
		n.ledger.Record(msg.RoundID, ledger.EventElectionReceived, fmt.Sprintf("dropped stale epoch %d < %d", msg.Epoch, n.epoch))
		return
	}
	if n.state == StateLeaderAnnounced {
		n.mu.Unlock()
		return
	}
	n.ledger.Record(msg.RoundID, ledger.EventElectionReceived, fmt.Sprintf("candidate=%d origin=%d", msg.CandidateUID, msg.OriginUID))

	var d decision
	switch {
	case msg.CandidateUID > n.uid:
		n.state = StateInProgress
		d = decisionForwardAsIs
	case msg.CandidateUID == n.uid && msg.OriginUID == n.uid:
		d = decisionBecomeLeader
	case msg.CandidateUID == n.uid && msg.OriginUID != n.uid:
		n.state = StateInProgress
		d = decisionUsurp
	case msg.CandidateUID < n.uid && n.state == StateIdle:
		n.state = StateInProgress
		d = decisionForwardOwn
	default: // candidate < uid && state == IN_PROGRESS
		d = decisionDrop
	}
	successor := n.successor
	epoch := n.epoch
	uid := n.uid
	n.mu.Unlock()

	switch d {
	case decisionDrop:
		return
	case decisionBecomeLeader:
		n.AnnounceLeader(ctx, uid, msg.RoundID)
	case decisionForwardAsIs:
		go n.forwardElection(ctx, successor, wire.ElectionMessage{
			CandidateUID: msg.CandidateUID, OriginUID: msg.OriginUID, Epoch: epoch, RoundID: msg.RoundID,
		})
	case decisionUsurp:
		go n.forwardElection(ctx, successor, wire.ElectionMessage{
			CandidateUID: uid, OriginUID: uid, Epoch: epoch, RoundID: msg.RoundID,
		})
	case decisionForwardOwn:
		go n.forwardElection(ctx, successor, wire.ElectionMessage{
			CandidateUID: uid, OriginUID: msg.OriginUID, Epoch: epoch, RoundID: msg.RoundID,
		})
	}
}

// InitiateElection starts a new election round with this node as originator.
// recovery marks the round as detector-driven: the Registrar records it, and
// the "valid leader exists" guard below is skipped for it (the detector has
// also already cleared local leader state before calling this).
func (n *Node) InitiateElection(ctx context.Context, recovery bool) error {
	n.mu.Lock()
	if n.state == StateDead {
		n.mu.Unlock()
		return &wire.ElectionError{Kind: wire.ErrNoSuccessor, UID: n.uid, Err: fmt.Errorf("node is dead")}
	}
	if n.state == StateInProgress {
		n.mu.Unlock()
		n.log.Warnw("initiate election rejected: already in progress", "uid", n.uid)
		return &wire.ElectionError{Kind: wire.ErrElectionInProgress, UID: n.uid}
	}
	if n.leaderUID != 0 && n.state == StateLeaderAnnounced && !recovery {
		n.mu.Unlock()
		n.log.Warnw("initiate election rejected: valid leader exists", "uid", n.uid, "leader", n.leaderUID)
		return &wire.ElectionError{Kind: wire.ErrElectionInProgress, UID: n.uid}
	}
	if n.successor.UID == 0 {
		n.mu.Unlock()
		return &wire.ElectionError{Kind: wire.ErrNoSuccessor, UID: n.uid}
	}
	n.mu.Unlock()

	if err := n.requestBeginElection(ctx, recovery); err != nil {
		return err
	}
	if err := n.requestRebuildRing(ctx, "pre-election"); err != nil {
		n.log.Warnw("pre-election rebuild failed, proceeding with known successor", "uid", n.uid, "err", err)
	}

	n.mu.Lock()
	n.electionRound++
	n.state = StateInProgress
	round := n.electionRound
	roundID := newRoundID()
	n.currentRoundID = roundID
	successor := n.successor
	epoch := n.epoch
	uid := n.uid
	n.mu.Unlock()

	telemetry.ElectionRoundsTotal.WithLabelValues(triggerLabel(recovery)).Inc()
	n.ledger.Record(roundID, ledger.EventElectionSent, fmt.Sprintf("uid=%d round=%d", uid, round))

	gen := n.nextTimeoutGen()
	go n.armElectionTimeout(ctx, gen, round, roundID, recovery)

	go n.forwardElection(ctx, successor, wire.ElectionMessage{
		CandidateUID: uid, OriginUID: uid, Epoch: epoch, RoundID: roundID,
	})
	return nil
}

func triggerLabel(recovery bool) string {
	if recovery {
		return "recovery"
	}
	return "manual"
}

func (n *Node) requestBeginElection(ctx context.Context, recovery bool) error {
	url := n.registrarAddr + "/begin-election"
	if recovery {
		url += "?recovery=true"
	}
	if err := wire.PostJSON(ctx, url, nil, nil); err != nil {
		return fmt.Errorf("node %d: begin-election: %w", n.uid, err)
	}
	return nil
}

// forwardElection sends msg to successor, retrying at a fixed interval. On total
// exhaustion it requests a ring rebuild and gives up; the election timeout,
// not direct retransmission, re-drives progress per spec.md §4.2.
func (n *Node) forwardElection(ctx context.Context, successor wire.NodeRef, msg wire.ElectionMessage) {
	if successor.UID == 0 || successor.Addr == "" {
		n.log.Warnw("cannot forward election, no successor", "uid", n.uid)
		return
	}
	err := retry(ctx, n.cfg.RetryAttempts, n.cfg.RetryDelay, func(ctx context.Context) error {
		return wire.PostJSON(ctx, successor.Addr+"/rpc/election", msg, nil)
	})
	if err != nil {
		n.log.Errorw("election forward exhausted retries", "uid", n.uid, "successor", successor.UID, "err", err)
		n.ledger.Record(msg.RoundID, ledger.EventElectionForward, fmt.Sprintf("failed to %d after retries", successor.UID))
		_ = n.requestRebuildRing(context.Background(), "forward-failure")
		return
	}
	n.ledger.Record(msg.RoundID, ledger.EventElectionForward, fmt.Sprintf("candidate=%d origin=%d -> %d", msg.CandidateUID, msg.OriginUID, successor.UID))
	telemetry.MessagesForwardedTotal.WithLabelValues("election").Inc()
}

// armElectionTimeout resets state to IDLE and retries (or surfaces
// ELECTION_FAILED) if the round hasn't completed by the timeout. gen lets a
// fresh InitiateElection invalidate a stale timer without an explicit cancel
// channel; a timer whose round has already left IN_PROGRESS (for example
// after AnnounceLeader or ReceiveLeader) does nothing.
func (n *Node) armElectionTimeout(ctx context.Context, gen, round int, roundID string, recovery bool) {
	timer := time.NewTimer(n.electionTimeoutDuration())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	if !n.timeoutStillCurrent(gen) {
		return
	}

	n.mu.Lock()
	stillWaiting := n.state == StateInProgress && n.electionRound == round
	n.mu.Unlock()
	if !stillWaiting {
		return
	}

	n.mu.Lock()
	n.state = StateIdle
	n.mu.Unlock()
	n.log.Warnw("election timed out", "uid", n.uid, "round", round)

	if round < n.cfg.MaxRounds() {
		if err := n.InitiateElection(ctx, recovery); err != nil {
			n.log.Errorw("election retry failed to start", "uid", n.uid, "err", err)
		}
		return
	}
	n.log.Errorw("election failed: round budget exhausted", "uid", n.uid, "rounds", round)
}

func (n *Node) electionTimeoutDuration() time.Duration {
	if n.cfg.ElectionTimeout() > 0 {
		return n.cfg.ElectionTimeout()
	}
	return 60 * time.Second
}
