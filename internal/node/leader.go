package node

import (
	"context"
	"fmt"

	"github.com/ringvote/ringvote/internal/ledger"
	"github.com/ringvote/ringvote/internal/telemetry"
	"github.com/ringvote/ringvote/internal/wire"
)

// AnnounceLeader is invoked by the node that completed the election circuit.
// It adopts L as leader, clears the Registrar's election gate, releases the
// recovery guard, and forwards the leader-announce token exactly once.
func (n *Node) AnnounceLeader(ctx context.Context, leaderUID int, roundID string) {
	n.mu.Lock()
	n.leaderUID = leaderUID
	n.leaderAddr = n.addrBook[leaderUID]
	n.state = StateLeaderAnnounced
	n.recoveryCoordinated = false
	successor := n.successor
	epoch := n.epoch
	uid := n.uid
	n.mu.Unlock()

	n.ledger.Record(roundID, ledger.EventBecameLeader, fmt.Sprintf("uid=%d", leaderUID))

	if err := wire.PostJSON(ctx, n.registrarAddr+"/end-election", nil, nil); err != nil {
		n.log.Errorw("failed to clear registrar election flag", "uid", uid, "err", err)
	}
	if err := wire.PostJSON(ctx, n.registrarAddr+"/release-recovery", nil, nil); err != nil {
		n.log.Errorw("failed to release recovery guard", "uid", uid, "err", err)
	}

	n.ledger.Record(roundID, ledger.EventLeaderSent, fmt.Sprintf("leader=%d origin=%d", leaderUID, uid))
	go n.forwardLeader(ctx, successor, wire.LeaderMessage{
		LeaderUID: leaderUID, OriginUID: uid, Epoch: epoch, RoundID: roundID,
	})
}

// ReceiveLeader absorbs duplicate traversals and, on first receipt, adopts
// the leader and forwards unless the circuit has returned to the leader
// itself (in which case it is already LEADER_ANNOUNCED and the drop above
// stops propagation).
func (n *Node) ReceiveLeader(ctx context.Context, msg wire.LeaderMessage) {
	sleepNetworkDelay(n.cfg.NetworkDelay)

	n.mu.Lock()
	if n.state == StateDead || n.state == StateLeaderAnnounced {
		n.mu.Unlock()
		return
	}
	if msg.Epoch < n.epoch {
		n.mu.Unlock()
		return
	}
	n.leaderUID = msg.LeaderUID
	n.leaderAddr = n.addrBook[msg.LeaderUID]
	n.state = StateLeaderAnnounced
	n.recoveryCoordinated = false
	successor := n.successor
	uid := n.uid
	n.mu.Unlock()

	n.ledger.Record(msg.RoundID, ledger.EventLeaderReceived, fmt.Sprintf("leader=%d origin=%d", msg.LeaderUID, msg.OriginUID))
	telemetry.MessagesForwardedTotal.WithLabelValues("leader_received").Inc()

	if msg.LeaderUID == uid {
		return
	}
	go n.forwardLeader(ctx, successor, msg)
}

func (n *Node) forwardLeader(ctx context.Context, successor wire.NodeRef, msg wire.LeaderMessage) {
	if successor.UID == 0 || successor.Addr == "" {
		n.log.Warnw("cannot forward leader announcement, no successor", "uid", n.uid)
		return
	}
	err := retry(ctx, n.cfg.RetryAttempts, n.cfg.RetryDelay, func(ctx context.Context) error {
		return wire.PostJSON(ctx, successor.Addr+"/rpc/leader", msg, nil)
	})
	if err != nil {
		n.log.Errorw("leader forward exhausted retries", "uid", n.uid, "successor", successor.UID, "err", err)
		return
	}
	n.ledger.Record(msg.RoundID, ledger.EventLeaderForward, fmt.Sprintf("leader=%d -> %d", msg.LeaderUID, successor.UID))
	telemetry.MessagesForwardedTotal.WithLabelValues("leader").Inc()
}
