// Package node implements the participating process of the ring: it owns a
// UID, a successor reference, election state, and reacts to election,
// leader-announce, and liveness-probe messages from its peers.
package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ringvote/ringvote/internal/config"
	"github.com/ringvote/ringvote/internal/ledger"
	"github.com/ringvote/ringvote/internal/telemetry"
	"github.com/ringvote/ringvote/internal/wire"
)

// State is one of the node's election lifecycle states.
type State string

const (
	StateIdle             State = "IDLE"
	StateInProgress       State = "IN_PROGRESS"
	StateLeaderAnnounced  State = "LEADER_ANNOUNCED"
	StateDead             State = "DEAD"
)

// Node is a single participant in the ring.
type Node struct {
	uid           int
	addr          string
	registrarAddr string
	cfg           config.Node
	log           *zap.SugaredLogger
	ledger        *ledger.Ledger

	mu                  sync.Mutex
	successor           wire.NodeRef
	leaderUID           int
	leaderAddr          string
	state               State
	electionRound       int
	recoveryCoordinated bool
	epoch               int64
	currentRoundID      string
	addrBook            map[int]string

	timeoutMu  sync.Mutex
	timeoutGen int
}

// New creates a Node with the given uid and config, not yet registered.
func New(uid int, cfg config.Node, log *zap.SugaredLogger) *Node {
	return &Node{
		uid:           uid,
		addr:          cfg.Addr,
		registrarAddr: cfg.RegistrarAddr,
		cfg:           cfg,
		log:           log,
		ledger:        ledger.New(500),
		state:         StateDead, // becomes IDLE on successful registration
		addrBook:      make(map[int]string),
	}
}

// UID returns the node's immutable identifier.
func (n *Node) UID() int { return n.uid }

// Addr returns the node's own advertised address.
func (n *Node) Addr() string { return n.addr }

// Ledger exposes the node's election event trace for the debug command.
func (n *Node) Ledger() *ledger.Ledger { return n.ledger }

// Snapshot is a consistent read of the node's state for the status command
// and the /status RPC endpoint.
type Snapshot struct {
	UID             int
	Alive           bool
	State           State
	LeaderUID       int
	HasLeader       bool
	Successor       wire.NodeRef
	ElectionRound   int
	Epoch           int64
}

// Status returns a snapshot of the node's current state.
func (n *Node) Status() Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Snapshot{
		UID:           n.uid,
		Alive:         n.state != StateDead,
		State:         n.state,
		LeaderUID:     n.leaderUID,
		HasLeader:     n.leaderUID != 0,
		Successor:     n.successor,
		ElectionRound: n.electionRound,
		Epoch:         n.epoch,
	}
}

// Register contacts the Registrar, records the assigned successor and
// epoch, and transitions the node to IDLE.
func (n *Node) Register(ctx context.Context) error {
	var resp wire.RegisterResponse
	err := wire.PostJSON(ctx, n.registrarAddr+"/register", wire.RegisterRequest{
		Node: wire.NodeRef{UID: n.uid, Addr: n.addr},
	}, &resp)
	if err != nil {
		return fmt.Errorf("node %d: register: %w", n.uid, err)
	}

	n.mu.Lock()
	n.successor = resp.Successor
	n.epoch = resp.Epoch
	n.state = StateIdle
	for _, m := range resp.Members {
		n.addrBook[m.UID] = m.Addr
	}
	n.mu.Unlock()

	n.log.Infow("registered with registrar", "uid", n.uid, "successor", resp.Successor.UID, "epoch", resp.Epoch)
	return nil
}

// SetAlive simulates crash (false) or recovery (true). Per spec.md §4.5, a
// transition from DEAD back to IDLE additionally requests a ring rebuild so
// the node is reinstated into successor assignments.
func (n *Node) SetAlive(ctx context.Context, alive bool) error {
	n.mu.Lock()
	if alive {
		n.state = StateIdle
		n.leaderUID = 0
		n.leaderAddr = ""
	} else {
		n.state = StateDead
	}
	n.mu.Unlock()

	var req = struct {
		UID   int  `json:"uid"`
		Alive bool `json:"alive"`
	}{n.uid, alive}
	if err := wire.PostJSON(ctx, n.registrarAddr+"/set-alive", req, nil); err != nil {
		return fmt.Errorf("node %d: set-alive: %w", n.uid, err)
	}
	if alive {
		return n.requestRebuildRing(ctx, "recover")
	}
	return nil
}

// Recover is the operator-facing alias for SetAlive(true).
func (n *Node) Recover(ctx context.Context) error {
	return n.SetAlive(ctx, true)
}

// Reset returns the node to IDLE without touching liveness, used by the
// detector on recovery and by the operator "reset" command.
func (n *Node) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateDead {
		return
	}
	n.state = StateIdle
	n.leaderUID = 0
	n.leaderAddr = ""
	n.recoveryCoordinated = false
}

func (n *Node) isAlive() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state != StateDead
}

func newRoundID() string {
	return uuid.New().String()
}

// requestRebuildRing asks the Registrar to recompute successors, recording
// the resulting epoch. Used after transport failures and on recovery.
func (n *Node) requestRebuildRing(ctx context.Context, trigger string) error {
	var resp wire.MembersResponse
	url := fmt.Sprintf("%s/rebuild-ring?trigger=%s", n.registrarAddr, trigger)
	if err := wire.PostJSON(ctx, url, nil, &resp); err != nil {
		return fmt.Errorf("node %d: rebuild-ring: %w", n.uid, err)
	}
	n.mu.Lock()
	if resp.Epoch > n.epoch {
		n.epoch = resp.Epoch
	}
	for _, m := range resp.Members {
		n.addrBook[m.UID] = m.Addr
	}
	for _, m := range resp.Members {
		if m.UID == n.uid && m.Successor != 0 {
			n.successor = wire.NodeRef{UID: m.Successor, Addr: n.addrBook[m.Successor]}
		}
	}
	n.mu.Unlock()
	telemetry.RingRebuildsTotal.WithLabelValues(trigger + "_client").Inc()
	return nil
}

// SetSuccessor applies a successor/address-book push from the Registrar,
// sent at the end of every RebuildRing so every member's view of the ring
// is current without waiting for its own next request. A push carrying an
// epoch older than the node's current one is ignored as stale.
func (n *Node) SetSuccessor(req wire.SetSuccessorRequest) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if req.Epoch < n.epoch {
		return
	}
	n.epoch = req.Epoch
	n.successor = req.Successor
	for _, m := range req.Members {
		n.addrBook[m.UID] = m.Addr
	}
}

func (n *Node) nextTimeoutGen() int {
	n.timeoutMu.Lock()
	defer n.timeoutMu.Unlock()
	n.timeoutGen++
	return n.timeoutGen
}

func (n *Node) timeoutStillCurrent(gen int) bool {
	n.timeoutMu.Lock()
	defer n.timeoutMu.Unlock()
	return n.timeoutGen == gen
}

func sleepNetworkDelay(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}
