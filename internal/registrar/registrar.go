// Package registrar implements the centralized membership and ring-assembly
// service: node registration, election-flag gating, ring (re)construction in
// ascending-UID order, and the single-writer recovery-coordinator guard.
package registrar

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/exp/slices"

	"github.com/ringvote/ringvote/internal/ledger"
	"github.com/ringvote/ringvote/internal/telemetry"
	"github.com/ringvote/ringvote/internal/wire"
)

// successorPushTimeout bounds each individual SetSuccessor push RebuildRing
// fans out to live members; a slow or dead member must not stall the ring
// rebuild that every registration and election round waits on.
const successorPushTimeout = 3 * time.Second

// member is the Registrar's bookkeeping record for one registered node.
type member struct {
	uid       int
	addr      string
	alive     bool
	excluded  bool // excluded from the next RebuildRing by a recovery detector
	successor int
}

// Registrar tracks live nodes and owns the ring topology. All mutation goes
// through a single mutex, matching the teacher's server.mu/ShardRegistry.mu
// single-writer pattern.
type Registrar struct {
	mu sync.Mutex

	members            []*member // insertion order, for bookkeeping
	electionInProgress bool
	recoveryMode       bool
	recoveryInitiated  bool // exactly-one recovery coordinator guard
	epoch              int64

	log    *ledger.Ledger
}

// New creates an empty Registrar.
func New() *Registrar {
	return &Registrar{
		log: ledger.New(0),
	}
}

// Register admits uid at addr. It fails with ErrElectionInProgress while an
// election is active, and with ErrDuplicateRegistration if uid is already a
// member, live or not. On success, if there are now at least two members, the ring
// is rebuilt before Register returns.
func (r *Registrar) Register(uid int, addr string) (wire.RegisterResponse, error) {
	r.mu.Lock()
	if r.electionInProgress {
		r.mu.Unlock()
		telemetry.RegistrationsTotal.WithLabelValues("rejected").Inc()
		return wire.RegisterResponse{}, &wire.ElectionError{Kind: wire.ErrElectionInProgress, UID: uid}
	}
	if idx := r.indexOf(uid); idx >= 0 {
		r.mu.Unlock()
		telemetry.RegistrationsTotal.WithLabelValues("duplicate").Inc()
		return wire.RegisterResponse{}, &wire.ElectionError{Kind: wire.ErrDuplicateRegistration, UID: uid}
	}
	r.members = append(r.members, &member{uid: uid, addr: addr, alive: true})
	telemetry.RegistrationsTotal.WithLabelValues("accepted").Inc()
	n := len(r.members)
	r.mu.Unlock()

	if n >= 2 {
		r.RebuildRing("register")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return wire.RegisterResponse{
		Epoch:     r.epoch,
		Successor: r.successorRefLocked(uid),
		Members:   r.memberRefsLocked(),
	}, nil
}

// Unregister removes uid from membership entirely, for explicit shutdown.
func (r *Registrar) Unregister(uid int) {
	r.mu.Lock()
	idx := r.indexOf(uid)
	if idx >= 0 {
		r.members = slices.Delete(r.members, idx, idx+1)
	}
	r.mu.Unlock()
}

// BeginElection marks an election as in progress, gating new registrations.
// A duplicate call is a no-op. recovery marks this round as detector-driven.
func (r *Registrar) BeginElection(recovery bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.electionInProgress {
		return
	}
	r.electionInProgress = true
	r.recoveryMode = recovery
}

// EndElection clears the election-in-progress and recovery-mode flags. Idempotent.
func (r *Registrar) EndElection() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.electionInProgress = false
	r.recoveryMode = false
}

// IsElectionInProgress reports the current gating flag.
func (r *Registrar) IsElectionInProgress() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.electionInProgress
}

// TryClaimRecovery atomically claims the recovery-coordinator role. Exactly
// one caller among concurrent detectors observing the same leader failure
// receives true.
func (r *Registrar) TryClaimRecovery() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recoveryInitiated {
		return false
	}
	r.recoveryInitiated = true
	return true
}

// ReleaseRecovery resets the recovery guard, called on AnnounceLeader success
// or when the claimant abandons recovery.
func (r *Registrar) ReleaseRecovery() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recoveryInitiated = false
}

// SetAlive updates a member's liveness flag, used when a node self-reports
// via SetAlive(true) on recovery or an operator marks it dead for testing.
func (r *Registrar) SetAlive(uid int, alive bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx := r.indexOf(uid); idx >= 0 {
		r.members[idx].alive = alive
		if alive {
			r.members[idx].excluded = false
		}
	}
}

// ExcludeFromRing marks uid to be skipped by the next RebuildRing, without
// asserting it is dead. A failure detector uses this when it can only prove
// unreachability, not death; SetAlive remains the explicit liveness action.
func (r *Registrar) ExcludeFromRing(uid int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if idx := r.indexOf(uid); idx >= 0 {
		r.members[idx].excluded = true
	}
}

// GetMembers returns a snapshot of all registered UIDs, insertion order.
func (r *Registrar) GetMembers() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]int, len(r.members))
	for i, m := range r.members {
		out[i] = m.uid
	}
	return out
}

// Directory returns the current member directory for the /members endpoint.
func (r *Registrar) Directory() wire.MembersResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	resp := wire.MembersResponse{Epoch: r.epoch}
	for _, m := range r.members {
		resp.Members = append(resp.Members, wire.MemberInfo{
			UID: m.uid, Addr: m.addr, Alive: m.alive, Successor: m.successor,
		})
	}
	return resp
}

// RebuildRing sorts the live, non-excluded members ascending by UID and
// assigns each one's successor as the next-larger UID, wrapping from the
// largest back to the smallest. It requires at least two eligible members;
// with fewer it leaves the topology unchanged. Every call bumps the ring
// epoch so in-flight messages against the prior topology can be recognized
// as stale by receivers, then pushes the new successor (and a refreshed
// address book) out to every live member before returning, so the
// assignments this call just computed are observed as a set rather than
// trickling in only as each node happens to ask for one.
func (r *Registrar) RebuildRing(trigger string) error {
	r.mu.Lock()

	live := make([]*member, 0, len(r.members))
	for _, m := range r.members {
		if m.alive && !m.excluded {
			live = append(live, m)
		}
	}
	sort.Slice(live, func(i, j int) bool { return live[i].uid < live[j].uid })

	n := len(live)
	if n < 2 {
		r.mu.Unlock()
		return &wire.ElectionError{Kind: wire.ErrNoSuccessor, Err: fmt.Errorf("insufficient members: have %d, need 2", n)}
	}

	for i, m := range live {
		m.successor = live[(i+1)%n].uid
	}
	r.epoch++
	epoch := r.epoch
	telemetry.RingRebuildsTotal.WithLabelValues(trigger).Inc()
	telemetry.RingEpoch.Set(float64(epoch))
	telemetry.RingSize.Set(float64(n))

	members := r.memberRefsLocked()
	pushes := make([]successorPush, n)
	for i, m := range live {
		succ := live[(i+1)%n]
		pushes[i] = successorPush{uid: m.uid, addr: m.addr, successor: wire.NodeRef{UID: succ.uid, Addr: succ.addr}}
	}
	r.mu.Unlock()

	r.pushSuccessors(pushes, members, epoch)
	return nil
}

// successorPush is one member's freshly assigned successor, snapshotted
// while the ring lock was held so pushSuccessors can run the network calls
// after release.
type successorPush struct {
	uid       int
	addr      string
	successor wire.NodeRef
}

// pushSuccessors delivers each push concurrently and waits for all of them,
// so RebuildRing returns only after every member has either applied its new
// assignment or failed to. A failed push is
// recorded and counted, not retried here; the member keeps its prior
// successor until the next RebuildRing reconciles it, per spec's
// failure-semantics for an unreachable node during ring assignment.
func (r *Registrar) pushSuccessors(pushes []successorPush, members []wire.NodeRef, epoch int64) {
	var wg sync.WaitGroup
	for _, p := range pushes {
		wg.Add(1)
		go func(p successorPush) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), successorPushTimeout)
			defer cancel()
			req := wire.SetSuccessorRequest{Epoch: epoch, Successor: p.successor, Members: members}
			if err := wire.PostJSON(ctx, p.addr+"/rpc/set-successor", req, nil); err != nil {
				telemetry.SuccessorPushFailuresTotal.WithLabelValues(strconv.Itoa(p.uid)).Inc()
				r.log.Record("", ledger.EventSuccessorPushFailed, fmt.Sprintf("uid=%d addr=%s err=%v", p.uid, p.addr, err))
			}
		}(p)
	}
	wg.Wait()
}

// Epoch returns the current ring epoch.
func (r *Registrar) Epoch() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.epoch
}

// Ledger exposes the registrar's election-event trace for operator/debug use.
func (r *Registrar) Ledger() *ledger.Ledger { return r.log }

func (r *Registrar) indexOf(uid int) int {
	return slices.IndexFunc(r.members, func(m *member) bool { return m.uid == uid })
}

func (r *Registrar) successorRefLocked(uid int) wire.NodeRef {
	idx := r.indexOf(uid)
	if idx < 0 {
		return wire.NodeRef{}
	}
	succUID := r.members[idx].successor
	if succUID == 0 {
		return wire.NodeRef{}
	}
	sidx := r.indexOf(succUID)
	if sidx < 0 {
		return wire.NodeRef{}
	}
	return wire.NodeRef{UID: r.members[sidx].uid, Addr: r.members[sidx].addr}
}

func (r *Registrar) memberRefsLocked() []wire.NodeRef {
	out := make([]wire.NodeRef, len(r.members))
	for i, m := range r.members {
		out[i] = wire.NodeRef{UID: m.uid, Addr: m.addr}
	}
	return out
}
