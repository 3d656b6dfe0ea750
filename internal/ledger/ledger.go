// Package ledger keeps an in-memory, append-only trace of election activity
// on a node: every election/leader message sent or received, and the
// outcome of each round. It exists for operator debugging (the "debug"
// console command and the /debug endpoint) and is never persisted to disk.
package ledger

import (
	"sort"
	"sync"
	"sync/atomic"
)

// EventKind classifies an entry in the ledger.
type EventKind string

const (
	EventElectionSent     EventKind = "election_sent"
	EventElectionReceived EventKind = "election_received"
	EventElectionForward  EventKind = "election_forward"
	EventBecameLeader     EventKind = "became_leader"
	EventLeaderSent       EventKind = "leader_sent"
	EventLeaderReceived   EventKind = "leader_received"
	EventLeaderForward    EventKind = "leader_forward"
	EventRoundComplete    EventKind = "round_complete"
	EventRecoveryStarted  EventKind = "recovery_started"
	EventSuccessorPushFailed EventKind = "successor_push_failed"
)

// Entry is one recorded event.
type Entry struct {
	Seq       uint64
	RoundID   string
	Kind      EventKind
	Detail    string
}

// Stats summarizes event counts by kind, for quick operator inspection
// without walking the full trace.
type Stats struct {
	Sent       uint64
	Received   uint64
	Forwarded  uint64
	Recoveries uint64
}

// Ledger is a bounded, thread-safe append-only log of election events for a
// single node.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
	maxSize int
	seq     uint64

	sent       uint64
	received   uint64
	forwarded  uint64
	recoveries uint64
}

// New creates a Ledger retaining at most maxSize entries (oldest dropped
// first). maxSize <= 0 means unbounded.
func New(maxSize int) *Ledger {
	return &Ledger{maxSize: maxSize}
}

// Record appends an event to the ledger and updates its running stats.
func (l *Ledger) Record(roundID string, kind EventKind, detail string) {
	switch kind {
	case EventElectionSent, EventLeaderSent:
		atomic.AddUint64(&l.sent, 1)
	case EventElectionReceived, EventLeaderReceived:
		atomic.AddUint64(&l.received, 1)
	case EventElectionForward, EventLeaderForward:
		atomic.AddUint64(&l.forwarded, 1)
	case EventRecoveryStarted:
		atomic.AddUint64(&l.recoveries, 1)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	l.entries = append(l.entries, Entry{Seq: l.seq, RoundID: roundID, Kind: kind, Detail: detail})
	if l.maxSize > 0 && len(l.entries) > l.maxSize {
		drop := len(l.entries) - l.maxSize
		l.entries = l.entries[drop:]
	}
}

// All returns a copy of the full recorded trace, oldest first.
func (l *Ledger) All() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// ForRound returns every entry recorded under the given round ID, oldest
// first.
func (l *Ledger) ForRound(roundID string) []Entry {
	all := l.All()
	out := make([]Entry, 0, len(all))
	for _, e := range all {
		if e.RoundID == roundID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Stats returns current cumulative counters.
func (l *Ledger) Stats() Stats {
	return Stats{
		Sent:       atomic.LoadUint64(&l.sent),
		Received:   atomic.LoadUint64(&l.received),
		Forwarded:  atomic.LoadUint64(&l.forwarded),
		Recoveries: atomic.LoadUint64(&l.recoveries),
	}
}
