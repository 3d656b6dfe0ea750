package node

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ringvote/ringvote/internal/config"
	"github.com/ringvote/ringvote/internal/logging"
	"github.com/ringvote/ringvote/internal/wire"
)

func newTestNode(t *testing.T, uid int, successorAddr, registrarAddr string) *Node {
	t.Helper()
	cfg := config.Node{
		UID:             uid,
		Addr:            "http://node",
		RegistrarAddr:   registrarAddr,
		RetryAttempts:   2,
		RetryDelay:      10 * time.Millisecond,
		NetworkDelay:    0,
		ElectionTimeoutDur: 200 * time.Millisecond,
		MaxElectionRounds:  2,
	}
	n := New(uid, cfg, logging.Nop())
	n.mu.Lock()
	n.state = StateIdle
	n.successor = wire.NodeRef{UID: uid + 1, Addr: successorAddr}
	n.mu.Unlock()
	return n
}

func okRegistrarServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/claim-recovery":
			json.NewEncoder(w).Encode(map[string]bool{"claimed": true})
		case "/rebuild-ring":
			json.NewEncoder(w).Encode(wire.MembersResponse{Epoch: 1})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
}

func TestReceiveElectionForwardsHigherCandidate(t *testing.T) {
	received := make(chan wire.ElectionMessage, 1)
	successor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg wire.ElectionMessage
		json.NewDecoder(r.Body).Decode(&msg)
		received <- msg
		w.WriteHeader(http.StatusNoContent)
	}))
	defer successor.Close()
	registrar := okRegistrarServer(t)
	defer registrar.Close()

	n := newTestNode(t, 5, successor.URL, registrar.URL)
	n.ReceiveElection(context.Background(), wire.ElectionMessage{CandidateUID: 9, OriginUID: 9})

	select {
	case msg := <-received:
		if msg.CandidateUID != 9 || msg.OriginUID != 9 {
			t.Errorf("forwarded message = %+v, want candidate=9 origin=9", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for forward")
	}
	if n.Status().State != StateInProgress {
		t.Errorf("state = %v, want IN_PROGRESS", n.Status().State)
	}
}

func TestReceiveElectionUsurpsOwnToken(t *testing.T) {
	received := make(chan wire.ElectionMessage, 1)
	successor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg wire.ElectionMessage
		json.NewDecoder(r.Body).Decode(&msg)
		received <- msg
		w.WriteHeader(http.StatusNoContent)
	}))
	defer successor.Close()
	registrar := okRegistrarServer(t)
	defer registrar.Close()

	n := newTestNode(t, 7, successor.URL, registrar.URL)
	n.ReceiveElection(context.Background(), wire.ElectionMessage{CandidateUID: 7, OriginUID: 3})

	select {
	case msg := <-received:
		if msg.CandidateUID != 7 || msg.OriginUID != 7 {
			t.Errorf("forwarded message = %+v, want candidate=7 origin=7 (usurp)", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for usurp forward")
	}
}

func TestReceiveElectionCircuitCompleteBecomesLeader(t *testing.T) {
	leaderMsgs := make(chan wire.LeaderMessage, 1)
	successor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rpc/leader" {
			var msg wire.LeaderMessage
			json.NewDecoder(r.Body).Decode(&msg)
			leaderMsgs <- msg
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer successor.Close()
	registrar := okRegistrarServer(t)
	defer registrar.Close()

	n := newTestNode(t, 11, successor.URL, registrar.URL)
	n.ReceiveElection(context.Background(), wire.ElectionMessage{CandidateUID: 11, OriginUID: 11})

	select {
	case msg := <-leaderMsgs:
		if msg.LeaderUID != 11 {
			t.Errorf("leader uid = %d, want 11", msg.LeaderUID)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for leader announcement")
	}
	snap := n.Status()
	if snap.State != StateLeaderAnnounced || snap.LeaderUID != 11 {
		t.Errorf("snapshot = %+v, want LEADER_ANNOUNCED/11", snap)
	}
}

func TestReceiveElectionDropsLowerCandidateWhileInProgress(t *testing.T) {
	var forwardCount int32
	successor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwardCount++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer successor.Close()
	registrar := okRegistrarServer(t)
	defer registrar.Close()

	n := newTestNode(t, 9, successor.URL, registrar.URL)
	n.mu.Lock()
	n.state = StateInProgress
	n.mu.Unlock()

	n.ReceiveElection(context.Background(), wire.ElectionMessage{CandidateUID: 3, OriginUID: 3})
	time.Sleep(50 * time.Millisecond)

	if forwardCount != 0 {
		t.Errorf("expected no forward for stale lower candidate, got %d calls", forwardCount)
	}
}

func TestReceiveElectionDropsWhenDead(t *testing.T) {
	var forwardCount int32
	successor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		forwardCount++
		w.WriteHeader(http.StatusNoContent)
	}))
	defer successor.Close()
	registrar := okRegistrarServer(t)
	defer registrar.Close()

	n := newTestNode(t, 9, successor.URL, registrar.URL)
	n.mu.Lock()
	n.state = StateDead
	n.mu.Unlock()

	n.ReceiveElection(context.Background(), wire.ElectionMessage{CandidateUID: 20, OriginUID: 20})
	time.Sleep(50 * time.Millisecond)

	if forwardCount != 0 {
		t.Errorf("expected no forward when dead, got %d calls", forwardCount)
	}
}

func TestInitiateElectionRejectedWithoutSuccessor(t *testing.T) {
	registrar := okRegistrarServer(t)
	defer registrar.Close()
	n := newTestNode(t, 5, "", registrar.URL)
	n.mu.Lock()
	n.successor = wire.NodeRef{}
	n.mu.Unlock()

	err := n.InitiateElection(context.Background(), false)
	var ee *wire.ElectionError
	if !asErr(err, &ee) || ee.Kind != wire.ErrNoSuccessor {
		t.Fatalf("err = %v, want ErrNoSuccessor", err)
	}
}

func TestInitiateElectionRejectedWhileInProgress(t *testing.T) {
	registrar := okRegistrarServer(t)
	defer registrar.Close()
	n := newTestNode(t, 5, "http://successor", registrar.URL)
	n.mu.Lock()
	n.state = StateInProgress
	n.mu.Unlock()

	err := n.InitiateElection(context.Background(), false)
	var ee *wire.ElectionError
	if !asErr(err, &ee) || ee.Kind != wire.ErrElectionInProgress {
		t.Fatalf("err = %v, want ErrElectionInProgress", err)
	}
}

func asErr(err error, target **wire.ElectionError) bool {
	ee, ok := err.(*wire.ElectionError)
	if ok {
		*target = ee
	}
	return ok
}
