package node

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ringvote/ringvote/internal/wire"
)

// Mux builds the Node's HTTP route table: the two ring RPCs, the
// operator-facing status/debug endpoints, and a /control/{action} path used
// by remote callers and the integration tests to drive the same operations
// the console commands do.
func (n *Node) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc/election", n.handleReceiveElection)
	mux.HandleFunc("/rpc/leader", n.handleReceiveLeader)
	mux.HandleFunc("/rpc/set-successor", n.handleSetSuccessor)
	mux.HandleFunc("/status", n.handleStatus)
	mux.HandleFunc("/debug", n.handleDebug)
	mux.HandleFunc("/control/", n.handleControl)
	return mux
}

func (n *Node) handleReceiveElection(w http.ResponseWriter, r *http.Request) {
	var msg wire.ElectionMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Forwarding runs on goroutines that outlive this request, so they get a
	// context that is not canceled when the handler returns.
	n.ReceiveElection(context.WithoutCancel(r.Context()), msg)
	w.WriteHeader(http.StatusNoContent)
}

func (n *Node) handleReceiveLeader(w http.ResponseWriter, r *http.Request) {
	var msg wire.LeaderMessage
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.ReceiveLeader(context.WithoutCancel(r.Context()), msg)
	w.WriteHeader(http.StatusNoContent)
}

func (n *Node) handleSetSuccessor(w http.ResponseWriter, r *http.Request) {
	var req wire.SetSuccessorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	n.SetSuccessor(req)
	w.WriteHeader(http.StatusNoContent)
}

func (n *Node) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := n.Status()
	writeJSON(w, http.StatusOK, wire.StatusResponse{
		UID:             snap.UID,
		Alive:           snap.Alive,
		ElectionRunning: snap.State == StateInProgress,
		Leader:          snap.LeaderUID,
		HasLeader:       snap.HasLeader,
		Epoch:           snap.Epoch,
	})
}

func (n *Node) handleDebug(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, n.ledger.All())
}

// handleControl maps /control/{action} onto the same operations the
// operator console's command loop dispatches to.
func (n *Node) handleControl(w http.ResponseWriter, r *http.Request) {
	action := strings.TrimPrefix(r.URL.Path, "/control/")
	var err error
	switch action {
	case "start":
		// the election timer and first forward outlive this request
		err = n.InitiateElection(context.WithoutCancel(r.Context()), false)
	case "kill":
		err = n.SetAlive(r.Context(), false)
	case "recover":
		err = n.Recover(r.Context())
	case "reset":
		n.Reset()
	default:
		http.Error(w, "unknown control action: "+action, http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
