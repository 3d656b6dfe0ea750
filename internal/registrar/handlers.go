package registrar

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ringvote/ringvote/internal/wire"
)

// Server adapts a Registrar to an HTTP mux, in the teacher's small
// one-handler-per-operation style.
type Server struct {
	r   *Registrar
	log *zap.SugaredLogger
}

// NewServer wraps r for HTTP serving.
func NewServer(r *Registrar, log *zap.SugaredLogger) *Server {
	return &Server{r: r, log: log}
}

// Mux builds the Registrar's HTTP route table.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/unregister", s.handleUnregister)
	mux.HandleFunc("/begin-election", s.handleBeginElection)
	mux.HandleFunc("/end-election", s.handleEndElection)
	mux.HandleFunc("/election-status", s.handleElectionStatus)
	mux.HandleFunc("/rebuild-ring", s.handleRebuildRing)
	mux.HandleFunc("/members", s.handleMembers)
	mux.HandleFunc("/claim-recovery", s.handleClaimRecovery)
	mux.HandleFunc("/release-recovery", s.handleReleaseRecovery)
	mux.HandleFunc("/set-alive", s.handleSetAlive)
	mux.HandleFunc("/exclude", s.handleExclude)
	return mux
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req wire.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := s.r.Register(req.Node.UID, req.Node.Addr)
	if err != nil {
		s.writeElectionError(w, err)
		return
	}
	s.log.Infow("node registered", "uid", req.Node.UID, "addr", req.Node.Addr, "epoch", resp.Epoch)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request) {
	var req wire.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.r.Unregister(req.Node.UID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBeginElection(w http.ResponseWriter, r *http.Request) {
	recovery := r.URL.Query().Get("recovery") == "true"
	s.r.BeginElection(recovery)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleEndElection(w http.ResponseWriter, r *http.Request) {
	s.r.EndElection()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleElectionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"in_progress": s.r.IsElectionInProgress()})
}

func (s *Server) handleRebuildRing(w http.ResponseWriter, r *http.Request) {
	trigger := r.URL.Query().Get("trigger")
	if trigger == "" {
		trigger = "manual"
	}
	if err := s.r.RebuildRing(trigger); err != nil {
		s.writeElectionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.r.Directory())
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.r.Directory())
}

func (s *Server) handleClaimRecovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"claimed": s.r.TryClaimRecovery()})
}

func (s *Server) handleReleaseRecovery(w http.ResponseWriter, r *http.Request) {
	s.r.ReleaseRecovery()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetAlive(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UID   int  `json:"uid"`
		Alive bool `json:"alive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.r.SetAlive(req.UID, req.Alive)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExclude(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UID int `json:"uid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.r.ExcludeFromRing(req.UID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeElectionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if ee, ok := err.(*wire.ElectionError); ok {
		switch ee.Kind {
		case wire.ErrDuplicateRegistration:
			status = http.StatusConflict
		case wire.ErrElectionInProgress:
			status = http.StatusConflict
		case wire.ErrNoSuccessor:
			status = http.StatusPreconditionFailed
		}
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
