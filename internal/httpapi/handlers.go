package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/NoOrientationProgramming/code-orb/internal/queue"
)

// Engine is the subset of *engine.Engine the HTTP control surface depends
// on, defined as an interface so tests can substitute a fake.
type Engine interface {
	CommandSendPriority(text string, prio queue.Priority) (uint32, error)
	CommandResponseGet(id uint32) (string, bool)
	TargetOnline() bool
	LinkOnline() bool
	State() string
}

// Server holds the dependencies needed by the HTTP handlers.
type Server struct {
	engine Engine
}

// NewServer creates a Server wired to engine.
func NewServer(engine Engine) *Server {
	return &Server{engine: engine}
}

// handleHealthz responds to GET /healthz with HTTP 200 regardless of engine
// state, so orchestrators can distinguish "process is up" from "target is
// online" (the latter is /api/v1/status's job).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// statusResponse is the JSON body returned by GET /api/v1/status.
type statusResponse struct {
	State        string `json:"state"`
	TargetOnline bool   `json:"target_online"`
	LinkOnline   bool   `json:"link_online"`
}

// handleStatus responds to GET /api/v1/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(statusResponse{
		State:        s.engine.State(),
		TargetOnline: s.engine.TargetOnline(),
		LinkOnline:   s.engine.LinkOnline(),
	})
}

// commandRequest is the JSON body expected by POST /api/v1/command.
type commandRequest struct {
	Text     string `json:"text"`
	Priority string `json:"priority,omitempty"`
}

// commandSendResponse is the JSON body returned by POST /api/v1/command.
type commandSendResponse struct {
	ID uint32 `json:"id"`
}

// priorityByName maps the request body's "priority" field to a
// queue.Priority. PrioSysHigh is reserved for the scheduler's own internal
// use and is deliberately not reachable from this surface.
var priorityByName = map[string]queue.Priority{
	"":        queue.PrioUser,
	"user":    queue.PrioUser,
	"sys_low": queue.PrioSysLow,
}

// handleCommandSend responds to POST /api/v1/command.
func (s *Server) handleCommandSend(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "'text' is required")
		return
	}
	prio, ok := priorityByName[req.Priority]
	if !ok {
		writeError(w, http.StatusBadRequest, "'priority' must be one of: user, sys_low")
		return
	}

	id, err := s.engine.CommandSendPriority(req.Text, prio)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(commandSendResponse{ID: id})
}

// commandGetResponse is the JSON body returned by GET /api/v1/command/{id}.
type commandGetResponse struct {
	Ready    bool   `json:"ready"`
	Response string `json:"response,omitempty"`
}

// handleCommandGet responds to GET /api/v1/command/{id}. It returns HTTP 200
// with ready=false while the command is still in flight or queued, and
// ready=true with the response text once the scheduler has completed it. A
// second poll after the response has been delivered also returns
// ready=false: CommandResponseGet takes the response exactly once.
func (s *Server) handleCommandGet(w http.ResponseWriter, r *http.Request) {
	idStr := chi.URLParam(r, "id")
	id64, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "'id' must be a non-negative integer")
		return
	}

	reply, ready := s.engine.CommandResponseGet(uint32(id64))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(commandGetResponse{Ready: ready, Response: reply})
}
