// Package testserver provides a minimal chi-based reference implementation
// of the Control/Heartbeat wire contract (spec §6), for exercising
// internal/control's Client against real HTTP round-trips in tests.
//
// Grounded on the wire contract in spec.md §6 ("Control/Heartbeat wire
// contract") and the go-chi/chi/v5 router used for the same purpose in the
// quorum-ai example repo.
package testserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Server is an in-memory reference dashboard implementing the three
// endpoints: heartbeat ingestion, command draining, and control enqueue.
type Server struct {
	mu         sync.Mutex
	heartbeats map[string]map[string]any
	commands   map[string][]string

	httpServer *httptest.Server
}

// New builds and starts the reference server; callers must Close it.
func New() *Server {
	s := &Server{
		heartbeats: make(map[string]map[string]any),
		commands:   make(map[string][]string),
	}

	r := chi.NewRouter()
	r.Post("/api/agents/{id}/heartbeat", s.handleHeartbeat)
	r.Get("/api/agents/{id}/commands", s.handleCommands)
	r.Post("/api/control", s.handleControl)

	s.httpServer = httptest.NewServer(r)
	return s
}

// URL returns the server's base URL, suitable for control.New's baseURL.
func (s *Server) URL() string { return s.httpServer.URL }

// Close shuts the server down.
func (s *Server) Close() { s.httpServer.Close() }

// Enqueue pushes a command for agentID, as POST /api/control would.
func (s *Server) Enqueue(agentID, command string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands[agentID] = append(s.commands[agentID], command)
}

// LastHeartbeat returns the most recently received partial state for an
// agent, for test assertions.
func (s *Server) LastHeartbeat(agentID string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hb, ok := s.heartbeats[agentID]
	return hb, ok
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")
	var partial map[string]any
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.heartbeats[agentID] = partial
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")

	s.mu.Lock()
	commands := s.commands[agentID]
	s.commands[agentID] = nil // drain atomically on read
	s.mu.Unlock()

	if commands == nil {
		commands = []string{}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"commands": commands})
}

type controlRequest struct {
	AgentID string `json:"agent_id"`
	Command string `json:"command"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	switch req.Command {
	case "stop", "pause", "resume", "skip":
		s.Enqueue(req.AgentID, req.Command)
	default:
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}
