package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/registry"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

func (s *server) registerAgentRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/agents", s.requirePermission(types.PermWrite, s.handleCreateAgent))
	mux.HandleFunc("GET /api/agents", s.requirePermission(types.PermRead, s.handleListAgents))
	mux.HandleFunc("GET /api/agents/{platform}/{name}", s.requirePermission(types.PermRead, s.handleGetAgent))
	mux.HandleFunc("PUT /api/agents/{platform}/{name}", s.requirePermission(types.PermWrite, s.handleUpdateAgent))
	mux.HandleFunc("DELETE /api/agents/{platform}/{name}", s.requirePermission(types.PermWrite, s.handleDeleteAgent))
	mux.HandleFunc("POST /api/agents/{platform}/{name}/ping", s.requirePermission(types.PermWrite, s.handlePingAgent))
}

func (s *server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var agent types.Agent
	if err := decodeJSON(r, &agent); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	created, err := s.registry.Create(r.Context(), agent)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	if s.audit != nil {
		s.audit.Record(types.ActionAgentRegister, actorFromRequest(r), "agent", created.Identifier(), nil)
	}
	writeJSON(w, http.StatusOK, created)
}

func (s *server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := registry.ListFilter{
		Platform:   q.Get("platform"),
		Capability: q.Get("capability"),
	}
	if v := q.Get("public"); v != "" {
		want := v == "true"
		filter.Public = &want
	}
	agents, err := s.registry.List(r.Context(), filter)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func agentID(r *http.Request) string {
	return r.PathValue("platform") + "/" + r.PathValue("name")
}

func (s *server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.registry.Get(r.Context(), agentID(r))
	if err != nil {
		writeAgentError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var agent types.Agent
	if err := decodeJSON(r, &agent); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	agent.ID = agentID(r)
	updated, err := s.registry.Update(r.Context(), agent)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	if s.audit != nil {
		s.audit.Record(types.ActionAgentUpdate, actorFromRequest(r), "agent", updated.Identifier(), nil)
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	id := agentID(r)
	if err := s.registry.Delete(r.Context(), id); err != nil {
		writeAgentError(w, err)
		return
	}
	if s.audit != nil {
		s.audit.Record(types.ActionAgentDelete, actorFromRequest(r), "agent", id, nil)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *server) handlePingAgent(w http.ResponseWriter, r *http.Request) {
	id := agentID(r)
	agent, err := s.registry.Ping(r.Context(), id)
	if err != nil {
		writeAgentError(w, err)
		return
	}
	if s.audit != nil {
		s.audit.Record(types.ActionAgentPing, actorFromRequest(r), "agent", id, map[string]any{"lastSeen": agent.LastSeen.Format(time.RFC3339)})
	}
	writeJSON(w, http.StatusOK, agent)
}

func writeAgentError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, registry.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
