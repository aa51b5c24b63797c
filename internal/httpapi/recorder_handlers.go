package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/JPaulGrayson/QuackQuack/internal/recorder"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

func (s *server) registerRecorderRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/agent/journal", s.requirePermission(types.PermWrite, s.journalHandler(types.JournalMessage)))
	mux.HandleFunc("POST /api/v1/agent/thought", s.requirePermission(types.PermWrite, s.journalHandler(types.JournalThought)))
	mux.HandleFunc("POST /api/v1/agent/error", s.requirePermission(types.PermWrite, s.journalHandler(types.JournalError)))
	mux.HandleFunc("POST /api/v1/agent/checkpoint", s.requirePermission(types.PermWrite, s.journalHandler(types.JournalCheckpoint)))

	mux.HandleFunc("GET /api/v1/agent/context/agent/{agentId...}", s.requirePermission(types.PermRead, s.handleContextForAgent))
	mux.HandleFunc("GET /api/v1/agent/context/{sessionId}", s.requirePermission(types.PermRead, s.handleContextForSession))
	mux.HandleFunc("GET /api/v1/agent/script/{agentId...}", s.requirePermission(types.PermRead, s.handleGenerateScript))

	mux.HandleFunc("POST /api/v1/agent/signin", s.requirePermission(types.PermWrite, s.handleSignin))
	mux.HandleFunc("POST /api/v1/agent/session/open", s.requirePermission(types.PermWrite, s.handleSessionOpen))
	mux.HandleFunc("POST /api/v1/agent/session/close", s.requirePermission(types.PermWrite, s.handleSessionClose))
	mux.HandleFunc("POST /api/v1/agent/session/new", s.requirePermission(types.PermWrite, s.handleSessionNew))
}

type journalRequestBody struct {
	AgentID   string                 `json:"agent_id"`
	SessionID string                 `json:"session_id,omitempty"`
	Content   string                 `json:"content"`
	Context   *types.ContextSnapshot `json:"context,omitempty"`
	Target    string                 `json:"target,omitempty"`
	Tags      []string               `json:"tags,omitempty"`
}

// journalHandler returns a handler bound to one of the four fixed journal
// entry types, sharing the session-selection-on-log logic (spec §4.H).
func (s *server) journalHandler(entryType types.JournalEntryType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body journalRequestBody
		if err := decodeJSON(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if body.AgentID == "" || body.Content == "" {
			writeError(w, http.StatusBadRequest, "agent_id and content are required")
			return
		}

		session, err := s.recorder.GetOrCreateSession(r.Context(), body.AgentID, body.SessionID)
		if err != nil {
			writeRecorderError(w, err)
			return
		}

		entry, err := s.recorder.SaveEntry(r.Context(), types.JournalEntry{
			SessionID: session.SessionID,
			AgentID:   body.AgentID,
			Type:      entryType,
			Content:   body.Content,
			Context:   body.Context,
			Target:    body.Target,
			Tags:      body.Tags,
		})
		if err != nil {
			writeRecorderError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"entry": entry, "session": session})
	}
}

func (s *server) handleContextForSession(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	summary, err := s.recorder.GetContextForSession(r.Context(), r.PathValue("sessionId"), limit)
	if err != nil {
		writeRecorderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *server) handleContextForAgent(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	summary, err := s.recorder.GetContextForAgent(r.Context(), r.PathValue("agentId"), limit)
	if err != nil {
		writeRecorderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *server) handleGenerateScript(w http.ResponseWriter, r *http.Request) {
	agentID := r.PathValue("agentId")
	var context *types.ContextSummary
	if r.URL.Query().Get("include_context") == "true" {
		summary, err := s.recorder.GetContextForAgent(r.Context(), agentID, 0)
		if err != nil {
			writeRecorderError(w, err)
			return
		}
		context = &summary
	}
	script, err := s.recorder.GenerateUniversalScript(r.Context(), agentID, context)
	if err != nil {
		writeRecorderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"script": script})
}

type signinRequestBody struct {
	AgentID string `json:"agent_id"`
}

func (s *server) handleSignin(w http.ResponseWriter, r *http.Request) {
	var body signinRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := s.recorder.GetOrCreateSession(r.Context(), body.AgentID, "")
	if err != nil {
		writeRecorderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type sessionOpenRequestBody struct {
	AgentID   string `json:"agent_id"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *server) handleSessionOpen(w http.ResponseWriter, r *http.Request) {
	var body sessionOpenRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := s.recorder.GetOrCreateSession(r.Context(), body.AgentID, body.SessionID)
	if err != nil {
		writeRecorderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type sessionCloseRequestBody struct {
	SessionID string `json:"session_id"`
}

func (s *server) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	var body sessionCloseRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.recorder.CloseSession(r.Context(), body.SessionID); err != nil {
		writeRecorderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type sessionNewRequestBody struct {
	AgentID string `json:"agent_id"`
}

func (s *server) handleSessionNew(w http.ResponseWriter, r *http.Request) {
	var body sessionNewRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	session, err := s.recorder.StartNewSession(r.Context(), body.AgentID)
	if err != nil {
		writeRecorderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func writeRecorderError(w http.ResponseWriter, err error) {
	if errors.Is(err, recorder.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
