package httpapi

import (
	"errors"
	"net/http"

	"github.com/JPaulGrayson/QuackQuack/internal/apikeys"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

func (s *server) registerKeyRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/keys", s.requirePermission(types.PermAdmin, s.handleCreateKey))
	mux.HandleFunc("GET /api/keys", s.requirePermission(types.PermAdmin, s.handleListKeys))
	mux.HandleFunc("DELETE /api/keys/{id}", s.requirePermission(types.PermAdmin, s.handleRevokeKey))
}

type createKeyRequestBody struct {
	OwnerID     string                      `json:"ownerId"`
	Permissions []types.APIKeyPermission    `json:"permissions"`
}

type createKeyResponseBody struct {
	types.APIKey
	Token string `json:"token"`
}

func (s *server) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	var body createKeyRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Permissions) == 0 {
		body.Permissions = []types.APIKeyPermission{types.PermRead}
	}
	key, token, err := s.keys.Create(r.Context(), body.OwnerID, body.Permissions)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.audit != nil {
		s.audit.Record(types.ActionKeyCreate, actorFromRequest(r), "key", key.ID, map[string]any{"ownerId": body.OwnerID})
	}
	writeJSON(w, http.StatusOK, createKeyResponseBody{APIKey: key, Token: token})
}

func (s *server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.keys.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.keys.Revoke(r.Context(), id); err != nil {
		if errors.Is(err, apikeys.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.audit != nil {
		s.audit.Record(types.ActionKeyRevoke, actorFromRequest(r), "key", id, nil)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
