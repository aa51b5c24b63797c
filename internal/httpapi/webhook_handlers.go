package httpapi

import (
	"errors"
	"net/http"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
	"github.com/JPaulGrayson/QuackQuack/internal/webhook"
)

func (s *server) registerWebhookRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/webhooks", s.requirePermission(types.PermWrite, s.handleSubscribe))
	mux.HandleFunc("GET /api/webhooks", s.requirePermission(types.PermRead, s.handleListWebhooks))
	mux.HandleFunc("DELETE /api/webhooks/{id}", s.requirePermission(types.PermWrite, s.handleUnsubscribe))
}

type subscribeRequestBody struct {
	Inbox  string `json:"inbox"`
	URL    string `json:"url"`
	Secret string `json:"secret,omitempty"`
}

func (s *server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var body subscribeRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Inbox == "" || body.URL == "" {
		writeError(w, http.StatusBadRequest, "inbox and url are required")
		return
	}
	sub, err := s.subs.Subscribe(r.Context(), body.Inbox, body.URL, body.Secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.audit != nil {
		s.audit.Record(types.ActionWebhookSubscribe, actorFromRequest(r), "webhook", sub.ID, map[string]any{"inbox": body.Inbox})
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *server) handleListWebhooks(w http.ResponseWriter, r *http.Request) {
	subs, err := s.subs.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.subs.Unsubscribe(r.Context(), id); err != nil {
		if errors.Is(err, webhook.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.audit != nil {
		s.audit.Record(types.ActionWebhookRemove, actorFromRequest(r), "webhook", id, nil)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
