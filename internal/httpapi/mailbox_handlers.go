package httpapi

import (
	"errors"
	"net/http"

	"github.com/JPaulGrayson/QuackQuack/internal/mailbox"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

func (s *server) registerMailboxRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/send", s.requirePermission(types.PermWrite, s.handleSend))
	mux.HandleFunc("GET /api/inbox/{path...}", s.requirePermission(types.PermRead, s.handleCheckInbox))
	mux.HandleFunc("GET /api/message/{id}", s.requirePermission(types.PermRead, s.handleGetMessage))
	mux.HandleFunc("POST /api/receive/{id}", s.requirePermission(types.PermWrite, s.handleReceive))
	mux.HandleFunc("POST /api/complete/{id}", s.requirePermission(types.PermWrite, s.handleComplete))
	mux.HandleFunc("POST /api/approve/{id}", s.requirePermission(types.PermWrite, s.handleApprove))
	mux.HandleFunc("POST /api/status/{id}", s.requirePermission(types.PermWrite, s.handleUpdateStatus))
	mux.HandleFunc("DELETE /api/message/{id}", s.requirePermission(types.PermWrite, s.handleDeleteMessage))
	mux.HandleFunc("GET /api/threads", s.requirePermission(types.PermRead, s.handleListThreads))
	mux.HandleFunc("GET /api/thread/{id}", s.requirePermission(types.PermRead, s.handleGetThread))
}

type sendRequestBody struct {
	To      string           `json:"to"`
	From    string           `json:"from"`
	Task    string           `json:"task"`
	Context string           `json:"context,omitempty"`
	Files   []types.FileRef  `json:"files,omitempty"`

	Project             string          `json:"project,omitempty"`
	ProjectName         string          `json:"projectName,omitempty"`
	ConversationExcerpt string          `json:"conversationExcerpt,omitempty"`
	Priority            types.Priority  `json:"priority,omitempty"`
	Tags                []string        `json:"tags,omitempty"`

	Routing     types.Routing `json:"routing,omitempty"`
	Destination string        `json:"destination,omitempty"`
	ReplyTo     string        `json:"replyTo,omitempty"`

	RequireApproval *bool `json:"requireApproval,omitempty"`
}

type sendResponseBody struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId"`
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	var body sendRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := s.mailbox.Send(r.Context(), mailbox.SendRequest{
		To:                  body.To,
		From:                body.From,
		Task:                body.Task,
		Context:             body.Context,
		Files:               body.Files,
		Project:             body.Project,
		ProjectName:         body.ProjectName,
		ConversationExcerpt: body.ConversationExcerpt,
		Priority:            body.Priority,
		Tags:                body.Tags,
		Routing:             body.Routing,
		Destination:         body.Destination,
		ReplyTo:             body.ReplyTo,
		RequireApproval:     body.RequireApproval,
		SourceAddress:       actorFromRequest(r),
	})
	if err != nil {
		writeMailboxError(w, err)
		return
	}

	if s.audit != nil {
		s.audit.Record(types.ActionMessageSend, body.From, "message", msg.ID, map[string]any{"to": body.To})
	}
	if s.convo != nil {
		s.convo.RecordSend(r.Context(), body.From, body.To, msg.ThreadID, msg.IsControlMessage, msg.ControlType)
	}
	if s.fanout != nil {
		s.fanout.NotifySubscribers(r.Context(), types.EventMessageReceived, msg)
		s.fanout.AutoWake(r.Context(), msg, s.webhookSecret)
	}

	writeJSON(w, http.StatusOK, sendResponseBody{Success: true, MessageID: msg.ID})
}

type checkInboxResponseBody struct {
	Inbox    string          `json:"inbox"`
	Messages []types.Message `json:"messages"`
	Count    int             `json:"count"`
}

func (s *server) handleCheckInbox(w http.ResponseWriter, r *http.Request) {
	path := r.PathValue("path")
	includeRead := r.URL.Query().Get("includeRead") == "true"
	autoApprove := r.URL.Query().Get("autoApprove") == "true"

	messages, err := s.mailbox.CheckInbox(r.Context(), path, includeRead, autoApprove)
	if err != nil {
		writeMailboxError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInboxResponseBody{Inbox: path, Messages: messages, Count: len(messages)})
}

func (s *server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	msg, err := s.mailbox.GetMessage(r.Context(), r.PathValue("id"))
	if err != nil {
		writeMailboxError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *server) handleReceive(w http.ResponseWriter, r *http.Request) {
	msg, err := s.mailbox.MarkRead(r.Context(), r.PathValue("id"))
	if err != nil {
		writeMailboxError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *server) handleComplete(w http.ResponseWriter, r *http.Request) {
	msg, err := s.mailbox.Complete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeMailboxError(w, err)
		return
	}
	if s.audit != nil {
		s.audit.Record(types.ActionMessageComplete, actorFromRequest(r), "message", msg.ID, nil)
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *server) handleApprove(w http.ResponseWriter, r *http.Request) {
	msg, err := s.mailbox.Approve(r.Context(), r.PathValue("id"))
	if err != nil {
		writeMailboxError(w, err)
		return
	}
	if s.audit != nil {
		s.audit.Record(types.ActionMessageApprove, actorFromRequest(r), "message", msg.ID, nil)
	}
	if s.fanout != nil {
		s.fanout.NotifySubscribers(r.Context(), types.EventMessageApproved, msg)
	}

	if ping, err := mailbox.SendPing(r.Context(), s.mailbox, msg.To); err != nil {
		s.logger.Printf("mailbox: ping append for %s failed: %v", msg.To, err)
	} else if s.audit != nil {
		s.audit.Record(types.ActionMessageSend, "quack-system", "message", ping.ID, map[string]any{"to": msg.To, "ping": true})
	}

	writeJSON(w, http.StatusOK, msg)
}

type updateStatusRequestBody struct {
	Status types.Status `json:"status"`
}

func (s *server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var body updateStatusRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	msg, err := s.mailbox.UpdateStatus(r.Context(), r.PathValue("id"), body.Status)
	if err != nil {
		writeMailboxError(w, err)
		return
	}
	if s.audit != nil {
		s.audit.Record(types.ActionMessageStatus, actorFromRequest(r), "message", msg.ID, map[string]any{"status": string(body.Status)})
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.mailbox.Delete(r.Context(), id); err != nil {
		writeMailboxError(w, err)
		return
	}
	if s.audit != nil {
		s.audit.Record(types.ActionMessageDelete, actorFromRequest(r), "message", id, nil)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type threadSummary struct {
	ThreadID string          `json:"threadId"`
	Messages []types.Message `json:"messages"`
}

func (s *server) handleListThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := s.mailbox.ListThreads(r.Context())
	if err != nil {
		writeMailboxError(w, err)
		return
	}
	out := make([]threadSummary, 0, len(threads))
	for _, t := range threads {
		out = append(out, threadSummary{ThreadID: t.ThreadID, Messages: t.Messages})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleGetThread(w http.ResponseWriter, r *http.Request) {
	messages, err := s.mailbox.GetThread(r.Context(), r.PathValue("id"))
	if err != nil {
		writeMailboxError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, threadSummary{ThreadID: r.PathValue("id"), Messages: messages})
}

func writeMailboxError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, mailbox.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, mailbox.ErrInvalidPath), errors.Is(err, mailbox.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
