// Package toolhost implements Component J: a streamed request/response
// tool transport. Each client opens a server-sent-events connection and
// receives a session id; it pushes JSON-RPC frames to a POST endpoint
// parameterized with that id, and reads the responses back over the open
// SSE stream. Tool calls translate 1:1 into mailbox operations.
package toolhost

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/ids"
	"github.com/JPaulGrayson/QuackQuack/internal/mailbox"
)

// session is one open SSE connection and the outbound frame queue feeding
// it, grounded on the bridge's Connection shape (a struct owning a
// transport handle plus serialized delivery state) generalized from a
// websocket write to an SSE event write.
type session struct {
	id     string
	events chan []byte
	done   chan struct{}
}

// Server is the tool host's connection table plus the mailbox operations
// its five tools translate into.
type Server struct {
	logger  *log.Logger
	mailbox mailbox.Store

	mu       sync.RWMutex
	sessions map[string]*session
}

// New constructs a Server. mailboxStore is the full mailbox.Store since
// every tool this server exposes is a direct 1:1 mailbox operation.
func New(logger *log.Logger, mailboxStore mailbox.Store) *Server {
	if logger == nil {
		logger = log.New(log.Writer(), "toolhost ", log.LstdFlags)
	}
	return &Server{logger: logger, mailbox: mailboxStore, sessions: make(map[string]*session)}
}

// SSEHandler implements the GET event-stream endpoint (mounted at
// /toolhost/stream by cmd/quack-toolhost): it opens an
// event stream, announces the POST endpoint for this connection via an
// "endpoint" event, then blocks forwarding queued response frames until
// the client disconnects.
func (s *Server) SSEHandler(messagesPath string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		sess := &session{id: ids.New(), events: make(chan []byte, 64), done: make(chan struct{})}
		s.mu.Lock()
		s.sessions[sess.id] = sess
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess.id)
			s.mu.Unlock()
			close(sess.done)
		}()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		fmt.Fprintf(w, "event: endpoint\ndata: %s?sessionId=%s\n\n", messagesPath, sess.id)
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case frame := <-sess.events:
				fmt.Fprintf(w, "event: message\ndata: %s\n\n", frame)
				flusher.Flush()
			}
		}
	}
}

// MessagesHandler implements the POST endpoint a client pushes JSON-RPC
// frames to, addressed by the sessionId the SSE endpoint event handed it.
func (s *Server) MessagesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		sessionID := r.URL.Query().Get("sessionId")
		s.mu.RLock()
		sess, ok := s.sessions[sessionID]
		s.mu.RUnlock()
		if !ok {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}

		var req jsonrpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.deliver(sess, jsonrpcResponse{JSONRPC: jsonrpcVersion, Error: &jsonrpcError{Code: errCodeParse, Message: "invalid json"}})
			w.WriteHeader(http.StatusAccepted)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		resp := s.handle(ctx, req)
		s.deliver(sess, resp)
		w.WriteHeader(http.StatusAccepted)
	}
}

func (s *Server) deliver(sess *session, resp jsonrpcResponse) {
	encoded, err := json.Marshal(resp)
	if err != nil {
		s.logger.Printf("toolhost: marshal response failed: %v", err)
		return
	}
	select {
	case sess.events <- encoded:
	case <-sess.done:
	default:
		s.logger.Printf("toolhost: session %s event queue full, dropping a response", sess.id)
	}
}

func (s *Server) handle(ctx context.Context, req jsonrpcRequest) jsonrpcResponse {
	resp := jsonrpcResponse{JSONRPC: jsonrpcVersion, ID: req.ID}

	switch req.Method {
	case "tools/list":
		result, err := json.Marshal(toolsListResult{Tools: toolDefinitions()})
		if err != nil {
			resp.Error = &jsonrpcError{Code: errCodeInternal, Message: err.Error()}
			return resp
		}
		resp.Result = result
	case "tools/call":
		var params toolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			resp.Error = &jsonrpcError{Code: errCodeInvalidParams, Message: "invalid params"}
			return resp
		}
		result, err := s.callTool(ctx, params.Name, params.Arguments)
		if err != nil {
			resp.Result = errorResult(err.Error())
			return resp
		}
		resp.Result = result
	default:
		resp.Error = &jsonrpcError{Code: errCodeMethodNotFound, Message: "unknown method " + req.Method}
	}
	return resp
}

func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	switch name {
	case "send":
		return s.toolSend(ctx, args)
	case "check":
		return s.toolCheck(ctx, args)
	case "receive":
		return s.toolReceive(ctx, args)
	case "complete":
		return s.toolComplete(ctx, args)
	case "reply":
		return s.toolReply(ctx, args)
	default:
		return nil, fmt.Errorf("unknown tool %q", name)
	}
}
