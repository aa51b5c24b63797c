package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JPaulGrayson/QuackQuack/internal/mailbox"
	"github.com/JPaulGrayson/QuackQuack/internal/registry"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ConnectHandler upgrades an HTTP request to a websocket and hands it to
// the Hub, grounded on the teacher's gorilla/websocket Upgrade call.
func (h *Hub) ConnectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Printf("bridge: upgrade failed: %v", err)
			return
		}
		h.Serve(r.Context(), conn)
	}
}

type relayResponse struct {
	Success   bool          `json:"success"`
	MessageID string        `json:"message_id,omitempty"`
	Status    types.Status  `json:"status,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// RelayHandler implements spec §4.G "GET-only relay": the same send-then-
// approve delivery path as the bridge's mailbox fallback, reachable over
// plain HTTP for clients that cannot hold a websocket open.
func (h *Hub) RelayHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()
		from := q.Get("from")
		to := q.Get("to")
		task := q.Get("task")
		if from == "" || to == "" || task == "" {
			writeRelayJSON(w, http.StatusBadRequest, relayResponse{Success: false, Error: "from, to, and task are required"})
			return
		}

		req := mailbox.SendRequest{
			To:                     to,
			From:                   from,
			Task:                   task,
			Context:                q.Get("context"),
			Project:                q.Get("project"),
			ReplyTo:                q.Get("replyTo"),
			ProjectMetadataImplied: true,
		}
		if priority := q.Get("priority"); priority != "" {
			req.Priority = types.Priority(priority)
		}

		msg, err := h.mailbox.Send(r.Context(), req)
		if err != nil {
			writeRelayJSON(w, http.StatusBadRequest, relayResponse{Success: false, Error: err.Error()})
			return
		}
		approved := msg
		if msg.Status == types.StatusPending {
			approved, err = h.mailbox.Approve(r.Context(), msg.ID)
			if err != nil {
				writeRelayJSON(w, http.StatusConflict, relayResponse{Success: false, Error: err.Error()})
				return
			}
		}

		if h.audit != nil {
			h.audit.Record(types.ActionBridgeRelay, from, "message", approved.ID, map[string]any{"to": to})
		}

		if ping, err := mailbox.SendPing(r.Context(), h.mailbox, approved.To); err != nil {
			h.logger.Printf("bridge: ping append for %s failed: %v", approved.To, err)
		} else if h.audit != nil {
			h.audit.Record(types.ActionMessageSend, "quack-system", "message", ping.ID, map[string]any{"to": approved.To, "ping": true})
		}

		writeRelayJSON(w, http.StatusOK, relayResponse{Success: true, MessageID: approved.ID, Status: approved.Status})
	}
}

func writeRelayJSON(w http.ResponseWriter, status int, body relayResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type sendRequestBody struct {
	From     string         `json:"from"`
	To       string         `json:"to"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type sendResponseBody struct {
	Delivered bool `json:"delivered"`
}

// SendHandler implements `POST /bridge/send`: the HTTP-side equivalent of a
// connected client's `message` frame, for callers with no open bridge
// socket. A live target gets a direct write and a ping cue; an offline one
// falls through to the same mailbox fallback the socket path uses.
func (h *Hub) SendHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body sendRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeRelayJSON(w, http.StatusBadRequest, relayResponse{Success: false, Error: "invalid request body"})
			return
		}
		if body.From == "" || body.To == "" || body.Content == "" {
			writeRelayJSON(w, http.StatusBadRequest, relayResponse{Success: false, Error: "from, to, and content are required"})
			return
		}

		if target, ok := h.lookupConnection(body.To); ok {
			delivered := target.writeEnvelope(FrameMessage, messageFrame{To: body.To, Content: body.Content, Metadata: body.Metadata}) == nil
			if delivered {
				h.playPing(r.Context(), target, body.From)
			}
			writeSendJSON(w, http.StatusOK, sendResponseBody{Delivered: delivered})
			return
		}

		if err := h.deliverViaMailbox(r.Context(), body.From, body.To, body.Content); err != nil {
			h.logger.Printf("bridge: mailbox fallback for %s -> %s failed: %v", body.From, body.To, err)
		}
		writeSendJSON(w, http.StatusOK, sendResponseBody{Delivered: false})
	}
}

func writeSendJSON(w http.ResponseWriter, status int, body sendResponseBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type agentsResponseBody struct {
	Agents []agentSummary `json:"agents"`
}

// AgentsHandler implements `GET /bridge/agents`: the HTTP-side equivalent of
// a connected client's `list_agents` frame, filterable by the platform and
// capability query parameters. Only agents with an open connection are
// listed; there is no online filter.
func (h *Hub) AgentsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := r.URL.Query()

		h.mu.RLock()
		summaries := make([]agentSummary, 0, len(h.connections))
		for agentID, c := range h.connections {
			c.mu.Lock()
			caps := c.capabilities
			c.mu.Unlock()
			summaries = append(summaries, agentSummary{AgentID: agentID, Online: true, Capabilities: caps})
		}
		h.mu.RUnlock()

		filtered := summaries[:0]
		for _, s := range summaries {
			if platform := q.Get("platform"); platform != "" && registry.RootPlatform(s.AgentID) != strings.ToLower(platform) {
				continue
			}
			if capability := q.Get("capability"); capability != "" && !containsString(s.Capabilities, capability) {
				continue
			}
			filtered = append(filtered, s)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(agentsResponseBody{Agents: filtered})
	}
}

type statusResponseBody struct {
	OnlineCount int      `json:"onlineCount"`
	OnlineAgents []string `json:"onlineAgents"`
}

// StatusHandler implements `GET /bridge/status`: a cheap liveness summary of
// the connection table, independent of any one agent's identity.
func (h *Hub) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h.mu.RLock()
		online := h.onlineAgentIDsLocked()
		h.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(statusResponseBody{OnlineCount: len(online), OnlineAgents: online})
	}
}

// RunHeartbeatSweep blocks, reaping stale connections every 30s until ctx
// is cancelled (spec §4.G).
func (h *Hub) RunHeartbeatSweep(ctx context.Context) {
	ticker := time.NewTicker(HeartbeatWindow)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.ReapStale(time.Now().UTC())
		}
	}
}
