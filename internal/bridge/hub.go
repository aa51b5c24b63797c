package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JPaulGrayson/QuackQuack/internal/mailbox"
	"github.com/JPaulGrayson/QuackQuack/internal/notifysound"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
	"github.com/JPaulGrayson/QuackQuack/internal/signing"
)

// ProtocolVersion is advertised in the welcome frame.
const ProtocolVersion = "1.0"

// HeartbeatWindow is how long a connection may go without a ping/pong before
// the sweep reaps it (spec §4.G "30-second heartbeat sweep").
const HeartbeatWindow = 30 * time.Second

// AgentLookup is the subset of registry.Store the bridge needs to decide
// whether a destination's root platform is conversational (for mailbox
// fallback coalescing).
type AgentLookup interface {
	Get(ctx context.Context, id string) (types.Agent, error)
}

// AuditRecorder records a best-effort audit entry; implemented by
// audit.Logger.Record, adapted here to avoid depending on audit's full Store
// surface.
type AuditRecorder interface {
	Record(action types.AuditAction, actor, targetType, targetID string, details map[string]any)
}

// Connection is one authenticated (or authenticating) bridge socket.
type Connection struct {
	conn *websocket.Conn

	mu           sync.Mutex
	agentID      string
	capabilities []string
	channels     map[string]struct{}
	lastSeen     time.Time
	writeMu      sync.Mutex
}

func (c *Connection) writeEnvelope(frameType FrameType, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := envelope{Type: frameType, Payload: body}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now().UTC()
	c.mu.Unlock()
}

func (c *Connection) isSubscribed(channel string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.channels[channel]
	return ok
}

// Hub owns the connection table and serializes every mutation to it through
// a single mutex, matching the "shared state mutated only through the
// bridge's serialized handler" requirement in spec §4.G.
type Hub struct {
	logger *log.Logger

	mailbox mailbox.Store
	agents  AgentLookup
	audit   AuditRecorder
	sound   notifysound.Synthesizer

	authSecret string
	devBypass  bool

	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewHub constructs a Hub. authSecret is the shared HMAC secret used to
// validate auth tokens (spec §4.G "Token validation"); devBypass, when set,
// accepts any token.
func NewHub(logger *log.Logger, mailboxStore mailbox.Store, agents AgentLookup, audit AuditRecorder, authSecret string, devBypass bool) *Hub {
	if logger == nil {
		logger = log.New(log.Writer(), "bridge ", log.LstdFlags)
	}
	return &Hub{
		logger:      logger,
		mailbox:     mailboxStore,
		agents:      agents,
		audit:       audit,
		authSecret:  authSecret,
		devBypass:   devBypass,
		connections: make(map[string]*Connection),
	}
}

// WithSound attaches a notification-sound synthesizer so live deliveries
// carry a ping cue; omitted (left nil) when no synthesizer is configured.
func (h *Hub) WithSound(sound notifysound.Synthesizer) *Hub {
	h.sound = sound
	return h
}

// playPing synthesizes a short ping cue for a live delivery and sends it to
// the recipient connection as an audio frame, best-effort.
func (h *Hub) playPing(ctx context.Context, target *Connection, from string) {
	if h.sound == nil {
		return
	}
	go func() {
		audio, err := h.sound.Synthesize(ctx, "message from "+from)
		if err != nil {
			h.logger.Printf("bridge: notification sound synthesis failed: %v", err)
			return
		}
		if err := target.writeEnvelope(FrameAudio, audioPayload{Audio: audio}); err != nil {
			h.logger.Printf("bridge: audio frame write failed: %v", err)
		}
	}()
}

// Serve drives one accepted websocket connection until it closes.
func (h *Hub) Serve(ctx context.Context, wsConn *websocket.Conn) {
	conn := &Connection{conn: wsConn, channels: make(map[string]struct{}), lastSeen: time.Now().UTC()}

	if err := conn.writeEnvelope(FrameWelcome, welcomePayload{ProtocolVersion: ProtocolVersion}); err != nil {
		h.logger.Printf("bridge: welcome write failed: %v", err)
		wsConn.Close()
		return
	}

	authenticated := false
	defer func() {
		if authenticated {
			h.removeConnection(conn)
		}
		wsConn.Close()
	}()

	for {
		var env envelope
		if err := wsConn.ReadJSON(&env); err != nil {
			return
		}
		conn.touch()

		if !authenticated {
			if env.Type != FrameAuth {
				h.sendError(conn, "first frame must be auth")
				continue
			}
			var auth authFrame
			if err := json.Unmarshal(env.Payload, &auth); err != nil {
				h.sendError(conn, "invalid auth payload")
				continue
			}
			if err := h.authenticate(ctx, conn, auth); err != nil {
				h.sendError(conn, err.Error())
				continue
			}
			authenticated = true
			continue
		}

		h.handleFrame(ctx, conn, env)
	}
}

func (h *Hub) sendError(conn *Connection, message string) {
	if err := conn.writeEnvelope(FrameError, errorPayload{Message: message}); err != nil {
		h.logger.Printf("bridge: error frame write failed: %v", err)
	}
}

// authenticate validates the agent id shape and token, replaces any
// existing connection for the same agent, registers this one, and
// broadcasts its presence to the other connected agents (spec §4.G
// "Connection lifecycle").
func (h *Hub) authenticate(ctx context.Context, conn *Connection, auth authFrame) error {
	if !isValidAgentID(auth.AgentID) {
		return fmt.Errorf("agent_id must be of the form platform/name")
	}
	if err := h.validateToken(auth.AgentID, auth.Token); err != nil {
		return err
	}

	conn.mu.Lock()
	conn.agentID = auth.AgentID
	conn.capabilities = auth.Capabilities
	conn.mu.Unlock()

	h.mu.Lock()
	if existing, ok := h.connections[auth.AgentID]; ok {
		h.mu.Unlock()
		h.sendError(existing, "replaced by a new connection")
		existing.conn.Close()
		h.mu.Lock()
	}
	h.connections[auth.AgentID] = conn
	online := h.onlineAgentIDsLocked()
	h.mu.Unlock()

	h.broadcastPresence(auth.AgentID, "online")

	return conn.writeEnvelope(FrameAuthSuccess, authSuccessPayload{AgentID: auth.AgentID, OnlineAgents: online})
}

// validateToken implements spec §4.G "Token validation".
func (h *Hub) validateToken(agentID, token string) error {
	if h.devBypass {
		return nil
	}
	if h.authSecret == "" {
		return fmt.Errorf("bridge auth is not configured")
	}
	return signing.VerifyBridgeAuthToken(h.authSecret, agentID, token)
}

func isValidAgentID(id string) bool {
	parts := strings.SplitN(id, "/", 2)
	if len(parts) != 2 {
		return false
	}
	return parts[0] != "" && parts[1] != ""
}

func (h *Hub) onlineAgentIDsLocked() []string {
	ids := make([]string, 0, len(h.connections))
	for id := range h.connections {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) removeConnection(conn *Connection) {
	conn.mu.Lock()
	agentID := conn.agentID
	conn.mu.Unlock()
	if agentID == "" {
		return
	}

	h.mu.Lock()
	if h.connections[agentID] == conn {
		delete(h.connections, agentID)
	}
	h.mu.Unlock()

	h.broadcastPresence(agentID, "offline")
}

func (h *Hub) broadcastPresence(agentID, status string) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.connections))
	for id, c := range h.connections {
		if id == agentID {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.writeEnvelope(FramePresence, presencePayload{AgentID: agentID, Status: status}); err != nil {
			h.logger.Printf("bridge: presence broadcast to a connection failed: %v", err)
		}
	}
}

func (h *Hub) lookupConnection(agentID string) (*Connection, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conn, ok := h.connections[agentID]
	return conn, ok
}

// ReapStale closes connections that have not been seen within
// HeartbeatWindow (spec §4.G "30-second heartbeat sweep").
func (h *Hub) ReapStale(now time.Time) {
	h.mu.RLock()
	var stale []*Connection
	for _, c := range h.connections {
		c.mu.Lock()
		last := c.lastSeen
		c.mu.Unlock()
		if now.Sub(last) > HeartbeatWindow {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		c.conn.Close()
	}
}
