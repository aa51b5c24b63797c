package bridge

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/JPaulGrayson/QuackQuack/internal/ids"
	"github.com/JPaulGrayson/QuackQuack/internal/mailbox"
	"github.com/JPaulGrayson/QuackQuack/internal/registry"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

func (h *Hub) handleFrame(ctx context.Context, conn *Connection, env envelope) {
	switch env.Type {
	case FramePing:
		if err := conn.writeEnvelope(FramePong, struct{}{}); err != nil {
			h.logger.Printf("bridge: pong write failed: %v", err)
		}
	case FrameMessage:
		h.handleMessage(ctx, conn, env.Payload)
	case FrameCommand:
		h.handleCommand(conn, env.Payload)
	case FrameResponse:
		h.handleResponse(conn, env.Payload)
	case FrameBroadcast:
		h.handleBroadcast(conn, env.Payload)
	case FrameSubscribe:
		h.handleSubscribe(conn, env.Payload)
	case FrameListAgents:
		h.handleListAgents(conn, env.Payload)
	default:
		h.sendError(conn, "unknown frame type")
	}
}

func (h *Hub) handleMessage(ctx context.Context, conn *Connection, raw json.RawMessage) {
	var frame messageFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError(conn, "invalid message payload")
		return
	}

	conn.mu.Lock()
	from := conn.agentID
	conn.mu.Unlock()

	if target, ok := h.lookupConnection(frame.To); ok {
		delivered := target.writeEnvelope(FrameMessage, messageFrame{To: frame.To, Content: frame.Content, Metadata: frame.Metadata}) == nil
		if delivered {
			h.playPing(ctx, target, from)
		}
		if err := conn.writeEnvelope(FrameMessageSent, messageSentPayload{Delivered: delivered}); err != nil {
			h.logger.Printf("bridge: message_sent write failed: %v", err)
		}
		return
	}

	if err := h.deliverViaMailbox(ctx, from, frame.To, frame.Content); err != nil {
		h.logger.Printf("bridge: mailbox fallback for %s -> %s failed: %v", from, frame.To, err)
	}
	if err := conn.writeEnvelope(FrameMessageSent, messageSentPayload{Delivered: false}); err != nil {
		h.logger.Printf("bridge: message_sent write failed: %v", err)
	}
}

// deliverViaMailbox implements spec §4.G "Mailbox fallback (for offline
// recipients)": coalesce a conversational destination's sub-path to its
// root, send with bridge tags, immediately approve, and audit the approval
// with source "quack-bridge".
func (h *Hub) deliverViaMailbox(ctx context.Context, from, to, content string) error {
	destination := h.coalesceDestination(ctx, to)

	msg, err := h.mailbox.Send(ctx, mailbox.SendRequest{
		To:                     destination,
		From:                   from,
		Task:                   content,
		Tags:                   []string{"bridge", "websocket", "auto-approved"},
		SourceAddress:          "quack-bridge",
		ProjectMetadataImplied: true,
	})
	if err != nil {
		return err
	}

	approved := msg
	if msg.Status == types.StatusPending {
		approved, err = h.mailbox.Approve(ctx, msg.ID)
		if err != nil {
			return err
		}
	}

	if h.audit != nil {
		h.audit.Record(types.ActionMessageApprove, "quack-bridge", "message", approved.ID, map[string]any{"source": "quack-bridge"})
	}
	return nil
}

// coalesceDestination implements the legacy compatibility shim: a
// conversational root destination with a sub-path collapses to its root
// (e.g. "claude/web" -> "claude"); every other destination is preserved in
// full, per the decided Open Question in spec §9.
func (h *Hub) coalesceDestination(ctx context.Context, to string) string {
	root := registry.RootPlatform(to)
	if root == strings.ToLower(strings.TrimSpace(to)) {
		return to
	}
	if h.agents == nil {
		return to
	}
	agent, err := h.agents.Get(ctx, root)
	if err != nil || agent.Category != types.CategoryConversational {
		return to
	}
	return root
}

func (h *Hub) handleCommand(conn *Connection, raw json.RawMessage) {
	var frame commandFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError(conn, "invalid command payload")
		return
	}

	target, ok := h.lookupConnection(frame.To)
	if !ok {
		if err := conn.writeEnvelope(FrameCommandFail, errorPayload{Message: "recipient offline"}); err != nil {
			h.logger.Printf("bridge: command_failed write failed: %v", err)
		}
		return
	}

	commandID := frame.CommandID
	if commandID == "" {
		commandID = ids.New()
	}
	forwarded := commandFrame{To: frame.To, Action: frame.Action, Payload: frame.Payload, AwaitResponse: frame.AwaitResponse, CommandID: commandID}
	if err := target.writeEnvelope(FrameCommand, forwarded); err != nil {
		h.logger.Printf("bridge: command forward failed: %v", err)
		if err := conn.writeEnvelope(FrameCommandFail, errorPayload{Message: "delivery failed"}); err != nil {
			h.logger.Printf("bridge: command_failed write failed: %v", err)
		}
		return
	}
	if err := conn.writeEnvelope(FrameCommandSent, commandSentPayload{CommandID: commandID}); err != nil {
		h.logger.Printf("bridge: command_sent write failed: %v", err)
	}
}

func (h *Hub) handleResponse(conn *Connection, raw json.RawMessage) {
	var frame responseFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError(conn, "invalid response payload")
		return
	}
	target, ok := h.lookupConnection(frame.To)
	if !ok {
		if err := conn.writeEnvelope(FrameResponseFail, errorPayload{Message: "recipient offline"}); err != nil {
			h.logger.Printf("bridge: response_failed write failed: %v", err)
		}
		return
	}
	if err := target.writeEnvelope(FrameResponse, frame); err != nil {
		h.logger.Printf("bridge: response forward failed: %v", err)
		if err := conn.writeEnvelope(FrameResponseFail, errorPayload{Message: "delivery failed"}); err != nil {
			h.logger.Printf("bridge: response_failed write failed: %v", err)
		}
	}
}

func (h *Hub) handleBroadcast(conn *Connection, raw json.RawMessage) {
	var frame broadcastFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError(conn, "invalid broadcast payload")
		return
	}

	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.connections))
	for _, c := range h.connections {
		if c.isSubscribed(frame.Channel) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.writeEnvelope(FrameBroadcast, frame); err != nil {
			h.logger.Printf("bridge: broadcast delivery failed: %v", err)
		}
	}
}

func (h *Hub) handleSubscribe(conn *Connection, raw json.RawMessage) {
	var frame subscribeFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError(conn, "invalid subscribe payload")
		return
	}
	conn.mu.Lock()
	for _, channel := range frame.Channels {
		conn.channels[channel] = struct{}{}
	}
	conn.mu.Unlock()
	if err := conn.writeEnvelope(FrameSubscribed, subscribedPayload{Channels: frame.Channels}); err != nil {
		h.logger.Printf("bridge: subscribed write failed: %v", err)
	}
}

func (h *Hub) handleListAgents(conn *Connection, raw json.RawMessage) {
	var frame listAgentsFrame
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.sendError(conn, "invalid list_agents payload")
			return
		}
	}

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
		if frame.Filter != nil {
			if frame.Filter.Online != nil && s.Online != *frame.Filter.Online {
				continue
			}
			if frame.Filter.Platform != "" && registry.RootPlatform(s.AgentID) != strings.ToLower(frame.Filter.Platform) {
				continue
			}
			if frame.Filter.Capability != "" && !containsString(s.Capabilities, frame.Filter.Capability) {
				continue
			}
		}
		filtered = append(filtered, s)
	}

	if err := conn.writeEnvelope(FrameListAgents, listAgentsPayload{Agents: filtered}); err != nil {
		h.logger.Printf("bridge: list_agents write failed: %v", err)
	}
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
