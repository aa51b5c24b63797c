// Package bridge implements Component G: the real-time bidirectional
// session layer at /bridge/connect, plus its mailbox fallback and the
// GET-only /bridge/relay path that shares the same delivery contract.
package bridge

import "encoding/json"

// FrameType is the tagged-variant discriminator for every bridge frame
// (spec §4.G "Message types handled").
type FrameType string

const (
	FrameWelcome      FrameType = "welcome"
	FrameAuth         FrameType = "auth"
	FrameAuthSuccess  FrameType = "auth_success"
	FramePing         FrameType = "ping"
	FramePong         FrameType = "pong"
	FrameMessage      FrameType = "message"
	FrameMessageSent  FrameType = "message_sent"
	FrameCommand      FrameType = "command"
	FrameCommandSent  FrameType = "command_sent"
	FrameCommandFail  FrameType = "command_failed"
	FrameResponse     FrameType = "response"
	FrameResponseFail FrameType = "response_failed"
	FrameBroadcast    FrameType = "broadcast"
	FrameSubscribe    FrameType = "subscribe"
	FrameSubscribed   FrameType = "subscribed"
	FrameListAgents   FrameType = "list_agents"
	FramePresence     FrameType = "presence"
	FrameAudio        FrameType = "audio"
	FrameError        FrameType = "error"
)

// envelope is the wire shape of every frame: a type tag plus a raw payload
// decoded only once the type is known.
type envelope struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type welcomePayload struct {
	ProtocolVersion string `json:"protocol_version"`
}

type authFrame struct {
	AgentID      string   `json:"agent_id"`
	Capabilities []string `json:"capabilities,omitempty"`
	Token        string   `json:"token"`
}

type authSuccessPayload struct {
	AgentID      string   `json:"agent_id"`
	OnlineAgents []string `json:"online_agents"`
}

type messageFrame struct {
	To       string         `json:"to"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type messageSentPayload struct {
	Delivered bool `json:"delivered"`
}

type commandFrame struct {
	To             string         `json:"to"`
	Action         string         `json:"action"`
	Payload        map[string]any `json:"payload,omitempty"`
	AwaitResponse  bool           `json:"await_response,omitempty"`
	CommandID      string         `json:"command_id,omitempty"`
}

type commandSentPayload struct {
	CommandID string `json:"command_id"`
}

type responseFrame struct {
	CommandID string         `json:"command_id"`
	To        string         `json:"to"`
	Result    map[string]any `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
}

type broadcastFrame struct {
	Channel string `json:"channel"`
	Content string `json:"content"`
}

type subscribeFrame struct {
	Channels []string `json:"channels"`
}

type subscribedPayload struct {
	Channels []string `json:"channels"`
}

type listAgentsFrame struct {
	Filter *agentFilter `json:"filter,omitempty"`
}

type agentFilter struct {
	Online     *bool  `json:"online,omitempty"`
	Platform   string `json:"platform,omitempty"`
	Capability string `json:"capability,omitempty"`
}

type agentSummary struct {
	AgentID      string   `json:"agent_id"`
	Online       bool     `json:"online"`
	Capabilities []string `json:"capabilities,omitempty"`
}

type listAgentsPayload struct {
	Agents []agentSummary `json:"agents"`
}

type presencePayload struct {
	AgentID string `json:"agent_id"`
	Status  string `json:"status"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// audioPayload carries a notification sound cue, base64-encoded by the
// standard []byte JSON marshaler.
type audioPayload struct {
	Audio []byte `json:"audio"`
}
