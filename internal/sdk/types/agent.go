package types

import "time"

// AgentCategory classifies an agent for routing/approval purposes (spec §4.B).
type AgentCategory string

const (
	CategoryConversational AgentCategory = "conversational"
	CategoryAutonomous      AgentCategory = "autonomous"
	CategorySupervised      AgentCategory = "supervised"
)

// NotificationMode is how the dispatcher/bridge should try to wake an agent.
type NotificationMode string

const (
	NotifyPolling   NotificationMode = "polling"
	NotifyWebhook   NotificationMode = "webhook"
	NotifyWebsocket NotificationMode = "websocket"
)

// OnlineWindow is how recently an agent must have been seen to count as
// "online" for bridge/dispatch heuristics (spec §4.B).
const OnlineWindow = 5 * time.Minute

// Agent is a registry record identified by "platform/name".
type Agent struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Platform string `json:"platform"`

	Capabilities []string      `json:"capabilities,omitempty"`
	Tags         []string      `json:"tags,omitempty"`
	Category     AgentCategory `json:"category"`

	RequiresApproval   bool             `json:"requiresApproval"`
	AutoApproveOnCheck bool             `json:"autoApproveOnCheck"`
	NotificationMode   NotificationMode `json:"notificationMode"`

	WebhookURL    string `json:"webhookUrl,omitempty"`
	WebhookSecret string `json:"-"`
	PlatformURL   string `json:"platformUrl,omitempty"`
	NotifyPrompt  string `json:"notifyPrompt,omitempty"`

	Public  bool   `json:"public"`
	OwnerID string `json:"ownerId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	LastSeen  time.Time `json:"lastSeen"`
}

// IsOnline reports whether the agent has been seen within OnlineWindow of now.
func (a Agent) IsOnline(now time.Time) bool {
	if a.LastSeen.IsZero() {
		return false
	}
	return now.Sub(a.LastSeen) <= OnlineWindow
}

// Identifier returns the canonical "platform/name" agent id.
func (a Agent) Identifier() string {
	if a.ID != "" {
		return a.ID
	}
	return a.Platform + "/" + a.Name
}
