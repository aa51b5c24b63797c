package types

import "time"

// AuditAction is an enumerated verb.noun action name recorded in the audit
// log, e.g. "message.send", "message.approve", "agent.register".
type AuditAction string

const (
	ActionMessageSend      AuditAction = "message.send"
	ActionMessageRead      AuditAction = "message.read"
	ActionMessageApprove   AuditAction = "message.approve"
	ActionMessageComplete  AuditAction = "message.complete"
	ActionMessageFail      AuditAction = "message.fail"
	ActionMessageStatus    AuditAction = "message.status"
	ActionMessageDelete    AuditAction = "message.delete"
	ActionMessageExpire    AuditAction = "message.expire"
	ActionThreadArchive    AuditAction = "thread.archive"
	ActionAgentRegister    AuditAction = "agent.register"
	ActionAgentUpdate      AuditAction = "agent.update"
	ActionAgentDelete      AuditAction = "agent.delete"
	ActionAgentPing        AuditAction = "agent.ping"
	ActionKeyCreate        AuditAction = "key.create"
	ActionKeyRevoke        AuditAction = "key.revoke"
	ActionWebhookSubscribe AuditAction = "webhook.subscribe"
	ActionWebhookRemove    AuditAction = "webhook.remove"
	ActionBridgeRelay      AuditAction = "bridge-relay"
)

// AuditEntry is one append-only audit log row.
type AuditEntry struct {
	ID         int64          `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Action     AuditAction    `json:"action"`
	Actor      string         `json:"actor"`
	TargetType string         `json:"targetType"`
	TargetID   string         `json:"targetId"`
	Details    map[string]any `json:"details,omitempty"`
	Source     string         `json:"source,omitempty"`
}

// AuditFilter is the query shape for listing audit entries.
type AuditFilter struct {
	Action     AuditAction
	Actor      string
	TargetType string
	TargetID   string
	Since      time.Time
	Until      time.Time
	Limit      int
	Offset     int
}

// AuditStats is the aggregate view over the audit log.
type AuditStats struct {
	Total      int64            `json:"total"`
	Last24h    int64            `json:"last24h"`
	TopActions map[string]int64 `json:"topActions"`
	TopActors  map[string]int64 `json:"topActors"`
}

// ArchivedThread is the frozen snapshot of a thread written before a
// completed thread's messages are swept away (spec §4.D).
type ArchivedThread struct {
	ID           string    `json:"id"`
	ThreadID     string    `json:"threadId"`
	Participants []string  `json:"participants"`
	FirstMessage time.Time `json:"firstMessageAt"`
	LastMessage  time.Time `json:"lastMessageAt"`
	Messages     []Message `json:"messages"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	ArchivedAt   time.Time `json:"archivedAt"`
}

// APIKeyPermission enumerates what a key can do.
type APIKeyPermission string

const (
	PermRead  APIKeyPermission = "read"
	PermWrite APIKeyPermission = "write"
	PermAdmin APIKeyPermission = "admin"
)

// APIKey is the server-side record behind a "quack_<24 base64url chars>" key.
type APIKey struct {
	ID          string              `json:"id"`
	HashedKey   string              `json:"-"`
	OwnerID     string              `json:"ownerId"`
	Permissions []APIKeyPermission  `json:"permissions"`
	Revoked     bool                `json:"revoked"`
	CreatedAt   time.Time           `json:"createdAt"`
	LastUsedAt  *time.Time          `json:"lastUsedAt,omitempty"`
}

// APIKeyPrefix is the fixed prefix of every issued API key.
const APIKeyPrefix = "quack_"
