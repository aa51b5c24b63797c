package types

import "time"

// WebhookEventType is the event name delivered to an inbox's subscribers
// (spec §4.F).
type WebhookEventType string

const (
	EventMessageReceived WebhookEventType = "message.received"
	EventMessageApproved WebhookEventType = "message.approved"
)

// Subscription is one inbox's registered webhook endpoint (spec §4.F).
type Subscription struct {
	ID        string    `json:"id"`
	Inbox     string    `json:"inbox"`
	URL       string    `json:"url"`
	Secret    string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`

	FailureCount int        `json:"failureCount"`
	LastFailure  *time.Time `json:"lastFailure,omitempty"`
}

// WebhookEvent is the payload POSTed to a subscriber (spec §4.F).
type WebhookEvent struct {
	Type      WebhookEventType `json:"event"`
	Inbox     string           `json:"inbox"`
	Message   Message          `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}

// AutoWakePayload is the concise ping fired at a registered agent webhook
// independently of explicit subscriptions (spec §4.F "Auto-Wake").
type AutoWakePayload struct {
	Event     string    `json:"event"`
	Inbox     string    `json:"inbox"`
	From      string    `json:"from"`
	MessageID string    `json:"messageId"`
	Task      string    `json:"task"`
	Timestamp time.Time `json:"timestamp"`
}
