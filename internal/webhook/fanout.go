package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/registry"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
	"github.com/JPaulGrayson/QuackQuack/internal/signing"
)

const (
	httpTimeout       = 10 * time.Second
	maxErrorBodyBytes = 1 << 16
	taskPreviewLength = 200
)

// AgentLookup is the subset of registry.Store the fan-out needs to find an
// agent's registered webhook URL for Auto-Wake.
type AgentLookup interface {
	Get(ctx context.Context, id string) (types.Agent, error)
}

// Fanout delivers subscription events and Auto-Wake pings, grounded on the
// teacher's WebhookSubscriber.Handle request/response shape.
type Fanout struct {
	logger *log.Logger
	client *http.Client

	subs   *SubscriptionStore
	agents AgentLookup
}

func New(logger *log.Logger, subs *SubscriptionStore, agents AgentLookup) *Fanout {
	if logger == nil {
		logger = log.New(log.Writer(), "webhook ", log.LstdFlags)
	}
	return &Fanout{
		logger: logger,
		client: &http.Client{Timeout: httpTimeout},
		subs:   subs,
		agents: agents,
	}
}

// NotifySubscribers fans an event out to every subscriber of the
// destination inbox (spec §4.F "on send and on approval"). Each delivery
// runs in its own goroutine so a slow subscriber never blocks the caller.
func (f *Fanout) NotifySubscribers(ctx context.Context, eventType types.WebhookEventType, msg types.Message) {
	subs, err := f.subs.ForInbox(ctx, msg.To)
	if err != nil {
		f.logger.Printf("webhook: list subscribers for %s failed: %v", msg.To, err)
		return
	}
	event := types.WebhookEvent{Type: eventType, Inbox: msg.To, Message: msg, Timestamp: time.Now().UTC()}
	for _, sub := range subs {
		sub := sub
		go f.deliver(ctx, sub, event)
	}
}

func (f *Fanout) deliver(ctx context.Context, sub types.Subscription, event types.WebhookEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		f.logger.Printf("webhook: marshal event for subscriber %s failed: %v", sub.ID, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(body))
	if err != nil {
		f.logger.Printf("webhook: build request for subscriber %s failed: %v", sub.ID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if sub.Secret != "" {
		req.Header.Set(signing.WebhookHeader, signing.SignWebhookBody(sub.Secret, body))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Printf("webhook: post to subscriber %s failed: %v", sub.ID, err)
		f.subs.RecordFailure(sub.ID, time.Now().UTC())
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return
	}
	limited := io.LimitReader(resp.Body, maxErrorBodyBytes+1)
	errorBody, _ := io.ReadAll(limited)
	f.logger.Printf("webhook: subscriber %s returned status=%d body=%q", sub.ID, resp.StatusCode, errorBody)
	f.subs.RecordFailure(sub.ID, time.Now().UTC())
}

// AutoWake fires a concise ping at the destination agent's registered
// webhook URL, independent of explicit subscriptions (spec §4.F).
func (f *Fanout) AutoWake(ctx context.Context, msg types.Message, webhookSecret string) {
	rootID := registry.RootPlatform(msg.To)
	agent, err := f.agents.Get(ctx, rootID)
	if err != nil {
		return
	}
	baseURL := agent.WebhookURL
	if baseURL == "" {
		return
	}

	task := msg.Task
	if len(task) > taskPreviewLength {
		task = task[:taskPreviewLength]
	}
	payload := types.AutoWakePayload{
		Event:     "new_message",
		Inbox:     msg.To,
		From:      msg.From,
		MessageID: msg.ID,
		Task:      task,
		Timestamp: time.Now().UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		f.logger.Printf("webhook: encode auto-wake payload for %s failed: %v", msg.ID, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL, bytes.NewReader(body))
	if err != nil {
		f.logger.Printf("webhook: build auto-wake request for %s failed: %v", msg.ID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	secret := agent.WebhookSecret
	if secret == "" {
		secret = webhookSecret
	}
	if secret != "" {
		req.Header.Set(signing.WebhookHeader, signing.SignWebhookBody(secret, body))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.logger.Printf("webhook: auto-wake post to %s for message %s failed: %v", baseURL, msg.ID, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusMultipleChoices {
		f.logger.Printf("webhook: auto-wake to %s for message %s returned status %d", baseURL, msg.ID, resp.StatusCode)
	}
}
