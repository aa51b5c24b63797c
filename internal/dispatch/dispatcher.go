// Package dispatch implements Component E: a background poll loop that
// turns approved messages addressed to webhook agents into outbound HTTP
// deliveries, grounded on the teacher's Dispatcher/dispatchOne split.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/notifysound"
	"github.com/JPaulGrayson/QuackQuack/internal/registry"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
	"github.com/JPaulGrayson/QuackQuack/internal/signing"
)

// MailboxStore is the subset of mailbox.Store the dispatcher needs. Declared
// locally to avoid a direct dependency on the mailbox package's full surface.
type MailboxStore interface {
	ListByStatus(ctx context.Context, status types.Status) ([]types.Message, error)
	UpdateStatus(ctx context.Context, id string, target types.Status) (types.Message, error)
	GetMessage(ctx context.Context, id string) (types.Message, error)
}

// AgentLookup is the subset of registry.Store the dispatcher needs to decide
// whether a destination is a webhook agent with a registered base URL.
type AgentLookup interface {
	Get(ctx context.Context, id string) (types.Agent, error)
}

// taskPayload is the wire shape POSTed to a webhook agent's /api/task
// (spec §4.E step 3).
type taskPayload struct {
	MessageID string           `json:"messageId"`
	Task      string           `json:"task"`
	Context   string           `json:"context,omitempty"`
	From      string           `json:"from"`
	To        string           `json:"to"`
	Files     []types.FileRef  `json:"files,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// Dispatcher polls the mailbox store for approved, webhook-bound messages
// and pushes them out, de-duplicating overlapping polls via an in-flight set.
type Dispatcher struct {
	logger *log.Logger
	client *http.Client

	mailbox MailboxStore
	agents  AgentLookup
	sound   notifysound.Synthesizer

	webhookSecret string
	pollInterval  time.Duration

	processing sync.Map // message id -> struct{}
}

// WithSound attaches a notification-sound synthesizer so a dispatch
// failure plays an audio cue; omitted (left nil) when no synthesizer is
// configured.
func (d *Dispatcher) WithSound(sound notifysound.Synthesizer) *Dispatcher {
	d.sound = sound
	return d
}

// playFailureCue synthesizes a short failure cue, best-effort, discarding
// the audio bytes since the dispatcher has no connected client to push
// them to; it exists to exercise the same collaborator boundary the bridge
// uses for a live delivery ping.
func (d *Dispatcher) playFailureCue(ctx context.Context, msg types.Message) {
	if d.sound == nil {
		return
	}
	go func() {
		if _, err := d.sound.Synthesize(ctx, "dispatch failed for "+msg.ID); err != nil {
			d.logger.Printf("dispatch: notification sound synthesis failed: %v", err)
		}
	}()
}

// New constructs a Dispatcher. pollInterval defaults to 5s when zero
// (spec §4.E default).
func New(logger *log.Logger, mailbox MailboxStore, agents AgentLookup, webhookSecret string, pollInterval time.Duration) *Dispatcher {
	if logger == nil {
		logger = log.New(log.Writer(), "dispatch ", log.LstdFlags)
	}
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Dispatcher{
		logger:        logger,
		client:        &http.Client{Timeout: 10 * time.Second},
		mailbox:       mailbox,
		agents:        agents,
		webhookSecret: webhookSecret,
		pollInterval:  pollInterval,
	}
}

// Run blocks, polling until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.PollOnce(ctx)
		}
	}
}

// PollOnce scans every approved message once and dispatches the ones bound
// for a webhook agent (spec §4.E).
func (d *Dispatcher) PollOnce(ctx context.Context) {
	approved, err := d.mailbox.ListByStatus(ctx, types.StatusApproved)
	if err != nil {
		d.logger.Printf("dispatch: list approved failed: %v", err)
		return
	}
	for _, msg := range approved {
		msg := msg
		agent, ok := d.webhookTarget(ctx, msg.To)
		if !ok {
			continue
		}
		if _, inFlight := d.processing.LoadOrStore(msg.ID, struct{}{}); inFlight {
			continue
		}
		go func() {
			defer d.processing.Delete(msg.ID)
			d.dispatchOne(ctx, msg, agent)
		}()
	}
}

// DispatchNow performs steps 2-5 once for an explicit id if currently
// approved (spec §4.E "dispatchNow").
func (d *Dispatcher) DispatchNow(ctx context.Context, id string) error {
	msg, err := d.mailbox.GetMessage(ctx, id)
	if err != nil {
		return err
	}
	if msg.Status != types.StatusApproved {
		return fmt.Errorf("dispatch: message %s is not approved", id)
	}
	agent, ok := d.webhookTarget(ctx, msg.To)
	if !ok {
		return fmt.Errorf("dispatch: message %s has no webhook-capable destination", id)
	}
	if _, inFlight := d.processing.LoadOrStore(id, struct{}{}); inFlight {
		return nil
	}
	defer d.processing.Delete(id)
	d.dispatchOne(ctx, msg, agent)
	return nil
}

func (d *Dispatcher) webhookTarget(ctx context.Context, to string) (types.Agent, bool) {
	agent, err := d.agents.Get(ctx, registry.RootPlatform(to))
	if err != nil {
		return types.Agent{}, false
	}
	if agent.NotificationMode != types.NotifyWebhook {
		return types.Agent{}, false
	}
	baseURL := agent.WebhookURL
	if baseURL == "" {
		baseURL = agent.PlatformURL
	}
	if baseURL == "" {
		return types.Agent{}, false
	}
	agent.WebhookURL = baseURL
	return agent, true
}

func (d *Dispatcher) dispatchOne(ctx context.Context, msg types.Message, agent types.Agent) {
	if _, err := d.mailbox.UpdateStatus(ctx, msg.ID, types.StatusInProgress); err != nil {
		d.logger.Printf("dispatch: mark in_progress failed for %s: %v", msg.ID, err)
		return
	}

	payload := taskPayload{
		MessageID: msg.ID,
		Task:      msg.Task,
		Context:   msg.Context,
		From:      msg.From,
		To:        msg.To,
		Files:     msg.Files,
		Timestamp: time.Now().UTC(),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		d.logger.Printf("dispatch: encode payload for %s failed: %v", msg.ID, err)
		return
	}

	url := agent.WebhookURL + "/api/task"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.logger.Printf("dispatch: build request for %s failed: %v", msg.ID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if d.webhookSecret != "" {
		req.Header.Set(signing.WebhookHeader, signing.SignWebhookBody(d.webhookSecret, body))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Printf("dispatch: POST %s for message %s failed: %v", url, msg.ID, err)
		d.playFailureCue(ctx, msg)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		d.logger.Printf("dispatch: POST %s for message %s returned status %d", url, msg.ID, resp.StatusCode)
		d.playFailureCue(ctx, msg)
	}
	// Completion is reported back by the receiver via updateStatus; this
	// dispatcher never reverts or advances status past in_progress itself.
}
