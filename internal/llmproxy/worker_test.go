package llmproxy

import (
	"context"
	"fmt"
	"testing"

	"github.com/JPaulGrayson/QuackQuack/internal/mailbox"
	"github.com/JPaulGrayson/QuackQuack/internal/registry"
	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

type fakeProvider struct {
	reply string
	calls int
}

func (f *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	f.calls++
	if f.reply == "" {
		return CompletionResponse{}, fmt.Errorf("no reply configured")
	}
	return CompletionResponse{Content: f.reply, Model: req.Model, StopReason: "end_turn"}, nil
}

func newTestWorker(t *testing.T, provider Provider) (*Worker, registry.Store, mailbox.Store) {
	t.Helper()
	reg := registry.NewMemoryStore()
	mbox, err := mailbox.NewMemoryStore(nil, reg, noopArchive{}, "")
	if err != nil {
		t.Fatalf("NewMemoryStore: %v", err)
	}
	worker := NewWorker(nil, reg, mbox, provider, "claude-3-5-sonnet-20241022")
	return worker, reg, mbox
}

type noopArchive struct{}

func (noopArchive) ArchiveThread(ctx context.Context, threadID string, messages []types.Message) error {
	return nil
}

func TestPollOnceDraftsReplyForPollingConversationalAgent(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{reply: "Sounds good, I will take care of it."}
	worker, reg, mbox := newTestWorker(t, provider)

	if _, err := reg.Create(ctx, types.Agent{Platform: "claude", Name: "web", Category: types.CategoryConversational, NotificationMode: types.NotifyPolling}); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	requireApproval := true
	sent, err := mbox.Send(ctx, mailbox.SendRequest{To: "claude/web", From: "cursor/dev", Task: "please review PR 42", RequireApproval: &requireApproval})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := mbox.Approve(ctx, sent.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := worker.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("expected exactly one completion call, got %d", provider.calls)
	}

	replies, err := mbox.CheckInbox(ctx, "cursor/dev", true, false)
	if err != nil {
		t.Fatalf("check inbox: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("expected one reply delivered back to the sender, got %d", len(replies))
	}
	if replies[0].Task != provider.reply {
		t.Fatalf("expected reply task %q, got %q", provider.reply, replies[0].Task)
	}
	if replies[0].ReplyTo != sent.ID {
		t.Fatalf("expected reply threaded onto original message")
	}
}

func TestPollOnceSkipsNonPollingAndNonConversationalAgents(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{reply: "draft"}
	worker, reg, mbox := newTestWorker(t, provider)

	if _, err := reg.Create(ctx, types.Agent{Platform: "webhook", Name: "bot", Category: types.CategoryConversational, NotificationMode: types.NotifyWebhook}); err != nil {
		t.Fatalf("create webhook agent: %v", err)
	}
	if _, err := reg.Create(ctx, types.Agent{Platform: "auto", Name: "runner", Category: types.CategoryAutonomous, NotificationMode: types.NotifyPolling}); err != nil {
		t.Fatalf("create autonomous agent: %v", err)
	}
	if _, err := mbox.Send(ctx, mailbox.SendRequest{To: "webhook/bot", From: "cursor/dev", Task: "x"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := mbox.Send(ctx, mailbox.SendRequest{To: "auto/runner", From: "cursor/dev", Task: "y"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := worker.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce: %v", err)
	}
	if provider.calls != 0 {
		t.Fatalf("expected no completion calls for ineligible agents, got %d", provider.calls)
	}
}

func TestPollOnceContinuesAfterProviderError(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	worker, reg, mbox := newTestWorker(t, provider)

	if _, err := reg.Create(ctx, types.Agent{Platform: "claude", Name: "web", Category: types.CategoryConversational, NotificationMode: types.NotifyPolling}); err != nil {
		t.Fatalf("create agent: %v", err)
	}
	if _, err := mbox.Send(ctx, mailbox.SendRequest{To: "claude/web", From: "cursor/dev", Task: "x"}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if err := worker.PollOnce(ctx); err != nil {
		t.Fatalf("PollOnce should not surface a per-message provider error: %v", err)
	}
}
