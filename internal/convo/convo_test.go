package convo

import (
	"context"
	"testing"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

func TestRecordSendCreatesSession(t *testing.T) {
	r := New(NewMemoryStore())
	ctx := context.Background()

	sess, err := r.RecordSend(ctx, "cursor/dev", "claude/web", "thread-1", false, "")
	if err != nil {
		t.Fatalf("RecordSend: %v", err)
	}
	if sess.MessageCount != 1 {
		t.Fatalf("expected message_count 1, got %d", sess.MessageCount)
	}
	if sess.Status != types.ConvoActive {
		t.Fatalf("expected active status, got %s", sess.Status)
	}
	if sess.CurrentTurn != "claude/web" {
		t.Fatalf("expected current_turn claude/web, got %s", sess.CurrentTurn)
	}
	if len(sess.Participants) != 2 {
		t.Fatalf("expected 2 participants, got %v", sess.Participants)
	}
}

func TestRecordSendKeyNormalization(t *testing.T) {
	r := New(NewMemoryStore())
	ctx := context.Background()

	if _, err := r.RecordSend(ctx, "Cursor/Dev", "Claude/Web", "Thread-1", false, ""); err != nil {
		t.Fatal(err)
	}
	sess, err := r.Get(ctx, "/cursor/dev", "/claude/web", "/Thread-1")
	if err != nil {
		t.Fatalf("expected normalized lookup to find the session: %v", err)
	}
	if sess.MessageCount != 1 {
		t.Fatalf("expected a single session, got message_count %d", sess.MessageCount)
	}
}

func TestRecordSendSwapsTurnOnSenderMatch(t *testing.T) {
	r := New(NewMemoryStore())
	ctx := context.Background()

	if _, err := r.RecordSend(ctx, "cursor/dev", "claude/web", "thread-1", false, ""); err != nil {
		t.Fatal(err)
	}
	sess, err := r.RecordSend(ctx, "claude/web", "cursor/dev", "thread-1", false, "")
	if err != nil {
		t.Fatal(err)
	}
	if sess.TurnCount != 1 {
		t.Fatalf("expected turn_count 1 after the current-turn holder replied, got %d", sess.TurnCount)
	}
	if sess.CurrentTurn != "cursor/dev" {
		t.Fatalf("expected current_turn to swap to cursor/dev, got %s", sess.CurrentTurn)
	}
	if sess.MessageCount != 2 {
		t.Fatalf("expected message_count 2, got %d", sess.MessageCount)
	}
}

func TestConversationEndCompletesSession(t *testing.T) {
	r := New(NewMemoryStore())
	ctx := context.Background()

	sess, err := r.RecordSend(ctx, "cursor/dev", "claude/web", "thread-1", true, types.ControlConversationEnd)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != types.ConvoCompleted {
		t.Fatalf("expected completed status, got %s", sess.Status)
	}
	if sess.CompletedAt == nil {
		t.Fatalf("expected completed_at to be set")
	}
}

func TestReplySkipMovesToAwaitingReply(t *testing.T) {
	r := New(NewMemoryStore())
	ctx := context.Background()

	sess, err := r.RecordSend(ctx, "cursor/dev", "claude/web", "thread-1", true, types.ControlReplySkip)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != types.ConvoAwaitingReply {
		t.Fatalf("expected awaiting_reply status, got %s", sess.Status)
	}
}

func TestAnnounceSkipLeavesStateUnchanged(t *testing.T) {
	r := New(NewMemoryStore())
	ctx := context.Background()

	if _, err := r.RecordSend(ctx, "cursor/dev", "claude/web", "thread-1", true, types.ControlReplySkip); err != nil {
		t.Fatal(err)
	}
	sess, err := r.RecordSend(ctx, "claude/web", "cursor/dev", "thread-1", true, types.ControlAnnounceSkip)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != types.ConvoAwaitingReply {
		t.Fatalf("expected status to remain awaiting_reply after ANNOUNCE_SKIP, got %s", sess.Status)
	}
}

func TestSweepAbandonsExpiredActiveSessions(t *testing.T) {
	store := NewMemoryStore()
	r := New(store)
	ctx := context.Background()

	past := time.Now().UTC().Add(-time.Hour)
	if err := store.Put(ctx, types.ConvoSession{
		Key: "agent:a:to:b:thread:t1", From: "a", To: "b", ThreadID: "t1",
		Status: types.ConvoActive, ExpiresAt: past, CreatedAt: past,
	}); err != nil {
		t.Fatal(err)
	}

	r.Sweep(ctx, time.Now().UTC())

	sess, err := store.Get(ctx, "agent:a:to:b:thread:t1")
	if err != nil {
		t.Fatal(err)
	}
	if sess.Status != types.ConvoAbandoned {
		t.Fatalf("expected abandoned status, got %s", sess.Status)
	}
}

func TestSweepDiscardsOldTerminalSessions(t *testing.T) {
	store := NewMemoryStore()
	r := New(store)
	ctx := context.Background()

	longAgo := time.Now().UTC().Add(-8 * 24 * time.Hour)
	if err := store.Put(ctx, types.ConvoSession{
		Key: "agent:a:to:b:thread:t2", From: "a", To: "b", ThreadID: "t2",
		Status: types.ConvoCompleted, CompletedAt: &longAgo, CreatedAt: longAgo,
	}); err != nil {
		t.Fatal(err)
	}

	r.Sweep(ctx, time.Now().UTC())

	if _, err := store.Get(ctx, "agent:a:to:b:thread:t2"); err != ErrNotFound {
		t.Fatalf("expected the old terminal session to be discarded, got %v", err)
	}
}

func TestSweepKeepsRecentTerminalSessions(t *testing.T) {
	store := NewMemoryStore()
	r := New(store)
	ctx := context.Background()

	recent := time.Now().UTC().Add(-time.Hour)
	if err := store.Put(ctx, types.ConvoSession{
		Key: "agent:a:to:b:thread:t3", From: "a", To: "b", ThreadID: "t3",
		Status: types.ConvoCompleted, CompletedAt: &recent, CreatedAt: recent,
	}); err != nil {
		t.Fatal(err)
	}

	r.Sweep(ctx, time.Now().UTC())

	if _, err := store.Get(ctx, "agent:a:to:b:thread:t3"); err != nil {
		t.Fatalf("expected recent terminal session to survive, got %v", err)
	}
}
