package convo

import (
	"context"
	"errors"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

func isActiveState(status types.ConvoStatus) bool {
	switch status {
	case types.ConvoActive, types.ConvoAwaitingReply, types.ConvoAwaitingHuman:
		return true
	default:
		return false
	}
}

func isTerminalState(status types.ConvoStatus) bool {
	switch status {
	case types.ConvoCompleted, types.ConvoAbandoned:
		return true
	default:
		return false
	}
}

// Registry is the Session Registry's operation surface: record a send and
// apply any control-message consequence (spec §4.I).
type Registry struct {
	store Store
}

func New(store Store) *Registry {
	return &Registry{store: store}
}

// RecordSend creates or updates the conversation session for (from, to,
// threadID), or the existing (to, from, threadID) session when the message
// answers in the opposite direction, bumping counters and TTL, swapping the
// current turn, adding new participants, and applying the control-message
// consequence the message carries, if any.
func (r *Registry) RecordSend(ctx context.Context, from, to, threadID string, isControl bool, controlType types.ControlType) (types.ConvoSession, error) {
	key := types.ConvoKey(from, to, threadID)
	now := time.Now().UTC()

	sess, err := r.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		sess, err = r.store.Get(ctx, types.ConvoKey(to, from, threadID))
	}
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return types.ConvoSession{}, err
		}
		sess = types.ConvoSession{
			Key:          key,
			From:         from,
			To:           to,
			ThreadID:     threadID,
			Participants: []string{from, to},
			Status:       types.ConvoActive,
			CurrentTurn:  to,
			CreatedAt:    now,
		}
	}

	sess.MessageCount++
	sess.LastMessageAt = now
	sess.ExpiresAt = now.Add(types.ConvoTTL)
	sess.Participants = addParticipant(addParticipant(sess.Participants, from), to)

	if sess.CurrentTurn == from {
		sess.TurnCount++
		sess.CurrentTurn = to
	} else if sess.CurrentTurn == "" {
		sess.CurrentTurn = to
	}

	if isControl {
		applyControlConsequence(&sess, controlType, now)
	}

	if err := r.store.Put(ctx, sess); err != nil {
		return types.ConvoSession{}, err
	}
	return sess, nil
}

// applyControlConsequence implements spec §4.I's control-message table:
// CONVERSATION_END completes the session, REPLY_SKIP moves it to
// awaiting_reply, ANNOUNCE_SKIP leaves state unchanged.
func applyControlConsequence(sess *types.ConvoSession, controlType types.ControlType, now time.Time) {
	switch controlType {
	case types.ControlConversationEnd:
		sess.Status = types.ConvoCompleted
		sess.CompletedAt = &now
	case types.ControlReplySkip:
		sess.Status = types.ConvoAwaitingReply
	case types.ControlAnnounceSkip:
		// state unchanged
	}
}

func addParticipant(participants []string, id string) []string {
	for _, p := range participants {
		if p == id {
			return participants
		}
	}
	return append(participants, id)
}

func (r *Registry) Get(ctx context.Context, from, to, threadID string) (types.ConvoSession, error) {
	return r.store.Get(ctx, types.ConvoKey(from, to, threadID))
}

// RunJanitor blocks, running Sweep every 15 minutes until ctx is cancelled
// (spec §4.I "A janitor runs every 15 minutes").
func (r *Registry) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx, time.Now().UTC())
		}
	}
}

// Sweep implements the janitor's two passes: active sessions past their TTL
// become abandoned; completed/abandoned sessions older than the retention
// window are discarded entirely.
func (r *Registry) Sweep(ctx context.Context, now time.Time) {
	expired, err := r.store.ListActiveExpiredBefore(ctx, now)
	if err == nil {
		for _, sess := range expired {
			sess.Status = types.ConvoAbandoned
			sess.CompletedAt = &now
			_ = r.store.Put(ctx, sess)
		}
	}

	stale, err := r.store.ListTerminalOlderThan(ctx, now.Add(-types.ConvoRetention))
	if err == nil {
		for _, sess := range stale {
			_ = r.store.Delete(ctx, sess.Key)
		}
	}
}

func (r *Registry) Close() error {
	return r.store.Close()
}
