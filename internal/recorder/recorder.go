package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// defaultContextLimit bounds getContextForSession/Agent when the caller
// doesn't specify one.
const defaultContextLimit = 50

// recentLogLines is how many entries the resumption prompt's RECENT LOGS
// block carries.
const recentLogLines = 10

// Recorder is the Flight Recorder's operation surface: session selection
// on log, context synthesis, and resumption prompt generation layered over
// a Store.
type Recorder struct {
	store Store
}

func New(store Store) *Recorder {
	return &Recorder{store: store}
}

// GetOrCreateSession implements "session selection on log" (spec §4.H): if
// sessionID is given, insert-or-noop that session and use it; otherwise
// reuse the agent's most recent active session if its last activity is
// within the 24h window, else start a new one.
func (r *Recorder) GetOrCreateSession(ctx context.Context, agentID, sessionID string) (types.RecorderSession, error) {
	now := time.Now().UTC()

	if sessionID != "" {
		return r.store.UpsertSession(ctx, types.RecorderSession{
			SessionID:    sessionID,
			AgentID:      agentID,
			CreatedAt:    now,
			LastActivity: now,
			Active:       true,
		})
	}

	existing, err := r.store.MostRecentActiveSession(ctx, agentID)
	if err == nil {
		if now.Sub(existing.LastActivity) <= types.SessionActiveWindow {
			return existing, nil
		}
		return r.StartNewSession(ctx, agentID)
	}
	if !errors.Is(err, ErrNotFound) {
		return types.RecorderSession{}, err
	}
	return r.StartNewSession(ctx, agentID)
}

// StartNewSession closes any existing active session for agentID and opens
// a fresh one (spec §4.H "startNewSession").
func (r *Recorder) StartNewSession(ctx context.Context, agentID string) (types.RecorderSession, error) {
	if err := r.store.CloseSessionsForAgent(ctx, agentID); err != nil {
		return types.RecorderSession{}, fmt.Errorf("close existing sessions: %w", err)
	}
	now := time.Now().UTC()
	return r.store.UpsertSession(ctx, types.RecorderSession{
		SessionID:    types.NewID(),
		AgentID:      agentID,
		CreatedAt:    now,
		LastActivity: now,
		Active:       true,
	})
}

func (r *Recorder) CloseSession(ctx context.Context, sessionID string) error {
	return r.store.CloseSession(ctx, sessionID)
}

func (r *Recorder) CloseAgentSessions(ctx context.Context, agentID string) error {
	return r.store.CloseSessionsForAgent(ctx, agentID)
}

// SaveEntry appends a journal entry and bumps the owning session's
// entry_count/last_activity (spec §4.H).
func (r *Recorder) SaveEntry(ctx context.Context, entry types.JournalEntry) (types.JournalEntry, error) {
	if entry.ID == "" {
		entry.ID = types.NewID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if err := r.store.AppendEntry(ctx, entry); err != nil {
		return types.JournalEntry{}, fmt.Errorf("save entry: %w", err)
	}
	if err := r.store.TouchSession(ctx, entry.SessionID, entry.Timestamp); err != nil {
		return types.JournalEntry{}, fmt.Errorf("touch session: %w", err)
	}
	return entry, nil
}

func (r *Recorder) GetSession(ctx context.Context, sessionID string) (types.RecorderSession, error) {
	return r.store.GetSession(ctx, sessionID)
}

// GetContextForSession synthesizes a ContextSummary from the most recent
// limit entries of one session (spec §4.H "Context synthesis").
func (r *Recorder) GetContextForSession(ctx context.Context, sessionID string, limit int) (types.ContextSummary, error) {
	if limit <= 0 {
		limit = defaultContextLimit
	}
	entries, err := r.store.EntriesForSession(ctx, sessionID, limit)
	if err != nil {
		return types.ContextSummary{}, err
	}
	return synthesizeContext(entries), nil
}

// GetContextForAgent is GetContextForSession across every session an agent
// has produced entries in.
func (r *Recorder) GetContextForAgent(ctx context.Context, agentID string, limit int) (types.ContextSummary, error) {
	if limit <= 0 {
		limit = defaultContextLimit
	}
	entries, err := r.store.EntriesForAgent(ctx, agentID, limit)
	if err != nil {
		return types.ContextSummary{}, err
	}
	return synthesizeContext(entries), nil
}

// GenerateUniversalScript produces the resumption prompt for agentID,
// optionally seeded with a caller-supplied ContextSummary instead of one
// freshly synthesized from stored entries.
func (r *Recorder) GenerateUniversalScript(ctx context.Context, agentID string, context *types.ContextSummary) (string, error) {
	entries, err := r.store.EntriesForAgent(ctx, agentID, recentLogLines)
	if err != nil {
		return "", err
	}

	summary := context
	if summary == nil {
		full, err := r.GetContextForAgent(ctx, agentID, defaultContextLimit)
		if err != nil {
			return "", err
		}
		summary = &full
	}

	return resumptionPrompt(*summary, entries), nil
}

func (r *Recorder) Close() error {
	return r.store.Close()
}
