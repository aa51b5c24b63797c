package recorder

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// MemoryStore is an in-memory Store used by tests and the default dev
// configuration, mirroring the mutex-guarded map shape used throughout the
// rest of this module's in-memory stores.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]types.RecorderSession
	entries  map[string][]types.JournalEntry // keyed by session id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]types.RecorderSession),
		entries:  make(map[string][]types.JournalEntry),
	}
}

func (s *MemoryStore) UpsertSession(ctx context.Context, session types.RecorderSession) (types.RecorderSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[session.SessionID]; ok {
		return existing, nil
	}
	s.sessions[session.SessionID] = session
	return session, nil
}

func (s *MemoryStore) MostRecentActiveSession(ctx context.Context, agentID string) (types.RecorderSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []types.RecorderSession
	for _, sess := range s.sessions {
		if sess.AgentID == agentID && sess.Active {
			candidates = append(candidates, sess)
		}
	}
	if len(candidates) == 0 {
		return types.RecorderSession{}, ErrNotFound
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].LastActivity.After(candidates[j].LastActivity)
	})
	return candidates[0], nil
}

func (s *MemoryStore) GetSession(ctx context.Context, sessionID string) (types.RecorderSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return types.RecorderSession{}, ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) TouchSession(ctx context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.EntryCount++
	sess.LastActivity = at
	s.sessions[sessionID] = sess
	return nil
}

func (s *MemoryStore) CloseSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	sess.Active = false
	s.sessions[sessionID] = sess
	return nil
}

func (s *MemoryStore) CloseSessionsForAgent(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.AgentID == agentID {
			sess.Active = false
			s.sessions[id] = sess
		}
	}
	return nil
}

func (s *MemoryStore) AppendEntry(ctx context.Context, entry types.JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.SessionID] = append(s.entries[entry.SessionID], entry)
	return nil
}

func (s *MemoryStore) EntriesForSession(ctx context.Context, sessionID string, limit int) ([]types.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return limitEntries(s.entries[sessionID], limit), nil
}

func (s *MemoryStore) EntriesForAgent(ctx context.Context, agentID string, limit int) ([]types.JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var all []types.JournalEntry
	for _, sess := range s.sessions {
		if sess.AgentID == agentID {
			all = append(all, s.entries[sess.SessionID]...)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	return limitEntries(all, limit), nil
}

func (s *MemoryStore) Close() error { return nil }

// limitEntries returns the most recent limit entries (or all of them if
// limit<=0), oldest-first, matching the ordering the Gorm store's
// Order("timestamp ASC").Limit(N) would only give via a subquery.
func limitEntries(entries []types.JournalEntry, limit int) []types.JournalEntry {
	if limit <= 0 || len(entries) <= limit {
		out := make([]types.JournalEntry, len(entries))
		copy(out, entries)
		return out
	}
	start := len(entries) - limit
	out := make([]types.JournalEntry, limit)
	copy(out, entries[start:])
	return out
}

var _ Store = (*MemoryStore)(nil)
