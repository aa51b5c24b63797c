package convo

import (
	"context"
	"sync"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// MemoryStore is an in-memory Store, mirroring the mutex-guarded map shape
// used by every in-memory store in this module.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]types.ConvoSession
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]types.ConvoSession)}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (types.ConvoSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key]
	if !ok {
		return types.ConvoSession{}, ErrNotFound
	}
	return sess, nil
}

func (s *MemoryStore) Put(ctx context.Context, session types.ConvoSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Key] = session
	return nil
}

func (s *MemoryStore) ListActiveExpiredBefore(ctx context.Context, at time.Time) ([]types.ConvoSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.ConvoSession
	for _, sess := range s.sessions {
		if isActiveState(sess.Status) && sess.ExpiresAt.Before(at) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListTerminalOlderThan(ctx context.Context, at time.Time) ([]types.ConvoSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.ConvoSession
	for _, sess := range s.sessions {
		if !isTerminalState(sess.Status) || sess.CompletedAt == nil {
			continue
		}
		if sess.CompletedAt.Before(at) {
			out = append(out, sess)
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, key)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
