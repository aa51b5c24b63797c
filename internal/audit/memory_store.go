package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// ErrArchiveNotFound is returned when no archived copy of a thread exists.
var ErrArchiveNotFound = errors.New("audit: archived thread not found")

// MemoryStore is an in-memory Store used by tests.
type MemoryStore struct {
	mu       sync.Mutex
	entries  []types.AuditEntry
	nextID   int64
	archives map[string]types.ArchivedThread
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{archives: make(map[string]types.ArchivedThread)}
}

func (s *MemoryStore) Append(ctx context.Context, entry types.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry.ID = s.nextID
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, filter types.AuditFilter) ([]types.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []types.AuditEntry
	for _, e := range s.entries {
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.Actor != "" && e.Actor != filter.Actor {
			continue
		}
		if filter.TargetType != "" && e.TargetType != filter.TargetType {
			continue
		}
		if filter.TargetID != "" && e.TargetID != filter.TargetID {
			continue
		}
		if !filter.Since.IsZero() && e.Timestamp.Before(filter.Since) {
			continue
		}
		if !filter.Until.IsZero() && e.Timestamp.After(filter.Until) {
			continue
		}
		matched = append(matched, e)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(matched) {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (types.AuditStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := types.AuditStats{
		TopActions: make(map[string]int64),
		TopActors:  make(map[string]int64),
	}
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	for _, e := range s.entries {
		stats.Total++
		if e.Timestamp.After(cutoff) {
			stats.Last24h++
		}
		stats.TopActions[string(e.Action)]++
		stats.TopActors[e.Actor]++
	}
	return stats, nil
}

func (s *MemoryStore) ArchiveThread(ctx context.Context, threadID string, messages []types.Message, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	participants := map[string]struct{}{}
	var first, last time.Time
	for i, m := range messages {
		participants[m.From] = struct{}{}
		participants[m.To] = struct{}{}
		if i == 0 || m.CreatedAt.Before(first) {
			first = m.CreatedAt
		}
		if i == 0 || m.CreatedAt.After(last) {
			last = m.CreatedAt
		}
	}
	names := make([]string, 0, len(participants))
	for p := range participants {
		names = append(names, p)
	}

	s.archives[threadID] = types.ArchivedThread{
		ID:           types.NewID(),
		ThreadID:     threadID,
		Participants: names,
		FirstMessage: first,
		LastMessage:  last,
		Messages:     messages,
		Metadata:     metadata,
		ArchivedAt:   time.Now().UTC(),
	}
	return nil
}

func (s *MemoryStore) GetArchivedThread(ctx context.Context, threadID string) (types.ArchivedThread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	archived, ok := s.archives[threadID]
	if !ok {
		return types.ArchivedThread{}, ErrArchiveNotFound
	}
	return archived, nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
