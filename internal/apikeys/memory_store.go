package apikeys

import (
	"context"
	"sync"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// MemoryStore is an in-memory Store used by tests and dev-mode runs.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]types.APIKey
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: make(map[string]types.APIKey)}
}

func (s *MemoryStore) Create(ctx context.Context, ownerID string, permissions []types.APIKeyPermission) (types.APIKey, string, error) {
	token, hashed, err := GenerateToken()
	if err != nil {
		return types.APIKey{}, "", err
	}
	key := types.APIKey{
		ID:          types.NewID(),
		HashedKey:   hashed,
		OwnerID:     ownerID,
		Permissions: permissions,
		CreatedAt:   time.Now().UTC(),
	}
	s.mu.Lock()
	s.keys[key.ID] = key
	s.mu.Unlock()
	return key, token, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (types.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[id]
	if !ok {
		return types.APIKey{}, ErrNotFound
	}
	return key, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]types.APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.APIKey, 0, len(s.keys))
	for _, key := range s.keys {
		out = append(out, key)
	}
	return out, nil
}

func (s *MemoryStore) Revoke(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[id]
	if !ok {
		return ErrNotFound
	}
	key.Revoked = true
	s.keys[id] = key
	return nil
}

func (s *MemoryStore) VerifyToken(ctx context.Context, token string) (types.APIKey, error) {
	hashed := hashToken(token)
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, key := range s.keys {
		if key.HashedKey != hashed {
			continue
		}
		if key.Revoked {
			return types.APIKey{}, ErrNotFound
		}
		key.LastUsedAt = &now
		s.keys[id] = key
		return key, nil
	}
	return types.APIKey{}, ErrNotFound
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
