package registry

import (
	"context"
	"sync"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// MemoryStore is an in-memory Store used by tests and by any component that
// does not need GORM-backed durability.
type MemoryStore struct {
	mu     sync.RWMutex
	agents map[string]types.Agent
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{agents: make(map[string]types.Agent)}
}

func (s *MemoryStore) Create(ctx context.Context, agent types.Agent) (types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := agent.Identifier()
	if _, exists := s.agents[id]; exists {
		return types.Agent{}, ErrConflict
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = time.Now().UTC()
	}
	agent.ID = id
	s.agents[id] = agent
	return agent, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	agent, ok := s.agents[id]
	if !ok {
		return types.Agent{}, ErrNotFound
	}
	return agent, nil
}

func (s *MemoryStore) Update(ctx context.Context, agent types.Agent) (types.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := agent.Identifier()
	if _, ok := s.agents[id]; !ok {
		return types.Agent{}, ErrNotFound
	}
	agent.ID = id
	s.agents[id] = agent
	return agent, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return ErrNotFound
	}
	delete(s.agents, id)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, filter ListFilter) ([]types.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Agent, 0, len(s.agents))
	for _, agent := range s.agents {
		if filter.Platform != "" && agent.Platform != filter.Platform {
			continue
		}
		if filter.Capability != "" && !hasCapability(agent.Capabilities, filter.Capability) {
			continue
		}
		if filter.Public != nil && agent.Public != *filter.Public {
			continue
		}
		out = append(out, agent)
	}
	return out, nil
}

func hasCapability(capabilities []string, want string) bool {
	for _, c := range capabilities {
		if c == want {
			return true
		}
	}
	return false
}

func (s *MemoryStore) UpdateLastActivity(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	agent, ok := s.agents[id]
	if !ok {
		return ErrNotFound
	}
	agent.LastSeen = at
	s.agents[id] = agent
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context, id string) (types.Agent, error) {
	now := time.Now().UTC()
	if err := s.UpdateLastActivity(ctx, id, now); err != nil {
		return types.Agent{}, err
	}
	return s.Get(ctx, id)
}

func (s *MemoryStore) ShouldAutoApprove(ctx context.Context, from, to string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fromAgent, fromOK := s.agents[rootPlatform(from)]
	toAgent, toOK := s.agents[rootPlatform(to)]
	return decideAutoApprove(fromAgent, fromOK, toAgent, toOK), nil
}

func (s *MemoryStore) EnsureSeeded(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seed := range defaultSeeds() {
		if _, exists := s.agents[seed.ID]; exists {
			continue
		}
		seed.CreatedAt = time.Now().UTC()
		s.agents[seed.ID] = seed
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
