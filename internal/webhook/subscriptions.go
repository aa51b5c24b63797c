// Package webhook implements Component F: per-inbox webhook subscriptions
// plus the Auto-Wake ping fired at an agent's registered webhook
// independently of explicit subscriptions.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

var ErrNotFound = errors.New("webhook: subscription not found")

// SubscriptionStore persists one subscriber list per inbox, grounded on the
// mailbox store's own atomic-snapshot discipline.
type SubscriptionStore struct {
	mu           sync.RWMutex
	snapshotPath string
	subs         map[string]types.Subscription
}

func NewSubscriptionStore(snapshotPath string) (*SubscriptionStore, error) {
	s := &SubscriptionStore{snapshotPath: snapshotPath, subs: map[string]types.Subscription{}}
	if snapshotPath == "" {
		return s, nil
	}
	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.subs); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *SubscriptionStore) Subscribe(ctx context.Context, inbox, url, secret string) (types.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub := types.Subscription{
		ID:        types.NewID(),
		Inbox:     inbox,
		URL:       url,
		Secret:    secret,
		CreatedAt: time.Now().UTC(),
	}
	s.subs[sub.ID] = sub
	return sub, s.persistLocked()
}

func (s *SubscriptionStore) Unsubscribe(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return ErrNotFound
	}
	delete(s.subs, id)
	return s.persistLocked()
}

// List returns every subscription across every inbox, for GET /api/webhooks.
func (s *SubscriptionStore) List(ctx context.Context) ([]types.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	return out, nil
}

func (s *SubscriptionStore) ForInbox(ctx context.Context, inbox string) ([]types.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Subscription
	for _, sub := range s.subs {
		if sub.Inbox == inbox {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (s *SubscriptionStore) RecordFailure(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return
	}
	sub.FailureCount++
	sub.LastFailure = &at
	s.subs[id] = sub
	_ = s.persistLocked()
}

func (s *SubscriptionStore) persistLocked() error {
	if s.snapshotPath == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.subs, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.snapshotPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".webhook-subs-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, s.snapshotPath)
}
