// Package convo implements Component I, the Session Registry: per-
// conversation bookkeeping (turn counts, participants, TTL, control-message
// consequences) keyed by the normalized triple (from, to, threadId).
package convo

import (
	"context"
	"errors"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// ErrNotFound is returned when a lookup finds no session for the key.
var ErrNotFound = errors.New("convo: not found")

// Store is the storage surface the Registry drives.
type Store interface {
	Get(ctx context.Context, key string) (types.ConvoSession, error)
	Put(ctx context.Context, session types.ConvoSession) error
	// ListActiveExpiredBefore returns active sessions whose ExpiresAt is
	// before `at`, for the janitor's expiry sweep.
	ListActiveExpiredBefore(ctx context.Context, at time.Time) ([]types.ConvoSession, error)
	// ListTerminalOlderThan returns completed/abandoned sessions whose
	// CompletedAt predates `at`, for the janitor's retention sweep.
	ListTerminalOlderThan(ctx context.Context, at time.Time) ([]types.ConvoSession, error)
	Delete(ctx context.Context, key string) error
	Close() error
}
