// Package recorder implements Component H, the Flight Recorder: a durable
// per-agent journal of thoughts, errors, and checkpoints grouped into
// sessions, with synthesis of a resumption prompt after an agent restarts.
package recorder

import (
	"context"
	"errors"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// ErrNotFound is returned when a session or entry lookup finds nothing.
var ErrNotFound = errors.New("recorder: not found")

// Store is the storage-layer surface recorder.Recorder drives. Session
// selection, context synthesis, and the resumption prompt are business
// logic layered on top in recorder.go, not storage concerns, so both the
// Memory and Gorm implementations stay simple CRUD.
type Store interface {
	// UpsertSession inserts the session if its id is unknown, otherwise
	// returns the existing row unchanged ("insert-or-noop", spec §4.H).
	UpsertSession(ctx context.Context, session types.RecorderSession) (types.RecorderSession, error)
	// MostRecentActiveSession returns the newest active=true session for
	// agentID, or ErrNotFound if none exists.
	MostRecentActiveSession(ctx context.Context, agentID string) (types.RecorderSession, error)
	GetSession(ctx context.Context, sessionID string) (types.RecorderSession, error)
	// TouchSession bumps entry_count and last_activity for sessionID.
	TouchSession(ctx context.Context, sessionID string, at time.Time) error
	CloseSession(ctx context.Context, sessionID string) error
	CloseSessionsForAgent(ctx context.Context, agentID string) error

	AppendEntry(ctx context.Context, entry types.JournalEntry) error
	EntriesForSession(ctx context.Context, sessionID string, limit int) ([]types.JournalEntry, error)
	EntriesForAgent(ctx context.Context, agentID string, limit int) ([]types.JournalEntry, error)

	Close() error
}
