// Package audit implements Component D: the append-only audit log and the
// thread archive written before a completed thread's messages are swept
// away. Writes are queued through a buffered channel and drained by a single
// consumer goroutine so a slow database never blocks the mutating call that
// triggered the audit entry.
package audit

import (
	"context"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// Store is Component D's synchronous persistence surface. Logger wraps a
// Store with the best-effort async queue described above.
type Store interface {
	Append(ctx context.Context, entry types.AuditEntry) error
	List(ctx context.Context, filter types.AuditFilter) ([]types.AuditEntry, error)
	Stats(ctx context.Context) (types.AuditStats, error)

	ArchiveThread(ctx context.Context, threadID string, messages []types.Message, metadata map[string]any) error
	GetArchivedThread(ctx context.Context, threadID string) (types.ArchivedThread, error)

	Close() error
}
