package audit

import (
	"context"
	"log"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// queueDepth bounds how many pending audit writes can be buffered. Once the
// buffer is full, Record logs and drops the entry instead of blocking, so a
// burst of lifecycle mutations never stalls the mailbox/registry/webhook call
// that triggered it.
const queueDepth = 1024

// Logger wraps a Store with the best-effort async write path required by
// spec §4.D ("audit writes ... must never block the mutating operation").
// A single consumer goroutine drains the queue so writes stay ordered.
type Logger struct {
	logger *log.Logger
	store  Store
	queue  chan types.AuditEntry
	done   chan struct{}
}

// NewLogger starts the consumer goroutine and returns a ready Logger.
func NewLogger(logger *log.Logger, store Store) *Logger {
	if logger == nil {
		logger = log.Default()
	}
	l := &Logger{
		logger: logger,
		store:  store,
		queue:  make(chan types.AuditEntry, queueDepth),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Logger) run() {
	defer close(l.done)
	for entry := range l.queue {
		if err := l.store.Append(context.Background(), entry); err != nil {
			l.logger.Printf("audit: failed to append entry action=%s target=%s: %v", entry.Action, entry.TargetID, err)
		}
	}
}

// Record enqueues an audit entry without blocking the caller. If the queue
// is full the entry is logged and dropped rather than applying backpressure
// to the mutating call.
func (l *Logger) Record(action types.AuditAction, actor, targetType, targetID string, details map[string]any) {
	entry := types.AuditEntry{
		Timestamp:  time.Now().UTC(),
		Action:     action,
		Actor:      actor,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
	}
	select {
	case l.queue <- entry:
	default:
		l.logger.Printf("audit: queue full, dropping entry action=%s target=%s", action, targetID)
	}
}

func (l *Logger) List(ctx context.Context, filter types.AuditFilter) ([]types.AuditEntry, error) {
	return l.store.List(ctx, filter)
}

func (l *Logger) Stats(ctx context.Context) (types.AuditStats, error) {
	return l.store.Stats(ctx)
}

// ArchiveThread satisfies mailbox.ArchiveSink. Archival happens synchronously
// (unlike Record) because the sweep must know the archive succeeded before it
// removes the thread's messages.
func (l *Logger) ArchiveThread(ctx context.Context, threadID string, messages []types.Message) error {
	return l.store.ArchiveThread(ctx, threadID, messages, nil)
}

func (l *Logger) GetArchivedThread(ctx context.Context, threadID string) (types.ArchivedThread, error) {
	return l.store.GetArchivedThread(ctx, threadID)
}

// Close stops accepting new entries and waits for the queue to drain.
func (l *Logger) Close() error {
	close(l.queue)
	<-l.done
	return l.store.Close()
}
