// Package mailbox implements Component A: a set of named inboxes holding
// messages under a strict lifecycle state machine, TTL-based expiry, and
// thread reconstruction.
package mailbox

import (
	"context"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// ApprovalPolicy decides whether a newly sent message should be
// auto-approved, per the registry's routing policy (spec §4.B). The mailbox
// store depends on this interface rather than the registry package directly
// to avoid a cyclic import.
type ApprovalPolicy interface {
	ShouldAutoApprove(ctx context.Context, from, to string) (bool, error)
}

// ArchiveSink freezes a completed thread's messages before the TTL sweep
// removes them (spec §4.D). Implemented by internal/audit.
type ArchiveSink interface {
	ArchiveThread(ctx context.Context, threadID string, messages []types.Message) error
}

// SendRequest carries the fields a caller supplies to Send; fields not set
// here are computed by the store.
type SendRequest struct {
	To   string
	From string
	Task string

	Context string
	Files   []types.FileRef

	Project             string
	ProjectName         string
	ConversationExcerpt string
	Priority            types.Priority
	Tags                []string

	Routing     types.Routing
	Destination string

	ReplyTo string

	// RequireApproval, when non-nil and true, unconditionally forces the
	// message to pending regardless of the approval policy (spec §4.B).
	RequireApproval *bool

	// SourceAddress is recorded on the message for audit correlation; it is
	// not part of the wire envelope.
	SourceAddress string

	// ProjectMetadataImplied relaxes path validation to the 1-3 segment rule
	// even when Project/ProjectName are empty. The bridge's mailbox fallback
	// and its GET-only relay both validate "with project metadata implied"
	// (spec §4.G) so a coalesced single-segment destination is accepted.
	ProjectMetadataImplied bool
}

// Thread is a reconstructed view of every message sharing a threadId,
// ordered ascending by creation time.
type Thread struct {
	ThreadID string
	Messages []types.Message
}

// Store is Component A's full operation surface (spec §4.A).
type Store interface {
	Send(ctx context.Context, req SendRequest) (types.Message, error)
	CheckInbox(ctx context.Context, path string, includeTerminal, autoApproveOnCheck bool) ([]types.Message, error)
	GetMessage(ctx context.Context, id string) (types.Message, error)
	MarkRead(ctx context.Context, id string) (types.Message, error)
	Approve(ctx context.Context, id string) (types.Message, error)
	Complete(ctx context.Context, id string) (types.Message, error)
	UpdateStatus(ctx context.Context, id string, target types.Status) (types.Message, error)
	Delete(ctx context.Context, id string) error
	GetThread(ctx context.Context, threadID string) ([]types.Message, error)
	ListThreads(ctx context.Context) ([]Thread, error)
	ListByStatus(ctx context.Context, status types.Status) ([]types.Message, error)
	Sweep(ctx context.Context) error
	Reset(ctx context.Context) error
}

// SendPing appends the in-band wake-up notification spec.md's overview lists
// alongside sockets and webhooks as a delivery channel: a "🔔 PING" message,
// sent from "quack-system" and approved immediately so it is actionable the
// moment the recipient next checks its inbox.
func SendPing(ctx context.Context, store Store, to string) (types.Message, error) {
	msg, err := store.Send(ctx, SendRequest{
		To:                     to,
		From:                   "quack-system",
		Task:                   "🔔 PING: new message waiting in " + to,
		Tags:                   []string{"ping", "auto-wake"},
		SourceAddress:          "quack-system",
		ProjectMetadataImplied: true,
	})
	if err != nil {
		return types.Message{}, err
	}
	if msg.Status != types.StatusPending {
		return msg, nil
	}
	return store.Approve(ctx, msg.ID)
}
