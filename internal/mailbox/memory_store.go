package mailbox

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JPaulGrayson/QuackQuack/internal/sdk/types"
)

// location pins a message to its inbox and position so lookups by id don't
// need a linear scan.
type location struct {
	path string
	idx  int
}

// MemoryStore is the in-memory, JSON-snapshot-persisted implementation of
// Store. All state lives behind a single sync.RWMutex, matching the "single
// mutex, or sharded by inbox key" guidance in spec §5.
type MemoryStore struct {
	logger *log.Logger

	policy  ApprovalPolicy
	archive ArchiveSink

	snapshotPath string

	mu       sync.RWMutex
	inboxes  map[string][]types.Message
	byID     map[string]location
}

// snapshotV1 is the on-disk shape of a mailbox snapshot.
type snapshotV1 struct {
	Inboxes map[string][]types.Message `json:"inboxes"`
}

// NewMemoryStore constructs a MemoryStore, loading snapshotPath if it
// already exists. An empty snapshotPath disables persistence (used in
// tests).
func NewMemoryStore(logger *log.Logger, policy ApprovalPolicy, archive ArchiveSink, snapshotPath string) (*MemoryStore, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "mailbox ", log.LstdFlags)
	}
	s := &MemoryStore{
		logger:       logger,
		policy:       policy,
		archive:      archive,
		snapshotPath: snapshotPath,
		inboxes:      make(map[string][]types.Message),
		byID:         make(map[string]location),
	}

	var snap snapshotV1
	if err := readSnapshot(snapshotPath, &snap); err != nil {
		return nil, err
	}
	if snap.Inboxes != nil {
		s.inboxes = snap.Inboxes
		s.reindexLocked()
	}
	return s, nil
}

func (s *MemoryStore) reindexLocked() {
	s.byID = make(map[string]location, len(s.byID))
	for path, msgs := range s.inboxes {
		for idx, msg := range msgs {
			s.byID[msg.ID] = location{path: path, idx: idx}
		}
	}
}

func (s *MemoryStore) persistLocked() {
	snap := snapshotV1{Inboxes: s.inboxes}
	if err := writeSnapshotAtomic(s.snapshotPath, snap); err != nil {
		s.logger.Printf("mailbox: snapshot persist failed: %v", err)
	}
}

func defaultPriority(p types.Priority) types.Priority {
	if p == "" {
		return types.PriorityNormal
	}
	return p
}

func defaultRouting(r types.Routing) types.Routing {
	if r == "" {
		return types.RoutingDirect
	}
	return r
}

func detectControlType(task string) (types.ControlType, bool) {
	normalized := types.ControlType(strings.ToUpper(strings.TrimSpace(task)))
	switch normalized {
	case types.ControlReplySkip, types.ControlAnnounceSkip, types.ControlConversationEnd:
		return normalized, true
	default:
		return "", false
	}
}

// Send implements the send semantics of spec §4.A steps 1-6.
func (s *MemoryStore) Send(ctx context.Context, req SendRequest) (types.Message, error) {
	hasProjectMeta := req.Project != "" || req.ProjectName != "" || req.ProjectMetadataImplied
	path, err := ValidatePath(req.To, hasProjectMeta)
	if err != nil {
		return types.Message{}, err
	}

	now := time.Now().UTC()
	msg := types.Message{
		ID:                  types.NewID(),
		To:                  path,
		From:                strings.ToLower(strings.TrimSpace(req.From)),
		CreatedAt:           now,
		ExpiresAt:           now.Add(types.MessageTTL),
		Task:                req.Task,
		Context:             req.Context,
		Files:               req.Files,
		Project:             req.Project,
		ProjectName:         req.ProjectName,
		ConversationExcerpt: req.ConversationExcerpt,
		Priority:            defaultPriority(req.Priority),
		Tags:                req.Tags,
		Routing:             defaultRouting(req.Routing),
		Destination:         req.Destination,
		SourceAddress:       req.SourceAddress,
		Version:             "v1",
	}
	if msg.Files == nil {
		msg.Files = []types.FileRef{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ReplyTo != "" {
		loc, ok := s.byID[req.ReplyTo]
		if !ok {
			return types.Message{}, fmt.Errorf("mailbox: replyTo %q: %w", req.ReplyTo, ErrNotFound)
		}
		parent := s.inboxes[loc.path][loc.idx]
		if parent.ThreadID == "" {
			parent.ThreadID = parent.ID
		}
		msg.ReplyTo = req.ReplyTo
		msg.ThreadID = parent.ThreadID
		parent.ReplyCount++
		if parent.IsActionable() {
			parent.Status = types.StatusCompleted
		}
		s.inboxes[loc.path][loc.idx] = parent
	} else {
		msg.ThreadID = msg.ID
	}

	if controlType, ok := detectControlType(msg.Task); ok {
		msg.IsControlMessage = true
		msg.ControlType = controlType
		if controlType == types.ControlConversationEnd {
			msg.ThreadStatus = types.ThreadStatusCompleted
		}
	}

	msg.Status = types.StatusPending
	forcePending := req.RequireApproval != nil && *req.RequireApproval
	if !forcePending {
		approved := false
		if s.policy != nil {
			approved, err = s.policy.ShouldAutoApprove(ctx, msg.From, msg.To)
			if err != nil {
				s.logger.Printf("mailbox: approval policy error for %s -> %s: %v", msg.From, msg.To, err)
				approved = false
			}
		}
		if approved {
			msg.Status = types.StatusApproved
			routedAt := now
			msg.RoutedAt = &routedAt
		}
	}

	s.inboxes[path] = append(s.inboxes[path], msg)
	s.byID[msg.ID] = location{path: path, idx: len(s.inboxes[path]) - 1}
	s.persistLocked()

	return msg, nil
}

// CheckInbox implements spec §4.A check semantics.
func (s *MemoryStore) CheckInbox(ctx context.Context, path string, includeTerminal, autoApproveOnCheck bool) ([]types.Message, error) {
	normalized, err := ValidatePath(path, true)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := s.inboxes[normalized]
	if autoApproveOnCheck {
		for idx, msg := range msgs {
			if msg.Status == types.StatusPending {
				msg.Status = types.StatusApproved
				routedAt := time.Now().UTC()
				msg.RoutedAt = &routedAt
				msgs[idx] = msg
			}
		}
		s.inboxes[normalized] = msgs
		s.persistLocked()
	}

	out := make([]types.Message, 0, len(msgs))
	for _, msg := range msgs {
		if includeTerminal || msg.IsActionable() {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetMessage(ctx context.Context, id string) (types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.byID[id]
	if !ok {
		return types.Message{}, ErrNotFound
	}
	return s.inboxes[loc.path][loc.idx], nil
}

// MarkRead stamps readAt and moves the message to the read state. Unlike
// UpdateStatus, it is a named entry point that assumes its own transition
// (spec §4.A) rather than consulting the transition table: a message may be
// marked read from any non-terminal state.
func (s *MemoryStore) MarkRead(ctx context.Context, id string) (types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.byID[id]
	if !ok {
		return types.Message{}, ErrNotFound
	}
	msg := s.inboxes[loc.path][loc.idx]
	if msg.Status.IsTerminal() {
		return types.Message{}, fmt.Errorf("mailbox: cannot mark %s message as read: %w", msg.Status, ErrInvalidTransition)
	}
	now := time.Now().UTC()
	msg.Status = types.StatusRead
	msg.ReadAt = &now
	s.inboxes[loc.path][loc.idx] = msg
	s.persistLocked()
	return msg, nil
}

// Approve enforces source = pending (spec §4.A).
func (s *MemoryStore) Approve(ctx context.Context, id string) (types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.byID[id]
	if !ok {
		return types.Message{}, ErrNotFound
	}
	msg := s.inboxes[loc.path][loc.idx]
	if msg.Status != types.StatusPending {
		return types.Message{}, fmt.Errorf("mailbox: approve requires pending, got %s: %w", msg.Status, ErrInvalidTransition)
	}
	now := time.Now().UTC()
	msg.Status = types.StatusApproved
	msg.RoutedAt = &now
	s.inboxes[loc.path][loc.idx] = msg
	s.persistLocked()
	return msg, nil
}

// Complete transitions a message to completed via the transition table
// (only in_progress -> completed is legal).
func (s *MemoryStore) Complete(ctx context.Context, id string) (types.Message, error) {
	return s.UpdateStatus(ctx, id, types.StatusCompleted)
}

// UpdateStatus consults the transition table (spec §4.A).
func (s *MemoryStore) UpdateStatus(ctx context.Context, id string, target types.Status) (types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.byID[id]
	if !ok {
		return types.Message{}, ErrNotFound
	}
	msg := s.inboxes[loc.path][loc.idx]
	if !isAllowedTransition(msg.Status, target) {
		return types.Message{}, fmt.Errorf("mailbox: %s -> %s: %w", msg.Status, target, ErrInvalidTransition)
	}
	msg.Status = target
	if target == types.StatusRead {
		now := time.Now().UTC()
		msg.ReadAt = &now
	}
	s.inboxes[loc.path][loc.idx] = msg
	s.persistLocked()
	return msg, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	msgs := s.inboxes[loc.path]
	msgs = append(msgs[:loc.idx], msgs[loc.idx+1:]...)
	if len(msgs) == 0 {
		delete(s.inboxes, loc.path)
	} else {
		s.inboxes[loc.path] = msgs
	}
	delete(s.byID, id)
	s.reindexLocked()
	s.persistLocked()
	return nil
}

// GetThread scans all inboxes for messages sharing threadID, ordered
// ascending by creation time with ties broken lexicographically by id
// (spec §5 ordering guarantees).
func (s *MemoryStore) GetThread(ctx context.Context, threadID string) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collectThreadLocked(threadID), nil
}

func (s *MemoryStore) collectThreadLocked(threadID string) []types.Message {
	var out []types.Message
	for _, msgs := range s.inboxes {
		for _, msg := range msgs {
			if msg.ThreadID == threadID || msg.ID == threadID {
				out = append(out, msg)
			}
		}
	}
	sortMessages(out)
	return out
}

func sortMessages(msgs []types.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// ListThreads groups all messages by threadId, each group sorted ascending,
// the groups themselves ordered by latest message timestamp descending.
func (s *MemoryStore) ListThreads(ctx context.Context) ([]Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	grouped := make(map[string][]types.Message)
	for _, msgs := range s.inboxes {
		for _, msg := range msgs {
			key := msg.ThreadID
			if key == "" {
				key = msg.ID
			}
			grouped[key] = append(grouped[key], msg)
		}
	}

	threads := make([]Thread, 0, len(grouped))
	for threadID, msgs := range grouped {
		sortMessages(msgs)
		threads = append(threads, Thread{ThreadID: threadID, Messages: msgs})
	}

	sort.SliceStable(threads, func(i, j int) bool {
		li := threads[i].Messages[len(threads[i].Messages)-1].CreatedAt
		lj := threads[j].Messages[len(threads[j].Messages)-1].CreatedAt
		return li.After(lj)
	})
	return threads, nil
}

// ListByStatus scans all inboxes for messages in the given status, used by
// the dispatcher to find approved messages ready for webhook delivery
// (spec §4.E).
func (s *MemoryStore) ListByStatus(ctx context.Context, status types.Status) ([]types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Message
	for _, msgs := range s.inboxes {
		for _, msg := range msgs {
			if msg.Status == status {
				out = append(out, msg)
			}
		}
	}
	return out, nil
}

// Sweep implements the TTL sweep: archive completed, about-to-expire
// threads, then drop every expired message and any inbox left empty
// (spec §4.A).
func (s *MemoryStore) Sweep(ctx context.Context) error {
	now := time.Now().UTC()

	s.mu.Lock()
	archiveThreadIDs := make(map[string]struct{})
	for _, msgs := range s.inboxes {
		for _, msg := range msgs {
			if msg.Status == types.StatusCompleted && !msg.ExpiresAt.After(now) {
				key := msg.ThreadID
				if key == "" {
					key = msg.ID
				}
				archiveThreadIDs[key] = struct{}{}
			}
		}
	}
	threadSnapshots := make(map[string][]types.Message, len(archiveThreadIDs))
	for threadID := range archiveThreadIDs {
		threadSnapshots[threadID] = s.collectThreadLocked(threadID)
	}
	s.mu.Unlock()

	if s.archive != nil {
		for threadID, msgs := range threadSnapshots {
			if err := s.archive.ArchiveThread(ctx, threadID, msgs); err != nil {
				s.logger.Printf("mailbox: archive thread %s failed: %v", threadID, err)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	changed := false
	for path, msgs := range s.inboxes {
		kept := msgs[:0:0]
		for _, msg := range msgs {
			if msg.ExpiresAt.After(now) {
				kept = append(kept, msg)
			} else {
				changed = true
			}
		}
		if len(kept) == 0 {
			delete(s.inboxes, path)
		} else {
			s.inboxes[path] = kept
		}
	}
	if changed {
		s.reindexLocked()
		s.persistLocked()
	}
	return nil
}

// Reset clears all mailbox state; used by tests and the admin surface.
func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inboxes = make(map[string][]types.Message)
	s.byID = make(map[string]location)
	s.persistLocked()
	return nil
}

var _ Store = (*MemoryStore)(nil)
