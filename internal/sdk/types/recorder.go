package types

import "time"

// JournalEntryType classifies a Flight Recorder journal entry.
type JournalEntryType string

const (
	JournalThought    JournalEntryType = "THOUGHT"
	JournalError      JournalEntryType = "ERROR"
	JournalCheckpoint JournalEntryType = "CHECKPOINT"
	JournalMessage    JournalEntryType = "MESSAGE"
)

// ContextSnapshot is the optional state an agent attaches to a journal entry.
type ContextSnapshot struct {
	CurrentTask     string         `json:"current_task,omitempty"`
	LastFileEdited  string         `json:"last_file_edited,omitempty"`
	BlockingIssue   string         `json:"blocking_issue,omitempty"`
	RecentDecisions []string       `json:"recent_decisions,omitempty"`
	Custom          map[string]any `json:"custom,omitempty"`
}

// JournalEntry is one Flight Recorder record.
type JournalEntry struct {
	ID        string           `json:"id"`
	SessionID string           `json:"session_id"`
	AgentID   string           `json:"agent_id"`
	Timestamp time.Time        `json:"timestamp"`
	Type      JournalEntryType `json:"type"`
	Content   string           `json:"content"`
	Context   *ContextSnapshot `json:"context,omitempty"`
	Target    string           `json:"target,omitempty"`
	Tags      []string         `json:"tags,omitempty"`
}

// RecorderSession groups a run of one agent's journal entries.
type RecorderSession struct {
	SessionID    string    `json:"session_id"`
	AgentID      string    `json:"agent_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	EntryCount   int       `json:"entry_count"`
	Active       bool      `json:"active"`
}

// SessionActiveWindow is how long a session stays eligible for implicit
// reuse on the next log call without an explicit session id (spec §4.H).
const SessionActiveWindow = 24 * time.Hour

// ContextSummary is the synthesized view of a session's recent entries
// (spec §4.H "Context synthesis").
type ContextSummary struct {
	SummaryText       string   `json:"summary_text"`
	ImmediateGoal     string   `json:"immediate_goal"`
	KeyDecisions      []string `json:"key_decisions"`
	UnresolvedIssues  []string `json:"unresolved_issues"`
}
