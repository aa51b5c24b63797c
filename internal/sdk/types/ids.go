// Package types holds the wire-level data structures shared by every
// QuackQuack Core component: messages, agents, blobs, journal entries,
// conversation sessions, audit entries and API keys.
package types

import "github.com/google/uuid"

// NewID returns a fresh externally-visible entity id (message, blob, audit
// entry, session, journal entry). Internal correlation ids (turn ids, call
// ids, bridge connection ids) use internal/ids instead.
func NewID() string {
	return uuid.NewString()
}
