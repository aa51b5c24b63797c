// Package notifysound is the text-to-audio collaborator boundary: a thin
// Synthesize port, modeled on the same interface-boundary idiom as
// internal/llmproxy's Provider, with one HTTP-backed implementation.
// internal/bridge uses it for a presence/ping sound on delivery and
// internal/dispatch uses it for an optional audio cue on dispatch failure.
package notifysound

import "context"

// Synthesizer turns text into audio bytes for a notification cue.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
