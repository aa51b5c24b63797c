// Package ids generates short random hex identifiers for internal
// correlation values that are never exposed across the wire as entity
// identifiers (those use uuid.NewString instead, see internal/sdk/types).
package ids

import (
	"crypto/rand"
	"encoding/hex"
)

// New returns a 32-character random hex string, suitable for correlation
// ids such as dispatch attempt ids or bridge connection ids.
func New() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return hex.EncodeToString(buf)
}
