package mailbox

import (
	"fmt"
	"strings"
)

// ValidatePath normalizes raw (strips leading/trailing slashes, lowercases)
// and checks it against the inbox path rule in spec §4.A: 1-3 segments when
// hasProjectMetadata is true, 2-3 otherwise. It returns the normalized path.
func ValidatePath(raw string, hasProjectMetadata bool) (string, error) {
	trimmed := strings.ToLower(strings.Trim(strings.TrimSpace(raw), "/"))
	if trimmed == "" {
		return "", fmt.Errorf("mailbox: empty inbox path: %w", ErrInvalidPath)
	}

	segments := strings.Split(trimmed, "/")
	for _, seg := range segments {
		if seg == "" {
			return "", fmt.Errorf("mailbox: empty path segment in %q: %w", raw, ErrInvalidPath)
		}
	}

	min := 2
	if hasProjectMetadata {
		min = 1
	}
	if len(segments) < min || len(segments) > 3 {
		return "", fmt.Errorf("mailbox: path %q must have %d-3 segments: %w", raw, min, ErrInvalidPath)
	}

	return strings.Join(segments, "/"), nil
}

// rootSegment returns the first path segment (the "platform") of a
// normalized inbox path.
func rootSegment(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}
