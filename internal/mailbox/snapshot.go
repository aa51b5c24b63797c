package mailbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// writeSnapshotAtomic JSON-encodes v and rewrites path atomically: it writes
// to a temp file in the same directory, then renames over the destination,
// so a crash mid-write never leaves a truncated snapshot (spec §6).
func writeSnapshotAtomic(path string, v any) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mailbox: create snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".mailbox-snapshot-*")
	if err != nil {
		return fmt.Errorf("mailbox: create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	encoder := json.NewEncoder(tmp)
	if err := encoder.Encode(v); err != nil {
		tmp.Close()
		return fmt.Errorf("mailbox: encode snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("mailbox: close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("mailbox: rename snapshot into place: %w", err)
	}
	return nil
}

// readSnapshot loads a JSON snapshot from path into v. A missing file is not
// an error: v is left at its zero value.
func readSnapshot(path string, v any) error {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("mailbox: read snapshot: %w", err)
	}
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("mailbox: decode snapshot: %w", err)
	}
	return nil
}
