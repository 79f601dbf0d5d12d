package lockedfile

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// WriteAtomic writes data to path using a write-to-temp-then-rename replace.
// The temp file is created in the same directory as path (same filesystem, so
// the rename is atomic); a concurrent reader sees either the fully-old or
// fully-new file, never a partial write.
//
// On failure the temp file is never renamed and the target is left untouched.
// The guarantee is "no partial file", not crash durability of the rename
// itself; no fsync is performed.
func WriteAtomic(path string, data []byte) error {
	tmpPath := fmt.Sprintf("%s.tmp.%s", path, uuid.NewString())

	//nolint:gosec // State file, readable by other tools
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck // Best effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
