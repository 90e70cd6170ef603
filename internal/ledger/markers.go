package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Markers is the content-addressed dedup boundary: one presence file per
// chunk hash, set only after the chunk reached its primary destination.
// Markers are keyed by content hash, not by source, so identical chunks
// shared across sources are deduplicated globally.
type Markers struct {
	dir string
}

func NewMarkers(dir string) (*Markers, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create marker directory: %w", err)
	}
	return &Markers{dir: dir}, nil
}

func (m *Markers) path(hash string) string {
	return filepath.Join(m.dir, SafeName(hash))
}

// Has reports whether a marker exists for the chunk hash.
func (m *Markers) Has(hash string) bool {
	if hash == "" {
		return false
	}
	_, err := os.Stat(m.path(hash))
	return err == nil
}

// Set records a marker for the chunk hash. Setting an existing marker is a
// no-op.
func (m *Markers) Set(hash string) error {
	if hash == "" {
		return errors.New("chunk hash is required for a marker")
	}
	p := m.path(hash)
	if _, err := os.Stat(p); err == nil {
		return nil
	}
	if err := os.WriteFile(p, []byte("1"), 0o640); err != nil {
		return fmt.Errorf("write chunk marker: %w", err)
	}
	return nil
}

// Delete removes markers for every given hash. It attempts each hash rather
// than aborting on the first error and returns the first failure encountered.
func (m *Markers) Delete(hashes []string) error {
	var firstFailure error
	for _, hash := range hashes {
		if hash == "" {
			continue
		}
		err := os.Remove(m.path(hash))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			if firstFailure == nil {
				firstFailure = fmt.Errorf("delete chunk marker %s: %w", hash, err)
			}
		}
	}
	return firstFailure
}
