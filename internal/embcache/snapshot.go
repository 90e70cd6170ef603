package embcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
)

// save persists the whole table to the canonical snapshot file. Any failure
// flips the persistence-failed flag so subsequent operations fail fast.
func (c *Cache) save() error {
	if err := c.exportTo(filepath.Join(c.dir, snapshotFileName)); err != nil {
		c.failed.Store(true)
		return fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	c.dirty.Store(false)
	c.sinceLastSave.Store(0)
	return nil
}

// Export serializes every cached entry to a compressed file at path,
// replacing any prior file atomically.
func (c *Cache) Export(path string) error {
	if err := c.guard(); err != nil {
		return err
	}
	return c.exportTo(path)
}

// SaveSnapshot exports a timestamped snapshot alongside the canonical file
// and returns its path.
func (c *Cache) SaveSnapshot() (string, error) {
	if err := c.guard(); err != nil {
		return "", err
	}
	name := fmt.Sprintf("embeddings_snapshot_%s.gz", time.Now().UTC().Format(snapshotTimeFormat))
	path := filepath.Join(c.dir, name)
	if err := c.exportTo(path); err != nil {
		return "", err
	}
	return path, nil
}

func (c *Cache) exportTo(path string) error {
	c.fileMu.Lock()
	defer c.fileMu.Unlock()

	entries := make([]Entry, 0, c.size.Load())
	c.entries.Range(func(_, v any) bool {
		entries = append(entries, v.(Entry))
		return true
	})

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".snapshot-*.gz")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	zw := gzip.NewWriter(tmp)
	if err := json.NewEncoder(zw).Encode(entries); err != nil {
		cleanup()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		cleanup()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Import merges entries from a compressed snapshot file into the table,
// keyed by the same (content, metadata)-derived key used for lookups.
// It returns the number of entries read.
func (c *Cache) Import(path string) (int, error) {
	if err := c.guard(); err != nil {
		return 0, err
	}
	n, err := c.importFile(path)
	if err != nil {
		return 0, err
	}
	c.dirty.Store(true)
	return n, nil
}

func (c *Cache) importFile(path string) (int, error) {
	c.fileMu.Lock()
	defer c.fileMu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("read snapshot header: %w", err)
	}
	defer zr.Close()

	var entries []Entry
	if err := json.NewDecoder(zr).Decode(&entries); err != nil {
		return 0, fmt.Errorf("decode snapshot: %w", err)
	}

	var added int64
	for _, entry := range entries {
		if c.dimension > 0 && len(entry.Vector) != c.dimension {
			return 0, fmt.Errorf("%w: snapshot entry %s has %d values, want %d",
				ErrDimensionMismatch, entry.ID, len(entry.Vector), c.dimension)
		}
		key := KeyFor(entry.Content, entry.Metadata)
		if _, existed := c.entries.Load(key); !existed {
			added++
		}
		c.entries.Store(key, entry)
	}
	c.size.Add(added)
	return len(entries), nil
}
