package ledger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	fingerprintPrefix    = "file_"
	fingerprintExtension = ".marker"
	hashLinePrefix       = "hash="
)

// Fingerprint records what a source looked like when it was last fully
// ingested. Size and ModTime are compared by exact equality: any drift,
// including filesystem clock skew, counts as a change.
type Fingerprint struct {
	Size        int64
	ModTime     int64 // unix milliseconds
	ChunkHashes []string
}

// Ledger persists one fingerprint record per source under a directory,
// keyed by a filesystem-safe encoding of the source identifier. Records are
// replaced atomically via write-then-rename, so concurrent readers see either
// the old or the new fingerprint, never a partial write.
type Ledger struct {
	dir string
}

func New(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	return &Ledger{dir: dir}, nil
}

func (l *Ledger) path(sourceID string) string {
	return filepath.Join(l.dir, fingerprintPrefix+SafeName(sourceID)+fingerprintExtension)
}

// IsUnchanged reports whether a fingerprint exists for sourceID and both size
// and modification time match exactly. A source with no fingerprint is new.
func (l *Ledger) IsUnchanged(sourceID string, size, modTime int64) bool {
	fp, ok := l.Read(sourceID)
	return ok && fp.Size == size && fp.ModTime == modTime
}

// Read loads the fingerprint for sourceID. The second return value is false
// when no record exists or the record is unreadable.
func (l *Ledger) Read(sourceID string) (Fingerprint, bool) {
	if sourceID == "" {
		return Fingerprint{}, false
	}
	raw, err := os.ReadFile(l.path(sourceID))
	if err != nil {
		return Fingerprint{}, false
	}
	fp, err := parseFingerprint(string(raw))
	if err != nil {
		return Fingerprint{}, false
	}
	return fp, true
}

// Record replaces the fingerprint for sourceID as one unit. It never merges
// with a prior record.
func (l *Ledger) Record(sourceID string, fp Fingerprint) error {
	if sourceID == "" {
		return errors.New("source id is required for a fingerprint record")
	}
	target := l.path(sourceID)

	tmp, err := os.CreateTemp(l.dir, fingerprintPrefix+"*.tmp")
	if err != nil {
		return fmt.Errorf("create fingerprint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(formatFingerprint(fp)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write fingerprint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close fingerprint temp file: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace fingerprint: %w", err)
	}
	return nil
}

// Delete removes the fingerprint for sourceID. Deleting a missing record is
// not an error.
func (l *Ledger) Delete(sourceID string) error {
	if sourceID == "" {
		return nil
	}
	err := os.Remove(l.path(sourceID))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete fingerprint: %w", err)
	}
	return nil
}

func formatFingerprint(fp Fingerprint) string {
	var b strings.Builder
	fmt.Fprintf(&b, "size=%d\n", fp.Size)
	fmt.Fprintf(&b, "mtime=%d\n", fp.ModTime)
	for _, hash := range fp.ChunkHashes {
		if hash == "" {
			continue
		}
		b.WriteString(hashLinePrefix)
		b.WriteString(hash)
		b.WriteByte('\n')
	}
	return b.String()
}

func parseFingerprint(raw string) (Fingerprint, error) {
	fp := Fingerprint{Size: -1, ModTime: -1}
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "size="):
			v, err := strconv.ParseInt(strings.TrimPrefix(line, "size="), 10, 64)
			if err != nil {
				return Fingerprint{}, fmt.Errorf("invalid size in fingerprint record: %w", err)
			}
			fp.Size = v
		case strings.HasPrefix(line, "mtime="):
			v, err := strconv.ParseInt(strings.TrimPrefix(line, "mtime="), 10, 64)
			if err != nil {
				return Fingerprint{}, fmt.Errorf("invalid mtime in fingerprint record: %w", err)
			}
			fp.ModTime = v
		case strings.HasPrefix(line, hashLinePrefix):
			hash := strings.TrimSpace(strings.TrimPrefix(line, hashLinePrefix))
			if hash != "" {
				fp.ChunkHashes = append(fp.ChunkHashes, hash)
			}
		}
	}
	return fp, nil
}
