package embcache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Metadata carries chunk provenance. The named fields are the ones the
// pipeline branches on; Extra is an open extension map for provenance fields
// the pipeline never inspects.
type Metadata struct {
	URL        string                     `json:"url,omitempty"`
	Title      string                     `json:"title,omitempty"`
	ChunkIndex int                        `json:"chunkIndex"`
	Package    string                     `json:"package,omitempty"`
	Hash       string                     `json:"hash,omitempty"`
	DocSet     string                     `json:"docSet,omitempty"`
	DocPath    string                     `json:"docPath,omitempty"`
	SourceName string                     `json:"sourceName,omitempty"`
	DocType    string                     `json:"docType,omitempty"`
	Extra      map[string]json.RawMessage `json:"additionalMetadata,omitempty"`
}

// IsEmpty reports whether the metadata carries no provenance at all.
func (m Metadata) IsEmpty() bool {
	return m.URL == "" && m.Title == "" && m.ChunkIndex == 0 && m.Package == "" &&
		m.Hash == "" && m.DocSet == "" && m.DocPath == "" && m.SourceName == "" &&
		m.DocType == "" && len(m.Extra) == 0
}

// normalized returns a canonical string representation used for cache keying,
// stable across map iteration order.
func (m Metadata) normalized() string {
	var b strings.Builder
	fmt.Fprintf(&b, "url=%s|title=%s|chunkIndex=%d|package=%s|hash=%s|docSet=%s|docPath=%s|sourceName=%s|docType=%s",
		m.URL, m.Title, m.ChunkIndex, m.Package, m.Hash, m.DocSet, m.DocPath, m.SourceName, m.DocType)
	if len(m.Extra) > 0 {
		keys := make([]string, 0, len(m.Extra))
		for k := range m.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "|%s=%s", k, string(m.Extra[k]))
		}
	}
	return b.String()
}

// Entry is one persisted (content, vector, metadata) triple. Uploaded is true
// only after a confirmed write to the remote destination.
type Entry struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Vector    []float32 `json:"embedding"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"createdAt"`
	Uploaded  bool      `json:"uploaded"`
}

// Item is one compute-or-fetch request.
type Item struct {
	ID       string
	Content  string
	Metadata Metadata
}

// KeyFor derives the cache key from content and metadata. Two logically
// distinct chunks with identical text but different provenance must not
// collide, so non-empty metadata contributes a second hash component.
func KeyFor(content string, meta Metadata) string {
	contentSum := sha256.Sum256([]byte(content))
	key := hex.EncodeToString(contentSum[:])
	if !meta.IsEmpty() {
		metaSum := sha256.Sum256([]byte(meta.normalized()))
		key += "_" + hex.EncodeToString(metaSum[:])
	}
	return key
}
