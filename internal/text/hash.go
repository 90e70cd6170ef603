package text

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Chunk is a documentation fragment with its position and identity hash.
type Chunk struct {
	Content string
	Index   int
	Type    DocType
	Hash    string
}

// ChunkHash identifies a chunk by its source, position, and exact content.
// Any content edit, reorder, or move to another source yields a new hash.
func ChunkHash(sourceURL string, index int, content string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s", sourceURL, index, content))
	return hex.EncodeToString(sum[:])
}

// Chunks splits a document and assigns each chunk its index and hash.
func Chunks(sourceURL, content string, maxTokens int) []Chunk {
	pieces := Split(content, maxTokens)
	chunks := make([]Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = Chunk{
			Content: p.Content,
			Index:   i,
			Type:    p.Type,
			Hash:    ChunkHash(sourceURL, i, p.Content),
		}
	}
	return chunks
}
