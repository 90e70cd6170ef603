package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

const (
	safeNameMaxLength    = 150
	safeNamePrefixLength = 80
	safeNameSuffixLength = 40
	shortShaBytes        = 6
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// SafeName converts a source identifier (URL or path) into a filesystem-safe
// file name. Long names are clamped to a prefix and suffix joined by a short
// content hash so distinct identifiers stay distinct.
func SafeName(id string) string {
	sanitized := unsafeNameChars.ReplaceAllString(id, "_")
	if len(sanitized) <= safeNameMaxLength {
		return sanitized
	}
	sum := sha256.Sum256([]byte(id))
	short := hex.EncodeToString(sum[:shortShaBytes])
	return sanitized[:safeNamePrefixLength] + "_" + short + "_" + sanitized[len(sanitized)-safeNameSuffixLength:]
}
