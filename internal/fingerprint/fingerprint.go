// Package fingerprint derives the deterministic cache key for a chunk.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Chunk returns a stable fingerprint for (documentID, chunkIndex, text).
// The chunk text is part of the key so that editing a document invalidates
// its cached embeddings even when the chunk index is unchanged.
func Chunk(documentID string, chunkIndex int, text string) string {
	h := sha256.New()
	// Length-prefix each field so field boundaries cannot collide.
	fmt.Fprintf(h, "%d:%s|%d|%d:%s", len(documentID), documentID, chunkIndex, len(text), text)
	return hex.EncodeToString(h.Sum(nil))
}
