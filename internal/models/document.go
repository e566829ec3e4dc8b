// Package models defines core data structures for documents, chunks, and retrieval results.
package models

import (
	"fmt"
	"time"
)

// Document is a corpus document: a stable identity plus raw text content.
// Documents are replaced whole on re-ingestion, never partially mutated.
type Document struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// Chunk is an overlapping segment of a document produced by the chunker.
// Chunk identity is (DocumentID, ChunkIndex).
type Chunk struct {
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

// Key returns the chunk's identity.
func (c *Chunk) Key() ChunkKey {
	return ChunkKey{DocumentID: c.DocumentID, ChunkIndex: c.ChunkIndex}
}

// ChunkKey identifies a chunk within the corpus.
type ChunkKey struct {
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
}

// Less orders keys by (DocumentID, ChunkIndex). Used for deterministic
// tie-breaking in search results.
func (k ChunkKey) Less(other ChunkKey) bool {
	if k.DocumentID != other.DocumentID {
		return k.DocumentID < other.DocumentID
	}
	return k.ChunkIndex < other.ChunkIndex
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("%s#%d", k.DocumentID, k.ChunkIndex)
}

// CacheEntry is a persisted embedding: the fingerprint that keys it, the
// chunk it belongs to, and the vector computed for it.
type CacheEntry struct {
	Fingerprint string    `json:"fingerprint"`
	DocumentID  string    `json:"document_id"`
	ChunkIndex  int       `json:"chunk_index"`
	ChunkText   string    `json:"chunk_text"`
	Vector      []float32 `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}

// Key returns the chunk identity of the entry.
func (e *CacheEntry) Key() ChunkKey {
	return ChunkKey{DocumentID: e.DocumentID, ChunkIndex: e.ChunkIndex}
}
