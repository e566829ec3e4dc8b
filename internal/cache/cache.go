// Package cache defines the content-addressed embedding cache.
package cache

import (
	"context"

	"github.com/hyperjump/omoide/internal/models"
)

// EmbedFunc computes the embedding for a chunk's text. Supplied by the
// caller; the cache invokes it at most once per distinct fingerprint.
type EmbedFunc func(ctx context.Context, text string) ([]float32, error)

// Store persists chunk embeddings keyed by fingerprint. Implementations must
// survive process restarts and support atomic replace of an entry.
type Store interface {
	// GetOrCompute returns the cached vector for fingerprint, or calls
	// embed exactly once, stores the result, and returns it. If embed
	// fails, nothing is written and the error propagates.
	GetOrCompute(ctx context.Context, fingerprint string, key models.ChunkKey, text string, embed EmbedFunc) (vector []float32, hit bool, err error)

	// Contains reports whether an entry exists for fingerprint.
	Contains(ctx context.Context, fingerprint string) (bool, error)

	// Put stores an entry, replacing any previous entry with the same
	// fingerprint atomically.
	Put(ctx context.Context, entry *models.CacheEntry) error

	// InvalidateDocument removes every entry for documentID. Returns the
	// number of removed entries.
	InvalidateDocument(ctx context.Context, documentID string) (int64, error)

	// PruneDocument removes entries for documentID whose fingerprint is
	// not in keep. Used when a document's content changed so stale chunks
	// drop out while untouched ones stay cached.
	PruneDocument(ctx context.Context, documentID string, keep map[string]bool) (int64, error)

	// All returns every entry, ordered by (document_id, chunk_index).
	All(ctx context.Context) ([]*models.CacheEntry, error)

	// DocumentIDs returns the distinct document IDs present in the cache.
	DocumentIDs(ctx context.Context) ([]string, error)

	// Count returns the number of entries.
	Count(ctx context.Context) (int64, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	Close() error
}
