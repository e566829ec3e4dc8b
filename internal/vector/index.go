// Package vector provides an exact in-memory vector index over normalized
// vectors, with binary snapshot persistence.
package vector

import (
	"context"

	"github.com/hyperjump/omoide/internal/models"
)

// Result is a single similarity hit. Score is the inner product of the
// normalized query and stored vector, i.e. cosine similarity in [-1, 1].
type Result struct {
	Key         models.ChunkKey
	Fingerprint string
	Score       float64
}

// Entry is the input to a rebuild: a chunk identity, the fingerprint of its
// cache entry, and its raw (not necessarily normalized) vector.
type Entry struct {
	Key         models.ChunkKey
	Fingerprint string
	Vector      []float32
}

// Index stores normalized vectors tagged with chunk identities and answers
// exact top-k inner-product queries.
type Index interface {
	Add(ctx context.Context, entry *Entry) error
	Remove(ctx context.Context, keys []models.ChunkKey) error
	Search(ctx context.Context, query []float32, k int) ([]*Result, error)
	Rebuild(ctx context.Context, entries []*Entry) error
	Save(path string) error
	Load(path string) error
	Size() int
	Fingerprints() map[string]bool
	Close() error
}
