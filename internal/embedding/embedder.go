// Package embedding provides the embedding capability boundary: the
// Embedder interface, a remote OpenAI-compatible implementation, a
// deterministic mock for tests, and an in-memory LRU wrapper.
package embedding

import "context"

// Embedder produces vector embeddings for text. Implementations may block
// on I/O; errors propagate unretried to the caller, which owns retry policy.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
