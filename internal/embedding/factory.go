package embedding

import (
	"fmt"

	"github.com/hyperjump/omoide/internal/config"
)

// NewFromConfig builds the configured embedder, wrapped with the query-time
// LRU cache.
func NewFromConfig(cfg *config.EmbeddingConfig) (Embedder, error) {
	var inner Embedder
	switch cfg.Provider {
	case "mock":
		inner = NewMockEmbedder(cfg.Dimensions)
	case "openai":
		e, err := NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions)
		if err != nil {
			return nil, err
		}
		inner = e
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", cfg.Provider)
	}
	return NewCachedEmbedder(inner, cfg.QueryCacheSize), nil
}
