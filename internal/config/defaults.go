package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.CachePath == "" {
		cfg.Storage.CachePath = "/usr/local/var/omoide/data/db/embeddings.db"
	}
	if cfg.Storage.SnapshotPath == "" {
		cfg.Storage.SnapshotPath = "/usr/local/var/omoide/data/indices/flat.idx"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.Dimensions == 0 {
		if cfg.Embedding.Provider == "mock" {
			cfg.Embedding.Dimensions = 384
		} else {
			cfg.Embedding.Dimensions = 1536
		}
	}
	if cfg.Embedding.QueryCacheSize == 0 {
		cfg.Embedding.QueryCacheSize = 1024
	}
	if cfg.Retrieval.ChunkSize == 0 {
		cfg.Retrieval.ChunkSize = 400
	}
	if cfg.Retrieval.ChunkOverlap == 0 {
		cfg.Retrieval.ChunkOverlap = 100
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.MaxContextTokens == 0 {
		cfg.Retrieval.MaxContextTokens = 3000
	}
	if cfg.Corpus.Extensions == nil {
		cfg.Corpus.Extensions = []string{".md", ".txt"}
	}
}
