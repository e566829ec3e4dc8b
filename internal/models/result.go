package models

import "time"

// ScoredChunk is a single retrieval hit: a chunk and its cosine similarity
// to the query. Scores are in [-1, 1] and are never clamped.
type ScoredChunk struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	TokenCount int     `json:"token_count"`
	Score      float64 `json:"score"`
}

// RetrievalResult is the response for one retrieve call. Chunks are ordered
// by descending score; TotalTokens is the token sum of the included chunks.
type RetrievalResult struct {
	Query       string         `json:"query"`
	Chunks      []*ScoredChunk `json:"chunks"`
	TotalTokens int            `json:"total_tokens"`
	QueryTime   int64          `json:"query_time_ms"`
}

// SkippedChunk records a chunk that ingest could not embed or index,
// along with the reason. One bad chunk never aborts the corpus.
type SkippedChunk struct {
	DocumentID string `json:"document_id"`
	ChunkIndex int    `json:"chunk_index"`
	Reason     string `json:"reason"`
}

// IngestReport summarizes one ingest pass over the corpus.
type IngestReport struct {
	RunID              string         `json:"run_id"`
	DocumentsProcessed int            `json:"documents_processed"`
	DocumentsRemoved   int            `json:"documents_removed"`
	ChunksProduced     int            `json:"chunks_produced"`
	CacheHits          int            `json:"cache_hits"`
	CacheMisses        int            `json:"cache_misses"`
	Skipped            []SkippedChunk `json:"skipped,omitempty"`
	Duration           time.Duration  `json:"duration_ms"`
}

// Partial reports whether some chunks were skipped while the rest of the
// corpus was indexed.
func (r *IngestReport) Partial() bool {
	return len(r.Skipped) > 0
}
