// Package retriever orchestrates chunking, embedding, indexing, and query
// answering. Ingest passes run serially; retrieval is read-only and safe to
// call concurrently with an ingest.
package retriever

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/omoide/internal/cache"
	"github.com/hyperjump/omoide/internal/chunker"
	"github.com/hyperjump/omoide/internal/config"
	"github.com/hyperjump/omoide/internal/corpus"
	"github.com/hyperjump/omoide/internal/embedding"
	"github.com/hyperjump/omoide/internal/fingerprint"
	"github.com/hyperjump/omoide/internal/models"
	"github.com/hyperjump/omoide/internal/vector"
	"github.com/hyperjump/omoide/pkg/utils"
)

// chunkMeta carries the bits of a chunk that search results need but the
// vector index does not store.
type chunkMeta struct {
	text       string
	tokenCount int
}

// Status is a point-in-time snapshot of the retriever's state.
type Status struct {
	Documents    int    `json:"documents"`
	Chunks       int    `json:"chunks"`
	CacheEntries int64  `json:"cache_entries"`
	Dimensions   int    `json:"dimensions"`
	Provider     string `json:"provider"`
	LastIngest   string `json:"last_ingest,omitempty"`
}

// Orchestrator wires the chunker, embedding cache, and vector index into the
// two top-level operations: Ingest and Retrieve.
type Orchestrator struct {
	cfg      *config.Config
	store    cache.Store
	embedder embedding.Embedder
	index    *vector.FlatIndex
	chunker  *chunker.Chunker
	logger   *zap.Logger

	ingestMu sync.Mutex

	// stateMu pairs the index contents with the chunk metadata: writers
	// rebuild and swap both inside one critical section, readers search
	// and resolve under the read lock, so a query never sees an index
	// from one ingest pass and metadata from another.
	stateMu    sync.RWMutex
	meta       map[models.ChunkKey]chunkMeta
	documents  int
	lastIngest time.Time
}

// New creates an orchestrator. The chunker is built from the retrieval
// config; chunk size and overlap are validated there.
func New(cfg *config.Config, store cache.Store, embedder embedding.Embedder, index *vector.FlatIndex, logger *zap.Logger) (*Orchestrator, error) {
	ch, err := chunker.New(cfg.Retrieval.ChunkSize, cfg.Retrieval.ChunkOverlap)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunker: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		embedder: embedder,
		index:    index,
		chunker:  ch,
		logger:   logger,
		meta:     make(map[models.ChunkKey]chunkMeta),
	}, nil
}

// Restore rebuilds the in-memory index from persisted state. It loads the
// snapshot if present, then checks that the snapshot's fingerprints match
// the cache's indexable entries exactly; on any mismatch it rebuilds from
// the cache, which is the source of truth. Cache entries that cannot be
// indexed (zero-norm or wrong-dimension vectors, as recorded by a past
// ingest) are skipped with a warning, never fatal, so one poisoned entry
// does not keep the process from starting. Safe to call before serving
// queries.
func (o *Orchestrator) Restore(ctx context.Context) error {
	o.ingestMu.Lock()
	defer o.ingestMu.Unlock()

	if err := o.index.Load(o.cfg.Storage.SnapshotPath); err != nil {
		o.logger.Warn("snapshot load failed, rebuilding from cache", zap.Error(err))
	}

	entries, err := o.store.All(ctx)
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	indexEntries := make([]*vector.Entry, 0, len(entries))
	meta := make(map[models.ChunkKey]chunkMeta, len(entries))
	docs := make(map[string]bool)
	for _, e := range entries {
		key := models.ChunkKey{DocumentID: e.DocumentID, ChunkIndex: e.ChunkIndex}
		docs[e.DocumentID] = true
		if reason := indexableVector(e.Vector, o.embedder.Dimensions()); reason != "" {
			o.logger.Warn("cache entry not indexable, skipping",
				zap.String("key", key.String()),
				zap.String("reason", reason))
			continue
		}
		indexEntries = append(indexEntries, &vector.Entry{
			Key:         key,
			Fingerprint: e.Fingerprint,
			Vector:      e.Vector,
		})
		meta[key] = chunkMeta{text: e.ChunkText, tokenCount: chunker.CountTokens(e.ChunkText)}
	}

	o.stateMu.Lock()
	defer o.stateMu.Unlock()
	if !o.snapshotFresh(indexEntries) {
		o.logger.Info("snapshot stale or missing, rebuilding index from cache",
			zap.Int("cache_entries", len(entries)))
		if err := o.index.Rebuild(ctx, indexEntries); err != nil {
			return fmt.Errorf("failed to rebuild index: %w", err)
		}
	}
	o.meta = meta
	o.documents = len(docs)

	o.logger.Info("retriever restored",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", o.index.Size()))
	return nil
}

// indexableVector reports why vec cannot enter the index, or "" if it can.
func indexableVector(vec []float32, dimensions int) string {
	if len(vec) != dimensions {
		return fmt.Sprintf("embedding dimension %d, expected %d", len(vec), dimensions)
	}
	if vector.L2Norm(vec) == 0 {
		return "zero embedding vector"
	}
	return ""
}

// snapshotFresh reports whether the loaded snapshot covers exactly the
// indexable cache entries.
func (o *Orchestrator) snapshotFresh(entries []*vector.Entry) bool {
	indexed := o.index.Fingerprints()
	if len(indexed) != len(entries) {
		return false
	}
	for _, e := range entries {
		if !indexed[e.Fingerprint] {
			return false
		}
	}
	return true
}

// Ingest runs one full pass over the corpus: chunk every document, embed
// chunks not already cached, drop cache entries for stale chunks and removed
// documents, then rebuild the index wholesale and persist a snapshot.
// Chunks that fail to embed are skipped and reported; they never abort the
// pass. Concurrent calls serialize.
func (o *Orchestrator) Ingest(ctx context.Context, source corpus.Source) (*models.IngestReport, error) {
	o.ingestMu.Lock()
	defer o.ingestMu.Unlock()

	start := time.Now()
	report := &models.IngestReport{RunID: uuid.New().String()}

	docs, err := source.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus: %w", err)
	}

	seen := make(map[string]bool, len(docs))
	indexEntries := make([]*vector.Entry, 0, len(docs))
	meta := make(map[models.ChunkKey]chunkMeta)

	embed := func(ctx context.Context, text string) ([]float32, error) {
		return o.embedder.Embed(ctx, text)
	}

	for _, doc := range docs {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		seen[doc.ID] = true
		chunks := o.chunker.Chunk(doc.ID, doc.Content)
		keep := make(map[string]bool, len(chunks))
		for _, chunk := range chunks {
			fp := fingerprint.Chunk(chunk.DocumentID, chunk.ChunkIndex, chunk.Text)
			keep[fp] = true
			vec, hit, err := o.store.GetOrCompute(ctx, fp, chunk.Key(), chunk.Text, embed)
			if err != nil {
				o.logger.Warn("chunk embedding failed, skipping",
					zap.String("document", chunk.DocumentID),
					zap.Int("chunk", chunk.ChunkIndex),
					zap.Error(err))
				report.Skipped = append(report.Skipped, models.SkippedChunk{
					DocumentID: chunk.DocumentID,
					ChunkIndex: chunk.ChunkIndex,
					Reason:     err.Error(),
				})
				continue
			}
			if hit {
				report.CacheHits++
			} else {
				report.CacheMisses++
			}
			if reason := indexableVector(vec, o.embedder.Dimensions()); reason != "" {
				report.Skipped = append(report.Skipped, models.SkippedChunk{
					DocumentID: chunk.DocumentID,
					ChunkIndex: chunk.ChunkIndex,
					Reason:     reason,
				})
				continue
			}
			indexEntries = append(indexEntries, &vector.Entry{
				Key:         chunk.Key(),
				Fingerprint: fp,
				Vector:      vec,
			})
			meta[chunk.Key()] = chunkMeta{text: chunk.Text, tokenCount: chunk.TokenCount}
			report.ChunksProduced++
		}
		if _, err := o.store.PruneDocument(ctx, doc.ID, keep); err != nil {
			return nil, fmt.Errorf("failed to prune cache for %s: %w", doc.ID, err)
		}
		report.DocumentsProcessed++
	}

	cached, err := o.store.DocumentIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list cached documents: %w", err)
	}
	for _, id := range cached {
		if !seen[id] {
			if _, err := o.store.InvalidateDocument(ctx, id); err != nil {
				return nil, fmt.Errorf("failed to invalidate %s: %w", id, err)
			}
			report.DocumentsRemoved++
		}
	}

	o.stateMu.Lock()
	if err := o.index.Rebuild(ctx, indexEntries); err != nil {
		o.stateMu.Unlock()
		return nil, fmt.Errorf("failed to rebuild index: %w", err)
	}
	o.meta = meta
	o.documents = len(seen)
	o.lastIngest = time.Now()
	o.stateMu.Unlock()

	if err := o.index.Save(o.cfg.Storage.SnapshotPath); err != nil {
		o.logger.Warn("snapshot save failed", zap.Error(err))
	}

	report.Duration = time.Since(start)
	o.logger.Info("ingest complete",
		zap.String("run_id", report.RunID),
		zap.Int("documents", report.DocumentsProcessed),
		zap.Int("removed", report.DocumentsRemoved),
		zap.Int("chunks", report.ChunksProduced),
		zap.Int("cache_hits", report.CacheHits),
		zap.Int("cache_misses", report.CacheMisses),
		zap.Int("skipped", len(report.Skipped)),
		zap.Duration("duration", report.Duration))
	return report, nil
}

// Retrieve embeds the query, searches the index for the top-k chunks, and
// assembles them into a context that fits the token budget. Chunks are
// included whole in descending score order; the first chunk that would
// exceed the budget stops assembly. An empty index yields an empty result.
func (o *Orchestrator) Retrieve(ctx context.Context, query string) (*models.RetrievalResult, error) {
	start := time.Now()
	result := &models.RetrievalResult{Query: query, Chunks: []*models.ScoredChunk{}}

	queryVec, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	// Search and metadata resolution share the read lock so a concurrent
	// ingest cannot swap in new state between the two.
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()

	if o.index.Size() == 0 {
		result.QueryTime = time.Since(start).Milliseconds()
		return result, nil
	}

	hits, err := o.index.Search(ctx, queryVec, o.cfg.Retrieval.TopK)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	for _, hit := range hits {
		m, ok := o.meta[hit.Key]
		if !ok {
			o.logger.Error("indexed chunk has no metadata", zap.String("key", hit.Key.String()))
			continue
		}
		if result.TotalTokens+m.tokenCount > o.cfg.Retrieval.MaxContextTokens {
			break
		}
		result.Chunks = append(result.Chunks, &models.ScoredChunk{
			DocumentID: hit.Key.DocumentID,
			ChunkIndex: hit.Key.ChunkIndex,
			Text:       m.text,
			TokenCount: m.tokenCount,
			Score:      hit.Score,
		})
		result.TotalTokens += m.tokenCount
	}

	result.QueryTime = time.Since(start).Milliseconds()
	o.logger.Debug("retrieve",
		zap.String("query", utils.Truncate(query, 120)),
		zap.Int("chunks", len(result.Chunks)),
		zap.Int("tokens", result.TotalTokens),
		zap.Int64("ms", result.QueryTime))
	return result, nil
}

// Status reports current corpus and index counts.
func (o *Orchestrator) Status(ctx context.Context) (*Status, error) {
	count, err := o.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count cache entries: %w", err)
	}
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	s := &Status{
		Documents:    o.documents,
		Chunks:       o.index.Size(),
		CacheEntries: count,
		Dimensions:   o.embedder.Dimensions(),
		Provider:     o.cfg.Embedding.Provider,
	}
	if !o.lastIngest.IsZero() {
		s.LastIngest = o.lastIngest.UTC().Format(time.RFC3339)
	}
	return s, nil
}
