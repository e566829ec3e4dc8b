package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/omoide/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "embeddings.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestGetOrCompute_MissThenHit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := models.ChunkKey{DocumentID: "a.md", ChunkIndex: 0}

	calls := 0
	embed := func(ctx context.Context, text string) ([]float32, error) {
		calls++
		return []float32{1, 2, 3}, nil
	}

	vec, hit, err := store.GetOrCompute(ctx, "fp1", key, "hello", embed)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("first call should be a miss")
	}
	if len(vec) != 3 || vec[0] != 1 || vec[2] != 3 {
		t.Errorf("vec=%v", vec)
	}

	vec, hit, err = store.GetOrCompute(ctx, "fp1", key, "hello", embed)
	if err != nil {
		t.Fatal(err)
	}
	if !hit {
		t.Error("second call should be a hit")
	}
	if len(vec) != 3 || vec[1] != 2 {
		t.Errorf("vec=%v", vec)
	}
	if calls != 1 {
		t.Errorf("embed called %d times, want 1", calls)
	}
}

func TestGetOrCompute_EmbedFailureWritesNothing(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := models.ChunkKey{DocumentID: "a.md", ChunkIndex: 0}

	wantErr := errors.New("embedding backend down")
	_, _, err := store.GetOrCompute(ctx, "fp1", key, "hello", func(ctx context.Context, text string) ([]float32, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected embed error, got %v", err)
	}
	ok, err := store.Contains(ctx, "fp1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("failed embed must not leave a cache entry")
	}

	// A retry with the same key succeeds.
	_, hit, err := store.GetOrCompute(ctx, "fp1", key, "hello", func(ctx context.Context, text string) ([]float32, error) {
		return []float32{0.5}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Error("retry should be a miss")
	}
}

func TestPut_AtomicReplace(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	entry := &models.CacheEntry{
		Fingerprint: "fp1", DocumentID: "a.md", ChunkIndex: 0,
		ChunkText: "hello", Vector: []float32{1, 0},
	}
	if err := store.Put(ctx, entry); err != nil {
		t.Fatal(err)
	}
	entry.Vector = []float32{0, 1}
	if err := store.Put(ctx, entry); err != nil {
		t.Fatal(err)
	}

	entries, err := store.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry after replace, got %d", len(entries))
	}
	if entries[0].Vector[0] != 0 || entries[0].Vector[1] != 1 {
		t.Errorf("replaced vector = %v", entries[0].Vector)
	}
}

func TestInvalidateDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, doc := range []string{"a.md", "a.md", "b.md"} {
		entry := &models.CacheEntry{
			Fingerprint: string(rune('x' + i)), DocumentID: doc, ChunkIndex: i,
			ChunkText: "t", Vector: []float32{1},
		}
		if err := store.Put(ctx, entry); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.InvalidateDocument(ctx, "a.md")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("removed %d entries, want 2", n)
	}
	ids, err := store.DocumentIDs(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "b.md" {
		t.Errorf("remaining documents = %v", ids)
	}
}

func TestPruneDocument(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		entry := &models.CacheEntry{
			Fingerprint: string(rune('a' + i)), DocumentID: "doc", ChunkIndex: i,
			ChunkText: "t", Vector: []float32{1},
		}
		if err := store.Put(ctx, entry); err != nil {
			t.Fatal(err)
		}
	}

	n, err := store.PruneDocument(ctx, "doc", map[string]bool{"a": true, "c": true})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned %d entries, want 1", n)
	}
	entries, _ := store.All(ctx)
	if len(entries) != 2 {
		t.Errorf("expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Fingerprint == "b" {
			t.Error("pruned fingerprint still present")
		}
	}
}

func TestAll_OrderedAndRoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	put := func(fp, doc string, idx int, vec []float32) {
		t.Helper()
		if err := store.Put(ctx, &models.CacheEntry{
			Fingerprint: fp, DocumentID: doc, ChunkIndex: idx, ChunkText: "t", Vector: vec,
		}); err != nil {
			t.Fatal(err)
		}
	}
	put("f3", "b.md", 0, []float32{0.25, -1.5})
	put("f2", "a.md", 1, []float32{3})
	put("f1", "a.md", 0, []float32{-0.125})

	entries, err := store.All(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	wantOrder := []string{"f1", "f2", "f3"}
	for i, e := range entries {
		if e.Fingerprint != wantOrder[i] {
			t.Errorf("entry %d = %s, want %s", i, e.Fingerprint, wantOrder[i])
		}
	}
	if entries[2].Vector[0] != 0.25 || entries[2].Vector[1] != -1.5 {
		t.Errorf("vector round trip failed: %v", entries[2].Vector)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("Count=%d", count)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "embeddings.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, &models.CacheEntry{
		Fingerprint: "fp", DocumentID: "d", ChunkIndex: 0, ChunkText: "t", Vector: []float32{1, 2},
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	ok, err := reopened.Contains(ctx, "fp")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("entry should survive reopen")
	}
}
