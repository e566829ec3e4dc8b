package vector

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/hyperjump/omoide/internal/models"
)

func key(doc string, idx int) models.ChunkKey {
	return models.ChunkKey{DocumentID: doc, ChunkIndex: idx}
}

func TestFlatIndex_AddSearch(t *testing.T) {
	idx, err := NewFlatIndex(3)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ctx := context.Background()

	entries := []*Entry{
		{Key: key("a", 0), Fingerprint: "fa", Vector: []float32{1, 0, 0}},
		{Key: key("b", 0), Fingerprint: "fb", Vector: []float32{0.9, 0.1, 0}},
		{Key: key("c", 0), Fingerprint: "fc", Vector: []float32{0, 1, 0}},
	}
	for _, e := range entries {
		if err := idx.Add(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	if idx.Size() != 3 {
		t.Errorf("Size=%d", idx.Size())
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Key != key("a", 0) {
		t.Errorf("top result = %s", results[0].Key)
	}
	if math.Abs(results[0].Score-1.0) > 1e-6 {
		t.Errorf("exact match score = %f, want 1.0", results[0].Score)
	}
	if results[0].Score < results[1].Score {
		t.Error("results out of descending order")
	}
}

func TestFlatIndex_SearchNormalizesInputs(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	ctx := context.Background()
	// Stored vector is not unit length; Add normalizes it.
	if err := idx.Add(ctx, &Entry{Key: key("a", 0), Vector: []float32{3, 4}}); err != nil {
		t.Fatal(err)
	}
	// Query is scaled arbitrarily; score must still be cosine similarity.
	results, err := idx.Search(ctx, []float32{30, 40}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(results[0].Score-1.0) > 1e-6 {
		t.Errorf("score = %f, want 1.0", results[0].Score)
	}
}

func TestFlatIndex_SearchEmptyAndOversizedK(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	ctx := context.Background()

	results, err := idx.Search(ctx, []float32{1, 0}, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("empty index should return no results, got %d", len(results))
	}

	_ = idx.Add(ctx, &Entry{Key: key("a", 0), Vector: []float32{1, 0}})
	_ = idx.Add(ctx, &Entry{Key: key("b", 0), Vector: []float32{0, 1}})
	results, err = idx.Search(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Errorf("k beyond size should return all vectors, got %d", len(results))
	}
}

func TestFlatIndex_TieBreakDeterministic(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	ctx := context.Background()
	// Insert identical vectors in shuffled key order; ties must come back
	// ordered by (document_id, chunk_index).
	for _, e := range []*Entry{
		{Key: key("b", 0), Vector: []float32{1, 0}},
		{Key: key("a", 1), Vector: []float32{1, 0}},
		{Key: key("a", 0), Vector: []float32{1, 0}},
	} {
		if err := idx.Add(ctx, e); err != nil {
			t.Fatal(err)
		}
	}
	results, err := idx.Search(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	want := []models.ChunkKey{key("a", 0), key("a", 1), key("b", 0)}
	for i, r := range results {
		if r.Key != want[i] {
			t.Errorf("result %d = %s, want %s", i, r.Key, want[i])
		}
	}
}

func TestFlatIndex_NegativeScoresNotClamped(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, &Entry{Key: key("a", 0), Vector: []float32{-1, 0}})
	results, err := idx.Search(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(results[0].Score-(-1.0)) > 1e-6 {
		t.Errorf("score = %f, want -1.0", results[0].Score)
	}
}

func TestFlatIndex_ZeroVectorRejected(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	ctx := context.Background()
	if err := idx.Add(ctx, &Entry{Key: key("a", 0), Vector: []float32{0, 0}}); !errors.Is(err, ErrZeroVector) {
		t.Errorf("expected ErrZeroVector, got %v", err)
	}
	_ = idx.Add(ctx, &Entry{Key: key("a", 0), Vector: []float32{1, 0}})
	if _, err := idx.Search(ctx, []float32{0, 0}, 1); !errors.Is(err, ErrZeroVector) {
		t.Errorf("zero query should fail, got %v", err)
	}
}

func TestFlatIndex_Remove(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, &Entry{Key: key("a", 0), Fingerprint: "fa", Vector: []float32{1, 0}})
	_ = idx.Add(ctx, &Entry{Key: key("b", 0), Fingerprint: "fb", Vector: []float32{0, 1}})
	if err := idx.Remove(ctx, []models.ChunkKey{key("a", 0)}); err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 1 {
		t.Errorf("expected size 1, got %d", idx.Size())
	}
	fps := idx.Fingerprints()
	if fps["fa"] || !fps["fb"] {
		t.Errorf("fingerprints after remove = %v", fps)
	}
}

func TestFlatIndex_Rebuild(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	ctx := context.Background()
	_ = idx.Add(ctx, &Entry{Key: key("old", 0), Vector: []float32{1, 0}})

	err := idx.Rebuild(ctx, []*Entry{
		{Key: key("x", 0), Fingerprint: "fx", Vector: []float32{0, 2}},
		{Key: key("y", 0), Fingerprint: "fy", Vector: []float32{5, 0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if idx.Size() != 2 {
		t.Fatalf("Size=%d after rebuild", idx.Size())
	}
	results, _ := idx.Search(ctx, []float32{1, 0}, 1)
	if results[0].Key != key("y", 0) {
		t.Errorf("top result = %s", results[0].Key)
	}

	// A failing rebuild keeps previous contents.
	err = idx.Rebuild(ctx, []*Entry{{Key: key("bad", 0), Vector: []float32{0, 0}}})
	if !errors.Is(err, ErrZeroVector) {
		t.Fatalf("expected ErrZeroVector, got %v", err)
	}
	if idx.Size() != 2 {
		t.Errorf("failed rebuild must not clobber the index, Size=%d", idx.Size())
	}
}

func TestFlatIndex_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	ctx := context.Background()

	idx, _ := NewFlatIndex(3)
	_ = idx.Add(ctx, &Entry{Key: key("doc.md", 2), Fingerprint: "fp2", Vector: []float32{0, 0, 1}})
	_ = idx.Add(ctx, &Entry{Key: key("doc.md", 0), Fingerprint: "fp0", Vector: []float32{1, 0, 0}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}

	loaded, _ := NewFlatIndex(3)
	if err := loaded.Load(path); err != nil {
		t.Fatal(err)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded Size=%d", loaded.Size())
	}
	fps := loaded.Fingerprints()
	if !fps["fp0"] || !fps["fp2"] {
		t.Errorf("loaded fingerprints = %v", fps)
	}
	results, err := loaded.Search(ctx, []float32{0, 0, 1}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Key != key("doc.md", 2) {
		t.Errorf("top result = %s", results[0].Key)
	}
	if math.Abs(results[0].Score-1.0) > 1e-6 {
		t.Errorf("score = %f", results[0].Score)
	}
}

func TestFlatIndex_LoadMissingFileIsNoop(t *testing.T) {
	idx, _ := NewFlatIndex(2)
	if err := idx.Load(filepath.Join(t.TempDir(), "nope.bin")); err != nil {
		t.Errorf("missing snapshot should not error: %v", err)
	}
	if idx.Size() != 0 {
		t.Errorf("Size=%d", idx.Size())
	}
}

func TestFlatIndex_LoadDimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	ctx := context.Background()
	idx, _ := NewFlatIndex(2)
	_ = idx.Add(ctx, &Entry{Key: key("a", 0), Vector: []float32{1, 0}})
	if err := idx.Save(path); err != nil {
		t.Fatal(err)
	}
	other, _ := NewFlatIndex(3)
	if err := other.Load(path); err == nil {
		t.Error("dimension mismatch should fail load")
	}
}
