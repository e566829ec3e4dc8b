package vector

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/omoide/internal/models"
)

// FlatIndex is an exact brute-force inner-product index. Search cost is
// O(n*d), the right trade for exactness while corpora stay in the
// thousands-of-chunks range.
type FlatIndex struct {
	dimensions   int
	keys         []models.ChunkKey
	fingerprints []string
	vectors      [][]float32
	mu           sync.RWMutex
}

// NewFlatIndex creates a flat index for vectors of the given dimension.
func NewFlatIndex(dimensions int) (*FlatIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &FlatIndex{dimensions: dimensions}, nil
}

// Add normalizes entry's vector and appends it. A zero vector returns
// ErrZeroVector; a dimension mismatch is an error.
func (f *FlatIndex) Add(ctx context.Context, entry *Entry) error {
	if len(entry.Vector) != f.dimensions {
		return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(entry.Vector), f.dimensions)
	}
	vec, err := Normalize(entry.Vector)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, entry.Key)
	f.fingerprints = append(f.fingerprints, entry.Fingerprint)
	f.vectors = append(f.vectors, vec)
	return nil
}

// Remove drops the entries with the given chunk keys.
func (f *FlatIndex) Remove(ctx context.Context, keys []models.ChunkKey) error {
	removeSet := make(map[models.ChunkKey]bool, len(keys))
	for _, k := range keys {
		removeSet[k] = true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	newKeys := f.keys[:0:0]
	newFps := f.fingerprints[:0:0]
	newVecs := f.vectors[:0:0]
	for i, k := range f.keys {
		if !removeSet[k] {
			newKeys = append(newKeys, k)
			newFps = append(newFps, f.fingerprints[i])
			newVecs = append(newVecs, f.vectors[i])
		}
	}
	f.keys, f.fingerprints, f.vectors = newKeys, newFps, newVecs
	return nil
}

// Search returns the top-k entries by inner product with the normalized
// query, in descending score order. Ties break by ascending
// (document_id, chunk_index). k larger than the index size returns
// everything; an empty index returns an empty result.
func (f *FlatIndex) Search(ctx context.Context, query []float32, k int) ([]*Result, error) {
	if len(query) != f.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), f.dimensions)
	}
	q, err := Normalize(query)
	if err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if k <= 0 || len(f.keys) == 0 {
		return nil, nil
	}
	results := make([]*Result, len(f.keys))
	for i, vec := range f.vectors {
		results[i] = &Result{
			Key:         f.keys[i],
			Fingerprint: f.fingerprints[i],
			Score:       InnerProduct(q, vec),
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Key.Less(results[j].Key)
	})
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// Rebuild replaces the index contents wholesale. Entries with zero vectors
// or wrong dimensions fail the rebuild; the previous contents are kept on
// error so readers never observe a partial state.
func (f *FlatIndex) Rebuild(ctx context.Context, entries []*Entry) error {
	keys := make([]models.ChunkKey, 0, len(entries))
	fps := make([]string, 0, len(entries))
	vecs := make([][]float32, 0, len(entries))
	for _, entry := range entries {
		if len(entry.Vector) != f.dimensions {
			return fmt.Errorf("vector dimension mismatch for %s: got %d, expected %d",
				entry.Key, len(entry.Vector), f.dimensions)
		}
		vec, err := Normalize(entry.Vector)
		if err != nil {
			return fmt.Errorf("normalize %s: %w", entry.Key, err)
		}
		keys = append(keys, entry.Key)
		fps = append(fps, entry.Fingerprint)
		vecs = append(vecs, vec)
	}
	f.mu.Lock()
	f.keys, f.fingerprints, f.vectors = keys, fps, vecs
	f.mu.Unlock()
	return nil
}

// Size returns the number of stored vectors.
func (f *FlatIndex) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.keys)
}

// Fingerprints returns the set of cache fingerprints currently indexed.
// Used to validate snapshot freshness against the cache.
func (f *FlatIndex) Fingerprints() map[string]bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]bool, len(f.fingerprints))
	for _, fp := range f.fingerprints {
		out[fp] = true
	}
	return out
}

// Close is a no-op for FlatIndex.
func (f *FlatIndex) Close() error {
	return nil
}

// Save persists the index to path. Directory is created if needed.
// Format: dimensions (4), n (4), then per entry: length-prefixed
// fingerprint and document ID, chunk index (4), and the vector
// (dimensions*4 bytes, little-endian float32).
func (f *FlatIndex) Save(path string) error {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot file: %w", err)
	}
	defer file.Close()
	if err := binary.Write(file, binary.LittleEndian, uint32(f.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, uint32(len(f.keys))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i := range f.keys {
		if err := writeString(file, f.fingerprints[i]); err != nil {
			return fmt.Errorf("write fingerprint: %w", err)
		}
		if err := writeString(file, f.keys[i].DocumentID); err != nil {
			return fmt.Errorf("write document id: %w", err)
		}
		if err := binary.Write(file, binary.LittleEndian, uint32(f.keys[i].ChunkIndex)); err != nil {
			return fmt.Errorf("write chunk index: %w", err)
		}
		if _, err := file.Write(float32SliceToBytes(f.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load reads a snapshot from path and replaces the in-memory contents.
// Dimensions must match. If the file does not exist, no error is returned
// and the index is unchanged.
func (f *FlatIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer file.Close()
	var dim, n uint32
	if err := binary.Read(file, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != f.dimensions {
		return fmt.Errorf("dimension mismatch: snapshot has %d, index expects %d", dim, f.dimensions)
	}
	if err := binary.Read(file, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	keys := make([]models.ChunkKey, 0, n)
	fps := make([]string, 0, n)
	vecs := make([][]float32, 0, n)
	buf := make([]byte, f.dimensions*4)
	for i := uint32(0); i < n; i++ {
		fp, err := readString(file)
		if err != nil {
			return fmt.Errorf("read fingerprint: %w", err)
		}
		docID, err := readString(file)
		if err != nil {
			return fmt.Errorf("read document id: %w", err)
		}
		var chunkIndex uint32
		if err := binary.Read(file, binary.LittleEndian, &chunkIndex); err != nil {
			return fmt.Errorf("read chunk index: %w", err)
		}
		if _, err := io.ReadFull(file, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		keys = append(keys, models.ChunkKey{DocumentID: docID, ChunkIndex: int(chunkIndex)})
		fps = append(fps, fp)
		vecs = append(vecs, bytesToFloat32Slice(buf))
	}
	f.mu.Lock()
	f.keys, f.fingerprints, f.vectors = keys, fps, vecs
	f.mu.Unlock()
	return nil
}

func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := w.Write([]byte(s))
	return err
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
