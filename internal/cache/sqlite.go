package cache

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/omoide/internal/models"
)

// SQLiteStore implements Store using SQLite. Fingerprint lookups hit the
// primary key; delete-by-document uses the document_id index. WAL mode keeps
// the write path safe when multiple processes share the database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS embeddings (
		fingerprint TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		chunk_text TEXT NOT NULL,
		vector BLOB NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_embeddings_document_id ON embeddings(document_id);
	`
	_, err := db.Exec(schema)
	return err
}

// GetOrCompute returns the cached vector for fingerprint or computes,
// stores, and returns it. The embed call happens outside any transaction;
// on failure no entry is written, so a retry with the same key is safe.
func (s *SQLiteStore) GetOrCompute(ctx context.Context, fingerprint string, key models.ChunkKey, text string, embed EmbedFunc) ([]float32, bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT vector FROM embeddings WHERE fingerprint = ?`, fingerprint,
	).Scan(&blob)
	if err == nil {
		return blobToVector(blob), true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}

	vector, err := embed(ctx, text)
	if err != nil {
		return nil, false, err
	}
	entry := &models.CacheEntry{
		Fingerprint: fingerprint,
		DocumentID:  key.DocumentID,
		ChunkIndex:  key.ChunkIndex,
		ChunkText:   text,
		Vector:      vector,
	}
	if err := s.Put(ctx, entry); err != nil {
		return nil, false, err
	}
	return vector, false, nil
}

// Contains reports whether an entry exists for fingerprint.
func (s *SQLiteStore) Contains(ctx context.Context, fingerprint string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM embeddings WHERE fingerprint = ?`, fingerprint,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache lookup: %w", err)
	}
	return true, nil
}

// Put stores an entry. INSERT OR REPLACE keeps replacement atomic when the
// same fingerprint recomputes to a different vector.
func (s *SQLiteStore) Put(ctx context.Context, entry *models.CacheEntry) error {
	entry.CreatedAt = time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO embeddings (fingerprint, document_id, chunk_index, chunk_text, vector, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Fingerprint, entry.DocumentID, entry.ChunkIndex, entry.ChunkText,
		vectorToBlob(entry.Vector), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// InvalidateDocument removes every entry for documentID.
func (s *SQLiteStore) InvalidateDocument(ctx context.Context, documentID string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM embeddings WHERE document_id = ?`, documentID,
	)
	if err != nil {
		return 0, fmt.Errorf("cache invalidate: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// PruneDocument removes entries for documentID not listed in keep.
func (s *SQLiteStore) PruneDocument(ctx context.Context, documentID string, keep map[string]bool) (int64, error) {
	if len(keep) == 0 {
		return s.InvalidateDocument(ctx, documentID)
	}
	placeholders := make([]string, 0, len(keep))
	args := make([]interface{}, 0, len(keep)+1)
	args = append(args, documentID)
	for fp := range keep {
		placeholders = append(placeholders, "?")
		args = append(args, fp)
	}
	query := fmt.Sprintf(
		`DELETE FROM embeddings WHERE document_id = ? AND fingerprint NOT IN (%s)`,
		strings.Join(placeholders, ","),
	)
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cache prune: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// All returns every entry ordered by (document_id, chunk_index) so index
// rebuilds are deterministic.
func (s *SQLiteStore) All(ctx context.Context) ([]*models.CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, document_id, chunk_index, chunk_text, vector, created_at
		 FROM embeddings ORDER BY document_id, chunk_index`,
	)
	if err != nil {
		return nil, fmt.Errorf("cache scan: %w", err)
	}
	defer rows.Close()

	var entries []*models.CacheEntry
	for rows.Next() {
		var entry models.CacheEntry
		var blob []byte
		if err := rows.Scan(&entry.Fingerprint, &entry.DocumentID, &entry.ChunkIndex,
			&entry.ChunkText, &blob, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("cache scan: %w", err)
		}
		entry.Vector = blobToVector(blob)
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}

// DocumentIDs returns the distinct document IDs present in the cache.
func (s *SQLiteStore) DocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT document_id FROM embeddings ORDER BY document_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("cache scan: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("cache scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Count returns the number of entries.
func (s *SQLiteStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&count)
	return count, err
}

// Clear removes all entries.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM embeddings`)
	return err
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// vectorToBlob encodes a vector as little-endian float32 bytes.
func vectorToBlob(v []float32) []byte {
	const size = 4
	out := make([]byte, len(v)*size)
	for i, x := range v {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(x))
	}
	return out
}

// blobToVector decodes little-endian float32 bytes.
func blobToVector(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
