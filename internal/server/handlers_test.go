package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/omoide/internal/cache"
	"github.com/hyperjump/omoide/internal/config"
	"github.com/hyperjump/omoide/internal/corpus"
	"github.com/hyperjump/omoide/internal/embedding"
	"github.com/hyperjump/omoide/internal/models"
	"github.com/hyperjump/omoide/internal/retriever"
	"github.com/hyperjump/omoide/internal/vector"
)

const testDims = 8

func newTestServer(t *testing.T, source corpus.Source) *Server {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Server: config.ServerConfig{Host: "localhost", Port: 0},
		Storage: config.StorageConfig{
			CachePath:    filepath.Join(dir, "cache.db"),
			SnapshotPath: filepath.Join(dir, "index.snapshot"),
		},
		Embedding: config.EmbeddingConfig{Provider: "mock", Dimensions: testDims},
		Retrieval: config.RetrievalConfig{
			ChunkSize:        16,
			ChunkOverlap:     4,
			TopK:             3,
			MaxContextTokens: 200,
		},
	}
	store, err := cache.NewSQLiteStore(cfg.Storage.CachePath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	index, err := vector.NewFlatIndex(testDims)
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}
	ret, err := retriever.New(cfg, store, embedding.NewMockEmbedder(testDims), index, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create retriever: %v", err)
	}
	return NewServer(ret, source, &cfg.Server, zap.NewNop())
}

func testSource() corpus.Static {
	return corpus.Static{
		{ID: "weather.md", Content: "heavy rain is expected across the coast tonight"},
		{ID: "sports.md", Content: "the home team won the final in overtime"},
	}
}

func doRequest(t *testing.T, handler http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(t, testSource())
	rec := doRequest(t, srv.Router(), http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleIngestThenRetrieve(t *testing.T) {
	srv := newTestServer(t, testSource())
	router := srv.Router()

	rec := doRequest(t, router, http.MethodPost, "/api/v1/ingest", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("ingest: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var report models.IngestReport
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.DocumentsProcessed != 2 {
		t.Errorf("expected 2 documents, got %d", report.DocumentsProcessed)
	}

	rec = doRequest(t, router, http.MethodPost, "/api/v1/retrieve",
		retrieveRequest{Query: "heavy rain is expected across the coast tonight"})
	if rec.Code != http.StatusOK {
		t.Fatalf("retrieve: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var result models.RetrievalResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if len(result.Chunks) == 0 {
		t.Fatal("expected chunks in retrieval result")
	}
	if result.Chunks[0].DocumentID != "weather.md" {
		t.Errorf("expected weather.md first, got %s", result.Chunks[0].DocumentID)
	}
}

func TestHandleRetrieveEmptyQuery(t *testing.T) {
	srv := newTestServer(t, testSource())
	rec := doRequest(t, srv.Router(), http.MethodPost, "/api/v1/retrieve", retrieveRequest{Query: "  "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleRetrieveBadBody(t *testing.T) {
	srv := newTestServer(t, testSource())
	req := httptest.NewRequest(http.MethodPost, "/api/v1/retrieve", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	srv := newTestServer(t, testSource())
	router := srv.Router()

	if rec := doRequest(t, router, http.MethodPost, "/api/v1/ingest", nil); rec.Code != http.StatusOK {
		t.Fatalf("ingest failed: %d", rec.Code)
	}
	rec := doRequest(t, router, http.MethodGet, "/api/v1/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status retriever.Status
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.Documents != 2 {
		t.Errorf("expected 2 documents, got %d", status.Documents)
	}
	if status.Dimensions != testDims {
		t.Errorf("expected dimensions %d, got %d", testDims, status.Dimensions)
	}
}
