// Package corpus supplies documents for ingestion.
package corpus

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/omoide/internal/models"
)

// Source supplies the full set of corpus documents for one ingest pass.
type Source interface {
	Load(ctx context.Context) ([]models.Document, error)
}

// Static is a fixed in-memory corpus. Useful for tests and embedding callers
// that already hold their documents.
type Static []models.Document

// Load returns the documents unchanged.
func (s Static) Load(ctx context.Context) ([]models.Document, error) {
	return []models.Document(s), nil
}

// DirLoader reads text documents from directories. The document ID is the
// path relative to its root (slash-separated), so the same tree produces the
// same IDs on any machine.
type DirLoader struct {
	roots      []string
	extensions []string
	logger     *zap.Logger
}

// DirLoaderOption configures a DirLoader.
type DirLoaderOption func(*DirLoader)

// WithLogger sets a logger for debug output (files loaded, files skipped).
func WithLogger(l *zap.Logger) DirLoaderOption {
	return func(d *DirLoader) { d.logger = l }
}

// NewDirLoader creates a loader over roots. extensions filters which files
// are loaded (empty = all); matching is case-insensitive.
func NewDirLoader(roots, extensions []string, opts ...DirLoaderOption) *DirLoader {
	d := &DirLoader{roots: roots, extensions: extensions}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Load walks every root and returns the matching documents sorted by ID.
// A root that does not exist is skipped with a debug log rather than
// failing the whole corpus.
func (d *DirLoader) Load(ctx context.Context) ([]models.Document, error) {
	var docs []models.Document
	for _, root := range d.roots {
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("absolute path: %w", err)
		}
		info, err := os.Stat(absRoot)
		if err != nil {
			if os.IsNotExist(err) {
				if d.logger != nil {
					d.logger.Debug("corpus root missing, skipping", zap.String("root", absRoot))
				}
				continue
			}
			return nil, fmt.Errorf("stat corpus root: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("corpus root is not a directory: %s", absRoot)
		}
		err = filepath.WalkDir(absRoot, func(path string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if entry.IsDir() {
				return nil
			}
			if !matchExtension(path, d.extensions) {
				return nil
			}
			finfo, statErr := os.Stat(path)
			if statErr != nil || !finfo.Mode().IsRegular() {
				return nil
			}
			content, readErr := os.ReadFile(path)
			if readErr != nil {
				return fmt.Errorf("read %s: %w", path, readErr)
			}
			rel, relErr := filepath.Rel(absRoot, path)
			if relErr != nil {
				return relErr
			}
			docs = append(docs, models.Document{
				ID:      filepath.ToSlash(rel),
				Content: string(content),
			})
			if d.logger != nil {
				d.logger.Debug("corpus document loaded", zap.String("id", filepath.ToSlash(rel)), zap.Int("bytes", len(content)))
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}
