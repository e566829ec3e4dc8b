// Package watcher watches corpus directories with fsnotify and coalesces
// change bursts into single re-ingest triggers.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// Watcher watches corpus roots recursively and calls onChange once per burst
// of filesystem events. Ingest passes are whole-corpus, so there is one
// shared debounce timer rather than per-file state.
type Watcher struct {
	roots      []string
	extensions []string
	onChange   func()
	debounce   time.Duration
	logger     *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	timer   *time.Timer
	started bool

	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the coalescing window.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher over roots. extensions filter which file events
// count as corpus changes (empty = all); directory events always count
// because they can carry matching files.
func New(roots, extensions []string, onChange func(), opts ...Option) *Watcher {
	w := &Watcher{
		roots:      roots,
		extensions: extensions,
		onChange:   onChange,
		debounce:   defaultDebounce,
		logger:     zap.NewNop(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
// Roots that do not exist yet are created so they can be watched.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	w.logger.Debug("watcher started", zap.Strings("roots", w.roots))
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	// Capture the channels up front: Stop nils out w.watcher, and the loop
	// must keep selecting on the same channels until Close drains them.
	w.mu.Lock()
	if w.watcher == nil {
		w.mu.Unlock()
		return
	}
	events, errs := w.watcher.Events, w.watcher.Errors
	w.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	switch {
	case ev.Op.Has(fsnotify.Create), ev.Op.Has(fsnotify.Write):
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// New subdirectory: watch it and everything below it.
			w.mu.Lock()
			if w.watcher != nil {
				w.watchTreeLocked(ev.Name)
			}
			w.mu.Unlock()
			w.trigger(ev)
			return
		}
		if w.matchExtension(ev.Name) {
			w.trigger(ev)
		}
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		// Removed paths cannot be stat'ed, so removed directories pass
		// the extension filter via their contents having been watched.
		if w.matchExtension(ev.Name) || filepath.Ext(ev.Name) == "" {
			w.trigger(ev)
		}
	}
}

// trigger (re)arms the shared debounce timer.
func (w *Watcher) trigger(ev fsnotify.Event) {
	w.logger.Debug("corpus change", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.logger.Debug("corpus change settled, triggering re-ingest")
		if w.onChange != nil {
			w.onChange()
		}
	})
}

func (w *Watcher) matchExtension(path string) bool {
	if len(w.extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range w.extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		if err := os.MkdirAll(root, 0755); err != nil {
			return err
		}
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

// watchTreeLocked adds dir and its subdirectories to the watch list. Errors
// are logged and skipped; a partially watched subtree still produces events
// for what was added.
func (w *Watcher) watchTreeLocked(dir string) {
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if addErr := w.watcher.Add(path); addErr != nil {
				w.logger.Debug("failed to watch directory", zap.String("path", path), zap.Error(addErr))
			}
		}
		return nil
	})
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
