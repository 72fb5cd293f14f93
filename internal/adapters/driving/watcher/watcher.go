// Package watcher ingests PDFs dropped into an inbox directory.
//
// Events are debounced per file: a PDF is ingested once no write has been
// seen for the settle period, so partially copied files are not read.
// Each document records the file it came from, so a modified file replaces
// its earlier document instead of adding a second one.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driving"
	"github.com/custodia-labs/folio/internal/logger"
)

// DefaultSettle is how long a file must be quiet before it is ingested.
const DefaultSettle = 500 * time.Millisecond

// SourcePathKey is the document metadata key holding the watched file path.
const SourcePathKey = "source_path"

// ErrClosed is returned when Run is called on a closed watcher.
var ErrClosed = errors.New("watcher closed")

// Documents is the part of the document service used to retire the
// previous document of a modified file.
type Documents interface {
	List(ctx context.Context, includeMeta bool) ([]domain.Document, error)
	Delete(ctx context.Context, documentID string) error
}

// ResultFunc receives the outcome of each ingestion.
type ResultFunc func(path string, result *domain.IngestResult, err error)

// Option configures a Watcher.
type Option func(*Watcher)

// WithSettle overrides the debounce period.
func WithSettle(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.settle = d
		}
	}
}

// WithResultFunc registers a callback for ingestion outcomes.
func WithResultFunc(fn ResultFunc) Option {
	return func(w *Watcher) {
		w.onResult = fn
	}
}

// Watcher feeds new and modified PDFs in a directory to the ingest service.
type Watcher struct {
	dir      string
	ingest   driving.IngestService
	docs     Documents
	settle   time.Duration
	onResult ResultFunc

	mu     sync.Mutex
	closed bool
	cancel context.CancelFunc
	seeded bool
	byPath map[string]string
}

// New creates a watcher for dir. docs may be nil, in which case modified
// files are ingested without retiring their earlier documents.
func New(dir string, ingest driving.IngestService, docs Documents, opts ...Option) *Watcher {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	w := &Watcher{
		dir:    dir,
		ingest: ingest,
		docs:   docs,
		settle: DefaultSettle,
		byPath: make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Scan ingests every PDF already present in the directory.
func (w *Watcher) Scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("reading %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if e.IsDir() || !isPDF(e.Name()) {
			continue
		}
		w.ingestFile(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// Run watches the directory until ctx is cancelled or Close is called.
func (w *Watcher) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.cancel = cancel
	w.mu.Unlock()

	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("inbox path error: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("inbox path error: %s is not a directory", w.dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	logger.Info("watching %s for PDFs", w.dir)

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	pending := make(map[string]time.Time)
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if path, ok := w.handleEvent(ev); ok {
				pending[path] = time.Now()
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("watcher error: %v", err)

		case now := <-ticker.C:
			for path, last := range pending {
				if now.Sub(last) < w.settle {
					continue
				}
				delete(pending, path)
				w.ingestFile(ctx, path)
			}
		}
	}
}

// Close stops a running Run loop and rejects future calls.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	if w.cancel != nil {
		w.cancel()
	}
	return nil
}

// handleEvent returns the path to ingest for ev, if any.
// Only creates and writes of visible, regular PDF files qualify.
func (w *Watcher) handleEvent(ev fsnotify.Event) (string, bool) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return "", false
	}
	if !isPDF(filepath.Base(ev.Name)) {
		return "", false
	}
	info, err := os.Stat(ev.Name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return ev.Name, true
}

func (w *Watcher) ingestFile(ctx context.Context, path string) {
	content, err := os.ReadFile(path)
	if err != nil {
		w.report(path, nil, fmt.Errorf("reading %s: %w", path, err))
		return
	}

	w.seed(ctx)
	result, err := w.ingest.Ingest(ctx, domain.Upload{
		Filename: filepath.Base(path),
		Content:  content,
		Metadata: map[string]any{SourcePathKey: path},
	})
	if err == nil {
		w.retirePrevious(ctx, path, result.DocumentID)
	}
	w.report(path, result, err)
}

// seed loads the file-to-document map from stored metadata, once.
func (w *Watcher) seed(ctx context.Context) {
	if w.docs == nil {
		return
	}
	w.mu.Lock()
	if w.seeded {
		w.mu.Unlock()
		return
	}
	w.seeded = true
	w.mu.Unlock()

	docs, err := w.docs.List(ctx, true)
	if err != nil {
		logger.Warn("loading watched documents: %v", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range docs {
		if path, ok := docs[i].Metadata[SourcePathKey].(string); ok && path != "" {
			if _, known := w.byPath[path]; !known {
				w.byPath[path] = docs[i].ID
			}
		}
	}
}

// retirePrevious records that path now holds documentID and deletes the
// document the file held before, unless another file still holds it.
func (w *Watcher) retirePrevious(ctx context.Context, path, documentID string) {
	w.mu.Lock()
	previous, ok := w.byPath[path]
	w.byPath[path] = documentID
	shared := false
	for p, id := range w.byPath {
		if p != path && id == previous {
			shared = true
			break
		}
	}
	w.mu.Unlock()

	if !ok || previous == documentID || shared || w.docs == nil {
		return
	}
	if err := w.docs.Delete(ctx, previous); err != nil && !errors.Is(err, domain.ErrNotFound) {
		logger.Warn("retiring previous document %s of %s: %v", previous, path, err)
		return
	}
	logger.Info("%s changed: replaced document %s with %s", path, previous, documentID)
}

func (w *Watcher) report(path string, result *domain.IngestResult, err error) {
	if err != nil {
		logger.Warn("ingesting %s: %v", path, err)
	} else {
		logger.Info("ingested %s as %s", path, result.DocumentID)
	}
	if w.onResult != nil {
		w.onResult(path, result, err)
	}
}

func isPDF(name string) bool {
	return !strings.HasPrefix(name, ".") && strings.EqualFold(filepath.Ext(name), ".pdf")
}
