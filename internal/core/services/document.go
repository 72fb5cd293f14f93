package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
	"github.com/custodia-labs/folio/internal/core/ports/driving"
	"github.com/custodia-labs/folio/internal/logger"
)

// Ensure DocumentService implements the interface.
var _ driving.DocumentService = (*DocumentService)(nil)

// maxYear bounds editable publication years.
const maxYear = 9999

// DocumentService manages ingested documents.
type DocumentService struct {
	store   driven.DocumentStore
	files   driven.FileStore
	indexer *Indexer
}

// NewDocumentService creates a new document service.
func NewDocumentService(store driven.DocumentStore, files driven.FileStore, indexer *Indexer) *DocumentService {
	return &DocumentService{
		store:   store,
		files:   files,
		indexer: indexer,
	}
}

// List returns all documents, newest first.
func (s *DocumentService) List(ctx context.Context, includeMeta bool) ([]domain.Document, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	if !includeMeta {
		for i := range docs {
			docs[i].Metadata = nil
		}
	}
	return docs, nil
}

// Get retrieves a document by ID.
func (s *DocumentService) Get(ctx context.Context, documentID string) (*domain.Document, error) {
	return s.store.GetDocument(ctx, documentID)
}

// Update applies a partial edit to a document's editable fields.
func (s *DocumentService) Update(ctx context.Context, documentID string, patch domain.DocumentPatch) (*domain.Document, error) {
	if patch.IsEmpty() {
		return nil, fmt.Errorf("%w: nothing to update", domain.ErrInvalidInput)
	}
	if patch.Year != nil && (*patch.Year < 0 || *patch.Year > maxYear) {
		return nil, fmt.Errorf("%w: year %d out of range", domain.ErrInvalidInput, *patch.Year)
	}
	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		patch.Title = &title
	}
	if patch.Author != nil {
		author := strings.TrimSpace(*patch.Author)
		patch.Author = &author
	}
	return s.indexer.Update(ctx, documentID, patch)
}

// Delete removes a document, its chunks and vectors, then its stored bytes.
func (s *DocumentService) Delete(ctx context.Context, documentID string) error {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	removed, err := s.indexer.Delete(ctx, documentID)
	if err != nil {
		return err
	}

	if err := s.files.Delete(ctx, doc.StorageRef); err != nil {
		logger.Warn("remove stored upload %s: %v", doc.StorageRef, err)
	}

	logger.Info("deleted %s (%d chunks)", doc.Filename, len(removed))
	return nil
}

// Open returns the original uploaded bytes. The caller closes the reader.
func (s *DocumentService) Open(ctx context.Context, documentID string) (io.ReadCloser, *domain.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.files.Open(ctx, doc.StorageRef)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", doc.Filename, err)
	}
	return rc, doc, nil
}

// Chunks returns the document's chunks in reading order.
func (s *DocumentService) Chunks(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	if _, err := s.store.GetDocument(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.GetChunks(ctx, documentID)
}

// Stats reports store and index occupancy.
func (s *DocumentService) Stats(ctx context.Context) (*driving.IndexStats, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	chunks, err := s.store.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	vec := s.indexer.Stats()

	return &driving.IndexStats{
		Documents:  len(docs),
		Chunks:     chunks,
		Vectors:    vec.Live,
		Tombstones: vec.Tombstones,
		Dimensions: vec.Dimensions,
		Signature:  vec.Signature,
	}, nil
}

// Compact rebuilds the vector index without tombstones.
func (s *DocumentService) Compact(ctx context.Context) error {
	start := time.Now()
	if err := s.indexer.Compact(ctx); err != nil {
		return err
	}
	logger.Debug("compaction took %s", time.Since(start))
	return nil
}
