package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"maps"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
	"github.com/custodia-labs/folio/internal/core/ports/driving"
	"github.com/custodia-labs/folio/internal/logger"
)

// Ensure IngestService implements the interface.
var _ driving.IngestService = (*IngestService)(nil)

// IngestService runs uploads through extraction, chunking, embedding and
// indexing. Network and CPU work happens outside the Indexer lock, so
// distinct uploads proceed in parallel until their commit.
type IngestService struct {
	extractor driven.Extractor
	chunker   driven.Chunker
	embedder  driven.EmbeddingService
	files     driven.FileStore
	store     driven.DocumentStore
	indexer   *Indexer

	// Uploads with identical bytes are serialised so they resolve to one document.
	shaLocks keyedMutex

	now   func() time.Time
	newID func() string
}

// NewIngestService creates a new ingestion service.
func NewIngestService(
	extractor driven.Extractor,
	chunker driven.Chunker,
	embedder driven.EmbeddingService,
	files driven.FileStore,
	store driven.DocumentStore,
	indexer *Indexer,
) *IngestService {
	return &IngestService{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		files:     files,
		store:     store,
		indexer:   indexer,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Ingest stores and indexes an uploaded PDF. Identical bytes re-ingest the
// existing document, keeping its ID and edited fields.
func (s *IngestService) Ingest(ctx context.Context, upload domain.Upload) (*domain.IngestResult, error) {
	if err := validateUpload(upload); err != nil {
		return nil, &domain.StageError{State: domain.IngestReceived, Err: err}
	}

	digest := sha256.Sum256(upload.Content)
	sum := hex.EncodeToString(digest[:])

	unlock := s.shaLocks.lock(sum)
	defer unlock()

	existing, err := s.store.FindBySHA256(ctx, sum)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, &domain.StageError{State: domain.IngestReceived, Err: fmt.Errorf("look up digest: %w", err)}
	}

	ref, err := s.files.Put(ctx, upload.Filename, upload.Content)
	if err != nil {
		return nil, &domain.StageError{State: domain.IngestReceived, Err: fmt.Errorf("store upload: %w", err)}
	}

	filename := filepath.Base(upload.Filename)
	now := s.now().UTC()

	var result *domain.IngestResult
	if existing != nil {
		var previousRef string
		result, err = s.replace(ctx, existing.ID, upload.Content, func(doc *domain.Document) {
			previousRef = doc.StorageRef
			doc.Filename = filename
			doc.StorageRef = ref
			doc.UpdatedAt = now
			if len(upload.Metadata) > 0 {
				doc.Metadata = mergeMetadata(doc.Metadata, upload.Metadata)
			}
		})
		switch {
		case err == nil:
			s.removePrevious(ctx, previousRef, ref)
		case errors.Is(err, domain.ErrNotFound):
			// Deleted while this upload was processed; store it afresh.
			logger.Debug("%s was deleted during re-upload, ingesting as new", existing.ID)
			result, err = nil, nil
		}
	}
	if result == nil && err == nil {
		result, err = s.create(ctx, &domain.Document{
			ID:         s.newID(),
			Filename:   filename,
			StorageRef: ref,
			SHA256:     sum,
			Metadata:   maps.Clone(upload.Metadata),
			UploadedAt: now,
			UpdatedAt:  now,
		}, upload.Content)
	}
	if err != nil {
		if delErr := s.files.Delete(context.WithoutCancel(ctx), ref); delErr != nil {
			logger.Warn("remove stored upload %s: %v", ref, delErr)
		}
		return nil, err
	}

	logger.Info("ingested %s: %d pages, %d chunks (replaced=%t)",
		result.Filename, result.Pages, result.ChunksIndexed, result.Replaced)
	return result, nil
}

// Reingest re-runs a stored document from its original bytes. A document
// deleted while it is being re-ingested stays deleted and
// domain.ErrNotFound is returned.
func (s *IngestService) Reingest(ctx context.Context, documentID string) (*domain.IngestResult, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	rc, err := s.files.Open(ctx, doc.StorageRef)
	if err != nil {
		return nil, &domain.StageError{State: domain.IngestReceived, Err: fmt.Errorf("open stored upload: %w", err)}
	}
	content, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		return nil, &domain.StageError{State: domain.IngestReceived, Err: fmt.Errorf("read stored upload: %w", err)}
	}

	now := s.now().UTC()
	result, err := s.replace(ctx, documentID, content, func(current *domain.Document) {
		current.UpdatedAt = now
	})
	if err != nil {
		return nil, err
	}

	logger.Info("re-ingested %s: %d chunks", result.Filename, result.ChunksIndexed)
	return result, nil
}

// ReindexAll re-ingests every stored document, skipping any deleted while
// it runs. It stops at the first failure and returns the results gathered
// so far.
func (s *IngestService) ReindexAll(ctx context.Context) ([]domain.IngestResult, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}

	results := make([]domain.IngestResult, 0, len(docs))
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := s.Reingest(ctx, docs[i].ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return results, fmt.Errorf("reindex %s: %w", docs[i].Filename, err)
		}
		results = append(results, *result)
	}
	return results, nil
}

// create indexes a new document. The stored bytes must already be
// referenced by doc.StorageRef.
func (s *IngestService) create(ctx context.Context, doc *domain.Document, content []byte) (*domain.IngestResult, error) {
	extraction, chunks, err := s.prepare(ctx, doc.ID, doc.Filename, content)
	if err != nil {
		return nil, err
	}
	applyExtraction(doc, extraction)

	if _, err := s.indexer.Commit(ctx, doc, chunks); err != nil {
		return nil, err
	}
	return ingestResult(doc, len(chunks), false), nil
}

// replace indexes content as the new generation of an existing document.
// update runs on the document as re-read under the writer lock.
func (s *IngestService) replace(
	ctx context.Context,
	documentID string,
	content []byte,
	update func(*domain.Document),
) (*domain.IngestResult, error) {
	extraction, chunks, err := s.prepare(ctx, documentID, documentID, content)
	if err != nil {
		return nil, err
	}

	doc, _, err := s.indexer.Replace(ctx, documentID, chunks, func(current *domain.Document) {
		update(current)
		applyExtraction(current, extraction)
	})
	if err != nil {
		return nil, err
	}
	return ingestResult(doc, len(chunks), true), nil
}

// prepare extracts, chunks and embeds content. Nothing is written.
func (s *IngestService) prepare(
	ctx context.Context,
	documentID, name string,
	content []byte,
) (*domain.Extraction, []domain.Chunk, error) {
	extraction, err := s.extractor.Extract(ctx, content)
	if err != nil {
		return nil, nil, &domain.StageError{State: domain.IngestReceived, Err: err}
	}
	if len(extraction.Pages) == 0 {
		return nil, nil, &domain.StageError{
			State: domain.IngestReceived,
			Err:   fmt.Errorf("%w: document has no pages", domain.ErrExtraction),
		}
	}

	var chunks []domain.Chunk
	for c := range s.chunker.Chunks(extraction.Pages) {
		c.ID = s.newID()
		c.DocumentID = documentID
		c.Position = len(chunks)
		chunks = append(chunks, c)
	}
	if len(chunks) == 0 {
		return nil, nil, &domain.StageError{
			State: domain.IngestExtracted,
			Err:   fmt.Errorf("%w: no extractable text in %d pages", domain.ErrExtraction, len(extraction.Pages)),
		}
	}
	logger.Debug("%s: %d pages, %d chunks", name, len(extraction.Pages), len(chunks))

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if !errors.Is(err, domain.ErrEmbeddingProvider) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingProvider, err)
		}
		return nil, nil, &domain.StageError{State: domain.IngestChunked, Err: err}
	}
	if len(vectors) != len(chunks) {
		return nil, nil, &domain.StageError{
			State: domain.IngestChunked,
			Err: fmt.Errorf("%w: got %d vectors for %d chunks",
				domain.ErrEmbeddingProvider, len(vectors), len(chunks)),
		}
	}
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
	}
	return extraction, chunks, nil
}

func ingestResult(doc *domain.Document, chunks int, replaced bool) *domain.IngestResult {
	return &domain.IngestResult{
		DocumentID:    doc.ID,
		Filename:      doc.Filename,
		Pages:         doc.Pages,
		ChunksIndexed: chunks,
		Replaced:      replaced,
	}
}

// removePrevious deletes the bytes of a replaced upload.
func (s *IngestService) removePrevious(ctx context.Context, previous, current string) {
	if previous == "" || previous == current {
		return
	}
	if err := s.files.Delete(ctx, previous); err != nil {
		logger.Warn("remove replaced upload %s: %v", previous, err)
	}
}

func validateUpload(upload domain.Upload) error {
	name := filepath.Base(strings.TrimSpace(upload.Filename))
	if name == "" || name == "." || name == "/" {
		return fmt.Errorf("%w: missing filename", domain.ErrInvalidInput)
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return fmt.Errorf("%w: only PDF files are supported: %s", domain.ErrInvalidInput, name)
	}
	if len(upload.Content) == 0 {
		return fmt.Errorf("%w: empty upload", domain.ErrInvalidInput)
	}
	return nil
}

// mergeMetadata layers user-held values over freshly extracted ones.
func mergeMetadata(extracted, held map[string]any) map[string]any {
	merged := make(map[string]any, len(extracted)+len(held))
	maps.Copy(merged, extracted)
	maps.Copy(merged, held)
	return merged
}

// applyExtraction records page count and PDF properties on doc. Values the
// user already holds win over extracted ones.
func applyExtraction(doc *domain.Document, extraction *domain.Extraction) {
	doc.Pages = len(extraction.Pages)
	doc.Metadata = mergeMetadata(extraction.Metadata, doc.Metadata)
	applyExtractedFields(doc, extraction.Metadata)
}

// applyExtractedFields fills empty editable fields from PDF properties.
func applyExtractedFields(doc *domain.Document, meta map[string]any) {
	if doc.Title == "" {
		if title, ok := meta["title"].(string); ok {
			doc.Title = strings.TrimSpace(title)
		}
	}
	if doc.Author == "" {
		if author, ok := meta["author"].(string); ok {
			doc.Author = strings.TrimSpace(author)
		}
	}
}

// keyedMutex hands out one lock per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
