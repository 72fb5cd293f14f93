package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
// Values are copied in and out so callers never share state with the store.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	chunks    map[string][]domain.Chunk
	chunkDoc  map[string]string

	// now is swapped in tests.
	now func() time.Time
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]domain.Document),
		chunks:    make(map[string][]domain.Chunk),
		chunkDoc:  make(map[string]string),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CommitDocument upserts doc and replaces its chunks.
func (s *DocumentStore) CommitDocument(_ context.Context, doc *domain.Document, chunks []domain.Chunk) ([]string, error) {
	if doc == nil || doc.ID == "" {
		return nil, fmt.Errorf("%w: document id is required", domain.ErrInvalidInput)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document %s has no chunks", domain.ErrInvalidInput, doc.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if c.DocumentID != doc.ID {
			return nil, fmt.Errorf("%w: chunk %s belongs to %s, not %s",
				domain.ErrInvalidInput, c.ID, c.DocumentID, doc.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate chunk %s", domain.ErrInvalidInput, c.ID)
		}
		if owner, ok := s.chunkDoc[c.ID]; ok && owner != doc.ID {
			return nil, fmt.Errorf("%w: chunk %s already stored", domain.ErrInvalidInput, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	for id, other := range s.documents {
		if id != doc.ID && other.SHA256 != "" && other.SHA256 == doc.SHA256 {
			return nil, fmt.Errorf("%w: content already stored as %s", domain.ErrInvalidInput, id)
		}
	}

	now := s.now()
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}

	retired := make([]string, 0, len(s.chunks[doc.ID]))
	for _, c := range s.chunks[doc.ID] {
		retired = append(retired, c.ID)
		delete(s.chunkDoc, c.ID)
	}

	s.documents[doc.ID] = copyDocument(*doc)
	stored := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		c.Embedding = slices.Clone(c.Embedding)
		stored[i] = c
		s.chunkDoc[c.ID] = doc.ID
	}
	sort.SliceStable(stored, func(i, j int) bool { return stored[i].Position < stored[j].Position })
	s.chunks[doc.ID] = stored

	return retired, nil
}

// GetDocument retrieves a document by ID.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc = copyDocument(doc)
	return &doc, nil
}

// FindBySHA256 retrieves a document by content digest.
func (s *DocumentStore) FindBySHA256(_ context.Context, sum string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, doc := range s.documents {
		if doc.SHA256 == sum {
			doc = copyDocument(doc)
			return &doc, nil
		}
	}
	return nil, domain.ErrNotFound
}

// UpdateDocument applies patch to a stored document.
func (s *DocumentStore) UpdateDocument(_ context.Context, id string, patch domain.DocumentPatch) (*domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc = copyDocument(doc)
	patch.Apply(&doc, s.now())
	s.documents[id] = doc

	out := copyDocument(doc)
	return &out, nil
}

// DeleteDocument removes a document and its chunks.
func (s *DocumentStore) DeleteDocument(_ context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; !ok {
		return nil, domain.ErrNotFound
	}
	ids := make([]string, 0, len(s.chunks[id]))
	for _, c := range s.chunks[id] {
		ids = append(ids, c.ID)
		delete(s.chunkDoc, c.ID)
	}
	delete(s.documents, id)
	delete(s.chunks, id)
	return ids, nil
}

// ListDocuments returns all documents, newest upload first.
func (s *DocumentStore) ListDocuments(_ context.Context) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.Document, 0, len(s.documents))
	for _, doc := range s.documents {
		result = append(result, copyDocument(doc))
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].UploadedAt.Equal(result[j].UploadedAt) {
			return result[i].UploadedAt.After(result[j].UploadedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// GetChunks retrieves all chunks for a document.
func (s *DocumentStore) GetChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.chunks[documentID]), nil
}

// GetChunksByIDs retrieves existing chunks among ids, in the order given.
func (s *DocumentStore) GetChunksByIDs(_ context.Context, ids []string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		docID, ok := s.chunkDoc[id]
		if !ok {
			continue
		}
		for _, c := range s.chunks[docID] {
			if c.ID == id {
				out = append(out, c)
				break
			}
		}
	}
	return out, nil
}

// ListChunkIDs returns every stored chunk ID.
func (s *DocumentStore) ListChunkIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := slices.Collect(maps.Keys(s.chunkDoc))
	sort.Strings(ids)
	return ids, nil
}

// CountChunks returns the number of stored chunks.
func (s *DocumentStore) CountChunks(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunkDoc), nil
}

// Close releases resources.
func (s *DocumentStore) Close() error {
	return nil
}

func copyDocument(doc domain.Document) domain.Document {
	doc.Metadata = maps.Clone(doc.Metadata)
	if doc.Year != nil {
		y := *doc.Year
		doc.Year = &y
	}
	return doc
}
