package driving

import (
	"context"
	"io"

	"github.com/custodia-labs/folio/internal/core/domain"
)

// DocumentService manages ingested documents.
type DocumentService interface {
	// List returns all documents, newest first. Metadata is omitted unless
	// includeMeta is set.
	List(ctx context.Context, includeMeta bool) ([]domain.Document, error)

	// Get retrieves a document by ID.
	Get(ctx context.Context, documentID string) (*domain.Document, error)

	// Update applies a partial edit. Unspecified fields are unchanged.
	Update(ctx context.Context, documentID string, patch domain.DocumentPatch) (*domain.Document, error)

	// Delete removes a document, its chunks, its vectors and its file.
	Delete(ctx context.Context, documentID string) error

	// Open returns the original uploaded bytes.
	Open(ctx context.Context, documentID string) (io.ReadCloser, *domain.Document, error)

	// Chunks returns the document's chunks in reading order.
	Chunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// Stats reports store and index occupancy.
	Stats(ctx context.Context) (*IndexStats, error)

	// Compact rebuilds the vector index without tombstones.
	Compact(ctx context.Context) error
}

// IndexStats summarises the stores.
type IndexStats struct {
	// Documents is the number of stored documents.
	Documents int

	// Chunks is the number of stored chunks.
	Chunks int

	// Vectors is the number of live index entries.
	Vectors int

	// Tombstones is the number of deleted entries awaiting compaction.
	Tombstones int

	// Dimensions is the vector size.
	Dimensions int

	// Signature identifies the embedding space of the index.
	Signature string
}
