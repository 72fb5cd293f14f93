package driven

import (
	"context"

	"github.com/custodia-labs/folio/internal/core/domain"
)

// DocumentStore persists documents and chunks.
// Backed by SQLite for metadata storage.
type DocumentStore interface {
	// CommitDocument atomically upserts doc and replaces its chunk set with
	// chunks. Returns the IDs of chunks from the previous generation.
	// An empty chunk set is rejected with domain.ErrInvalidInput.
	CommitDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]string, error)

	// GetDocument retrieves a document by ID.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// FindBySHA256 retrieves the document whose bytes hash to sum.
	FindBySHA256(ctx context.Context, sum string) (*domain.Document, error)

	// UpdateDocument applies patch to the editable fields of a document.
	UpdateDocument(ctx context.Context, id string, patch domain.DocumentPatch) (*domain.Document, error)

	// DeleteDocument removes a document and its chunks.
	// Returns the IDs of the removed chunks.
	DeleteDocument(ctx context.Context, id string) ([]string, error)

	// ListDocuments returns all documents, newest upload first.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// GetChunks retrieves all chunks for a document in position order.
	GetChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// GetChunksByIDs retrieves the chunks that still exist among ids.
	// Missing IDs are skipped, not reported as errors.
	GetChunksByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error)

	// ListChunkIDs returns every stored chunk ID.
	ListChunkIDs(ctx context.Context) ([]string, error)

	// CountChunks returns the number of stored chunks.
	CountChunks(ctx context.Context) (int, error)

	// Close releases resources.
	Close() error
}
