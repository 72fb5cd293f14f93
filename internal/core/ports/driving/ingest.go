package driving

import (
	"context"

	"github.com/custodia-labs/folio/internal/core/domain"
)

// IngestService turns uploaded PDFs into searchable documents.
type IngestService interface {
	// Ingest runs an upload through extraction, chunking, embedding and
	// indexing. On failure nothing from the upload remains visible and the
	// error is a *domain.StageError.
	Ingest(ctx context.Context, upload domain.Upload) (*domain.IngestResult, error)

	// Reingest re-runs a stored document from its original bytes.
	Reingest(ctx context.Context, documentID string) (*domain.IngestResult, error)

	// ReindexAll re-ingests every stored document, e.g. after the
	// embedding provider changed. It stops at the first failure.
	ReindexAll(ctx context.Context) ([]domain.IngestResult, error)
}
