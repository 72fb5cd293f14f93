package driven

import (
	"context"
	"iter"

	"github.com/custodia-labs/folio/internal/core/domain"
)

// Extractor reads page text from PDF bytes.
type Extractor interface {
	// Extract returns ordered, 1-based, contiguous pages plus PDF metadata.
	// Pages without a text layer are returned with empty text.
	// Returns domain.ErrExtraction for unreadable input or zero pages.
	Extract(ctx context.Context, content []byte) (*domain.Extraction, error)
}

// Chunker splits page text into overlapping windows.
type Chunker interface {
	// Chunks lazily yields chunks for pages in reading order.
	// Chunks never span pages and carry no ID or embedding yet.
	Chunks(pages []domain.Page) iter.Seq[domain.Chunk]
}
