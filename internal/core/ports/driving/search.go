package driving

import (
	"context"

	"github.com/custodia-labs/folio/internal/core/domain"
)

// SearchService provides semantic search over indexed documents.
type SearchService interface {
	// Search returns at most topK results ordered by descending score.
	// A topK of zero or less selects the configured default.
	Search(ctx context.Context, query string, topK int) (*domain.SearchResponse, error)
}

// AnswerService answers questions grounded in retrieved passages.
type AnswerService interface {
	// Ask retrieves contexts for req.Question and, when a generation
	// provider is configured, composes an answer from them.
	// A missing provider is reported through Answer.Status, not an error.
	Ask(ctx context.Context, req domain.AskRequest) (*domain.Answer, error)

	// Configured reports whether a generation provider is available.
	Configured() bool
}
