package driven

import (
	"context"

	"github.com/custodia-labs/folio/internal/core/domain"
)

// AIConfigValidator validates AI provider configurations by testing
// connectivity to the underlying services.
type AIConfigValidator interface {
	// ValidateEmbedding pings the embedding provider described by config.
	ValidateEmbedding(ctx context.Context, config *domain.EmbeddingSettings) error

	// ValidateLLM pings the LLM provider described by config.
	// Returns nil if no LLM is configured.
	ValidateLLM(ctx context.Context, config *domain.LLMSettings) error
}
