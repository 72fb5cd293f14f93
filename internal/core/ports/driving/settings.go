package driving

import (
	"context"

	"github.com/custodia-labs/folio/internal/core/domain"
)

// SettingsService manages application settings.
type SettingsService interface {
	// Get retrieves current application settings, with environment
	// overrides applied.
	Get() (*domain.AppSettings, error)

	// Save persists application settings.
	Save(settings *domain.AppSettings) error

	// SetEmbeddingProvider configures the embedding provider.
	SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error

	// SetLLMProvider configures the LLM provider.
	SetLLMProvider(provider domain.AIProvider, model, apiKey string) error

	// Set stores a single dotted configuration key.
	Set(key string, value any) error

	// Validate checks the current settings.
	Validate() error

	// GetDefaults returns default settings.
	GetDefaults() domain.AppSettings

	// ValidateEmbeddingConfig pings the configured embedding provider.
	ValidateEmbeddingConfig(ctx context.Context) error

	// ValidateLLMConfig pings the configured LLM provider.
	ValidateLLMConfig(ctx context.Context) error

	// Status summarises provider configuration without secrets.
	Status() ConfigStatus
}

// ConfigStatus is the secret-free view of provider configuration.
type ConfigStatus struct {
	EmbeddingProvider string
	EmbeddingModel    string
	LLMProvider       string
	LLMModel          string
	HasLLMKey         bool
	LLMConfigured     bool
	ConfigPath        string
}
