package domain

import (
	"fmt"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderLocal is the in-process hashing embedder.
	AIProviderLocal AIProvider = "local"

	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderLocal, AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs without a network service.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderLocal || p == AIProviderOllama
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderLocal:
		return "Local (in-process, offline)"
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama or OpenAI-compatible servers).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions is the vector size. Zero means the model default.
	Dimensions int

	// ModelPath points at optional weights for the local provider.
	ModelPath string

	// BatchSize caps the number of texts per provider request.
	BatchSize int

	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// Timeout bounds a single provider attempt.
	Timeout time.Duration

	// RequestsPerSecond throttles remote calls. Zero disables throttling.
	RequestsPerSecond float64
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Provider == AIProviderAnthropic {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// Signature identifies the vector space produced by these settings.
// Indexes built under one signature cannot be searched under another.
func (e EmbeddingSettings) Signature(dimensions int) string {
	return fmt.Sprintf("%s/%s/%d", e.Provider, e.Model, dimensions)
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string

	// Timeout bounds one generation call.
	Timeout time.Duration
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() || l.Provider == AIProviderLocal {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// ChunkSettings controls how page text is windowed.
type ChunkSettings struct {
	// Size is the window length in characters.
	Size int

	// Overlap is the number of characters shared by consecutive windows.
	Overlap int
}

// SearchSettings holds retrieval configuration.
type SearchSettings struct {
	// DefaultTopK is used when a request does not specify top_k.
	DefaultTopK int

	// MaxTopK caps requested top_k.
	MaxTopK int

	// CandidateMargin multiplies top_k when over-fetching from the index.
	CandidateMargin int

	// MinCandidates is the floor for the over-fetch.
	MinCandidates int

	// SnippetLength bounds snippet size in characters.
	SnippetLength int
}

// AnswerSettings controls prompt assembly.
type AnswerSettings struct {
	// MaxHistoryTurns is how many trailing turns are kept.
	MaxHistoryTurns int

	// Instruction overrides the default grounding instruction when set.
	Instruction string
}

// IndexSettings holds vector index configuration.
type IndexSettings struct {
	// M is the HNSW neighbour count per layer.
	M int

	// EfConstruction is the candidate list size during insert.
	EfConstruction int

	// EfSearch is the minimum candidate list size during search.
	EfSearch int

	// CompactRatio is the tombstone share that triggers compaction.
	CompactRatio float64

	// CompactMinTombstones avoids compacting tiny indexes.
	CompactMinTombstones int
}

// ServerSettings configures the HTTP surface.
type ServerSettings struct {
	// Addr is the listen address.
	Addr string

	// BasePath prefixes every route, e.g. "/api".
	BasePath string

	// CORSOrigins lists allowed origins. "*" allows all.
	CORSOrigins []string

	// MaxUploadBytes caps upload bodies.
	MaxUploadBytes int64
}

// AppSettings holds all application settings.
type AppSettings struct {
	// DataDir holds the metadata database, index and uploads.
	DataDir string

	// Embedding holds embedding provider settings.
	Embedding EmbeddingSettings

	// LLM holds LLM provider settings.
	LLM LLMSettings

	// Chunking holds chunker settings.
	Chunking ChunkSettings

	// Search holds retrieval settings.
	Search SearchSettings

	// Answer holds prompt settings.
	Answer AnswerSettings

	// Index holds vector index settings.
	Index IndexSettings

	// Server holds HTTP settings.
	Server ServerSettings
}

// DefaultAppSettings returns settings with sensible defaults.
// Embeddings default to the offline local provider; the LLM is left
// unconfigured so questions return contexts only.
func DefaultAppSettings() AppSettings {
	return AppSettings{
		Embedding: EmbeddingSettings{
			Provider:   AIProviderLocal,
			Model:      DefaultEmbeddingModels()[AIProviderLocal],
			Dimensions: 384,
			BatchSize:  64,
			MaxRetries: 3,
			Timeout:    30 * time.Second,
		},
		LLM: LLMSettings{
			Timeout: 60 * time.Second,
		},
		Chunking: ChunkSettings{
			Size:    800,
			Overlap: 120,
		},
		Search: SearchSettings{
			DefaultTopK:     5,
			MaxTopK:         50,
			CandidateMargin: 10,
			MinCandidates:   50,
			SnippetLength:   400,
		},
		Answer: AnswerSettings{
			MaxHistoryTurns: 6,
		},
		Index: IndexSettings{
			M:                    16,
			EfConstruction:       200,
			EfSearch:             64,
			CompactRatio:         0.25,
			CompactMinTombstones: 64,
		},
		Server: ServerSettings{
			Addr:           ":8000",
			CORSOrigins:    []string{"*"},
			MaxUploadBytes: 50 << 20,
		},
	}
}

// Validate checks settings that would otherwise fail deep inside a component.
func (s AppSettings) Validate() error {
	if s.Chunking.Size <= 0 {
		return fmt.Errorf("%w: chunk size must be positive", ErrInvalidInput)
	}
	if s.Chunking.Overlap < 0 || s.Chunking.Overlap >= s.Chunking.Size {
		return fmt.Errorf("%w: chunk overlap must be in [0, size)", ErrInvalidInput)
	}
	if !s.Embedding.IsConfigured() {
		return fmt.Errorf("%w: embedding provider %q is not configured", ErrInvalidInput, s.Embedding.Provider)
	}
	if s.Search.DefaultTopK <= 0 || s.Search.MaxTopK < s.Search.DefaultTopK {
		return fmt.Errorf("%w: invalid top_k bounds", ErrInvalidInput)
	}
	return nil
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderLocal,
		AIProviderOllama,
		AIProviderOpenAI,
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderLocal:  "hashing-v1",
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Local
		"hashing-v1": 384,
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
	}
}
