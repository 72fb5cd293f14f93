package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrExtraction indicates the uploaded bytes are not a readable PDF,
	// or the PDF yielded no pages.
	ErrExtraction = errors.New("extraction failed")

	// ErrEmbeddingProvider indicates the embedding provider failed after
	// retries were exhausted, or returned malformed vectors.
	ErrEmbeddingProvider = errors.New("embedding provider error")

	// ErrIndexConsistency indicates the vector index and the metadata store
	// disagree about a chunk.
	ErrIndexConsistency = errors.New("index consistency error")

	// ErrGeneration indicates the generation provider failed while a
	// credential was present.
	ErrGeneration = errors.New("generation failed")

	// ErrProviderMismatch indicates the persisted index was built with a
	// different embedding provider, model or dimensionality.
	// The index must be rebuilt before it can be used.
	ErrProviderMismatch = errors.New("embedding provider mismatch")

	// ErrLLMUnavailable indicates no generation provider is configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrAuthInvalid indicates the provider rejected the configured credential.
	ErrAuthInvalid = errors.New("authentication invalid")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// ErrorKind is a stable, transport-independent name for a failure class.
type ErrorKind string

// Stable error kinds exposed to clients.
const (
	KindExtraction        ErrorKind = "extraction_error"
	KindEmbeddingProvider ErrorKind = "embedding_provider_error"
	KindIndexConsistency  ErrorKind = "index_consistency_error"
	KindGeneration        ErrorKind = "generation_error"
	KindNotFound          ErrorKind = "not_found"
	KindInvalidInput      ErrorKind = "invalid_input"
	KindConfiguration     ErrorKind = "configuration_error"
	KindInternal          ErrorKind = "internal_error"
)

// KindOf classifies err into an ErrorKind by walking its wrap chain.
// Unrecognised errors are internal.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrExtraction):
		return KindExtraction
	case errors.Is(err, ErrEmbeddingProvider):
		return KindEmbeddingProvider
	case errors.Is(err, ErrIndexConsistency):
		return KindIndexConsistency
	case errors.Is(err, ErrGeneration):
		return KindGeneration
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrProviderMismatch):
		return KindConfiguration
	default:
		return KindInternal
	}
}
