// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
// These must be provided for the application to function:
//
//   - Extractor: Reads page text and metadata from PDF bytes
//   - Chunker: Splits pages into overlapping windows
//   - EmbeddingService: Generates vector embeddings (local or remote)
//   - VectorIndex: Approximate nearest neighbour search with tombstones
//   - DocumentStore: Document and chunk persistence
//   - FileStore: Raw upload storage
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - LLMService: Language model chat. Without it, questions return retrieved
//     contexts only.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
