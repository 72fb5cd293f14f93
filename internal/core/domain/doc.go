// Package domain defines the core business entities for Folio.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: An uploaded PDF with editable metadata
//   - Chunk: A page-bounded, searchable span of a document
//   - Page: Extracted text for one page
//   - SearchResult: A ranked, hydrated chunk hit
//   - Answer: The outcome of a retrieval-augmented question
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
