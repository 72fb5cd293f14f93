// Package chunker splits extracted page text into overlapping windows.
package chunker

import (
	"iter"

	"github.com/google/uuid"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 800

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 120

var _ driven.Chunker = (*Processor)(nil)

// Processor splits pages into fixed-size, page-bounded chunks.
// Sizes are measured in runes, not bytes.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// Chunks lazily windows each page. Positions run across the whole
// document; IDs and DocumentID are left for the caller.
func (p *Processor) Chunks(pages []domain.Page) iter.Seq[domain.Chunk] {
	return func(yield func(domain.Chunk) bool) {
		position := 0
		for _, page := range pages {
			text := []rune(page.Text)
			n := len(text)
			start := 0
			for start < n {
				end := min(start+p.chunkSize, n)
				chunk := domain.Chunk{
					Position:  position,
					Page:      page.Number,
					StartChar: start,
					EndChar:   end,
					Content:   string(text[start:end]),
				}
				if !yield(chunk) {
					return
				}
				position++
				if end == n {
					break
				}
				start = end - p.overlap
			}
		}
	}
}

// Process materialises Chunks for a document, assigning fresh IDs.
func (p *Processor) Process(documentID string, pages []domain.Page) []domain.Chunk {
	//nolint:prealloc // chunk count is not known until pages are walked
	var chunks []domain.Chunk
	for chunk := range p.Chunks(pages) {
		chunk.ID = uuid.New().String()
		chunk.DocumentID = documentID
		chunks = append(chunks, chunk)
	}
	return chunks
}
