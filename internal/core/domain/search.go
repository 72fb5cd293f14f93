package domain

// DocumentSummary is the slice of a Document returned with search hits.
type DocumentSummary struct {
	ID       string
	Filename string
	Title    string
	Author   string
	Year     *int
}

// Summarise returns the summary view of d.
func (d *Document) Summarise() DocumentSummary {
	return DocumentSummary{
		ID:       d.ID,
		Filename: d.Filename,
		Title:    d.Title,
		Author:   d.Author,
		Year:     d.Year,
	}
}

// SearchResult represents a single search hit.
type SearchResult struct {
	// Score is the cosine similarity between the query and the chunk.
	Score float64

	// Document summarises the owning document.
	Document DocumentSummary

	// Page is the page the chunk was cut from.
	Page int

	// ChunkID identifies the matched chunk.
	ChunkID string

	// Snippet is a bounded excerpt of the chunk text.
	Snippet string

	// Content is the full chunk text, used as answer context.
	Content string
}

// SearchResponse is the outcome of a query.
type SearchResponse struct {
	// Results are ordered by descending score. Never padded.
	Results []SearchResult

	// Note explains an empty result, e.g. an empty index.
	Note string
}
