package domain

import "time"

// Document represents an uploaded PDF and its editable metadata.
// A committed document always owns at least one chunk.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Filename is the original upload filename.
	Filename string

	// StorageRef is the opaque reference to the stored bytes.
	StorageRef string

	// Pages is the number of pages reported by extraction.
	Pages int

	// SHA256 is the hex digest of the uploaded bytes.
	// Re-uploading identical bytes re-ingests the same document.
	SHA256 string

	// Title is the user-editable title.
	Title string

	// Author is the user-editable author.
	Author string

	// Year is the user-editable publication year.
	Year *int

	// Metadata contains extracted and user-supplied key-value pairs.
	Metadata map[string]any

	// UploadedAt is when the document was first ingested.
	UploadedAt time.Time

	// UpdatedAt is when the document was last ingested or edited.
	UpdatedAt time.Time
}

// DisplayName returns the title when set, otherwise the filename.
func (d *Document) DisplayName() string {
	if d.Title != "" {
		return d.Title
	}
	return d.Filename
}

// Chunk represents a searchable span of a single page.
// Chunks never span pages and are immutable once committed.
type Chunk struct {
	// ID is the unique identifier for the chunk.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Position is the ordinal position within the document, in reading order.
	Position int

	// Page is the 1-based page the chunk was cut from.
	Page int

	// StartChar is the rune offset of the chunk within its page.
	StartChar int

	// EndChar is the exclusive rune offset of the chunk end.
	EndChar int

	// Content is the text content of this chunk.
	Content string

	// Embedding is the vector representation for semantic search.
	Embedding []float32
}

// Page is the extracted text of one PDF page.
type Page struct {
	// Number is the 1-based page number.
	Number int

	// Text is the cleaned page text. Empty for pages without a text layer.
	Text string
}

// Extraction is the result of reading a PDF.
type Extraction struct {
	// Pages are ordered, contiguous and 1-based.
	Pages []Page

	// Metadata holds properties read from the PDF (title, author, dates, producer).
	Metadata map[string]any
}

// DocumentPatch holds the editable fields of a document.
// Nil fields are left unchanged.
type DocumentPatch struct {
	Title  *string
	Author *string
	Year   *int

	// Metadata keys are merged into the existing metadata.
	// A nil value removes the key.
	Metadata map[string]any
}

// IsEmpty reports whether the patch changes nothing.
func (p DocumentPatch) IsEmpty() bool {
	return p.Title == nil && p.Author == nil && p.Year == nil && len(p.Metadata) == 0
}

// Apply writes the patch onto doc and stamps UpdatedAt.
func (p DocumentPatch) Apply(doc *Document, now time.Time) {
	if p.Title != nil {
		doc.Title = *p.Title
	}
	if p.Author != nil {
		doc.Author = *p.Author
	}
	if p.Year != nil {
		year := *p.Year
		doc.Year = &year
	}
	if len(p.Metadata) > 0 {
		if doc.Metadata == nil {
			doc.Metadata = make(map[string]any, len(p.Metadata))
		}
		for k, v := range p.Metadata {
			if v == nil {
				delete(doc.Metadata, k)
				continue
			}
			doc.Metadata[k] = v
		}
	}
	doc.UpdatedAt = now
}
