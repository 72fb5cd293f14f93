package domain

import "fmt"

// IngestState is a step of the ingestion state machine.
type IngestState string

// Ingestion states in the order they are reached.
// Failed may follow any other state.
const (
	IngestReceived  IngestState = "received"
	IngestExtracted IngestState = "extracted"
	IngestChunked   IngestState = "chunked"
	IngestEmbedded  IngestState = "embedded"
	IngestIndexed   IngestState = "indexed"
	IngestCommitted IngestState = "committed"
	IngestFailed    IngestState = "failed"
)

// Upload is a PDF handed to the ingestion pipeline.
type Upload struct {
	// Filename is the client-supplied name.
	Filename string

	// Content is the raw file bytes.
	Content []byte

	// Metadata is stored with the document. Its keys win over values
	// extracted from the PDF.
	Metadata map[string]any
}

// IngestResult summarises a committed ingestion.
type IngestResult struct {
	DocumentID    string
	Filename      string
	Pages         int
	ChunksIndexed int

	// Replaced is true when an existing document with identical bytes
	// was re-ingested instead of creating a new one.
	Replaced bool
}

// StageError records the state an ingestion was in when it failed.
type StageError struct {
	// State is the last state reached before the failure.
	State IngestState

	// Err is the underlying cause.
	Err error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("ingest failed after %s: %v", e.State, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
