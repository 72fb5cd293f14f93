package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/folio/internal/core/domain"
)

const (
	// uriScheme is the custom URI scheme for Folio resources.
	uriScheme = "folio://"

	textSuffix = "/text"
)

// registerResources registers document resources when a document
// service is available.
func (s *Server) registerResources() {
	if s.ports.Document == nil {
		return
	}

	s.server.AddResource(&mcp.Resource{
		URI:         uriScheme + "documents",
		Name:        "documents",
		Description: "All indexed PDFs, newest first",
		MIMEType:    "application/json",
	}, s.handleDocumentsResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{documentId}",
		Name:        "document",
		Description: "Metadata of a specific document",
		MIMEType:    "application/json",
	}, s.handleDocumentResource)

	s.server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: uriScheme + "documents/{documentId}" + textSuffix,
		Name:        "document-text",
		Description: "Extracted text of a specific document, page by page",
		MIMEType:    "text/plain",
	}, s.handleDocumentTextResource)
}

type documentInfo struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	Title      string         `json:"title"`
	Author     string         `json:"author,omitempty"`
	Year       *int           `json:"year,omitempty"`
	Pages      int            `json:"pages"`
	UploadedAt time.Time      `json:"uploaded_at"`
	URI        string         `json:"uri"`
	Metadata   map[string]any `json:"meta,omitempty"`
}

func toDocumentInfo(doc *domain.Document) documentInfo {
	return documentInfo{
		ID:         doc.ID,
		Filename:   doc.Filename,
		Title:      doc.DisplayName(),
		Author:     doc.Author,
		Year:       doc.Year,
		Pages:      doc.Pages,
		UploadedAt: doc.UploadedAt,
		URI:        uriScheme + "documents/" + doc.ID,
		Metadata:   doc.Metadata,
	}
}

// handleDocumentsResource returns a list of all documents.
func (s *Server) handleDocumentsResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docs, err := s.ports.Document.List(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("listing documents: %w", err)
	}

	infos := make([]documentInfo, len(docs))
	for i := range docs {
		infos[i] = toDocumentInfo(&docs[i])
	}
	return jsonResult(req.Params.URI, infos)
}

// handleDocumentResource returns the metadata of a specific document.
func (s *Server) handleDocumentResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docID := extractDocumentID(req.Params.URI)
	if docID == "" || strings.Contains(docID, "/") {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	doc, err := s.ports.Document.Get(ctx, docID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}
	if err != nil {
		return nil, fmt.Errorf("getting document: %w", err)
	}
	return jsonResult(req.Params.URI, toDocumentInfo(doc))
}

// handleDocumentTextResource returns the chunk text of a document in
// reading order, with a marker at each page change.
func (s *Server) handleDocumentTextResource(
	ctx context.Context,
	req *mcp.ReadResourceRequest,
) (*mcp.ReadResourceResult, error) {
	docID := strings.TrimSuffix(extractDocumentID(req.Params.URI), textSuffix)
	if docID == "" || !strings.HasSuffix(req.Params.URI, textSuffix) {
		return nil, mcp.ResourceNotFoundError(req.Params.URI)
	}

	if _, err := s.ports.Document.Get(ctx, docID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, mcp.ResourceNotFoundError(req.Params.URI)
		}
		return nil, fmt.Errorf("getting document: %w", err)
	}

	chunks, err := s.ports.Document.Chunks(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("getting chunks: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      req.Params.URI,
			MIMEType: "text/plain",
			Text:     renderChunks(chunks),
		}},
	}, nil
}

// renderChunks joins chunks with a page header whenever the page changes.
// Overlapping text between neighbouring chunks is kept as stored.
func renderChunks(chunks []domain.Chunk) string {
	var b strings.Builder
	page := 0
	for i := range chunks {
		if chunks[i].Page != page {
			page = chunks[i].Page
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "--- page %d ---\n", page)
		}
		b.WriteString(chunks[i].Content)
		b.WriteString("\n")
	}
	return b.String()
}

func jsonResult(uri string, v any) (*mcp.ReadResourceResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshalling resource: %w", err)
	}

	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		}},
	}, nil
}

// extractDocumentID extracts the document ID from a URI like folio://documents/{documentId}.
func extractDocumentID(uri string) string {
	const prefix = uriScheme + "documents/"

	if !strings.HasPrefix(uri, prefix) {
		return ""
	}

	return strings.TrimPrefix(uri, prefix)
}
