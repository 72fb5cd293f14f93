package mcp

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/custodia-labs/folio/internal/core/domain"
)

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"the question or phrase to look up in the indexed PDFs"`
	TopK  int    `json:"top_k,omitempty" jsonschema:"maximum number of results to return (server default when omitted)"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []PassageOutput `json:"results"`
	Count   int             `json:"count"`
	Note    string          `json:"note,omitempty"`
}

// PassageOutput is one retrieved chunk.
type PassageOutput struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename"`
	Title      string  `json:"title,omitempty"`
	Page       int     `json:"page"`
	ChunkID    string  `json:"chunk_id"`
	Score      float64 `json:"score"`
	Snippet    string  `json:"snippet"`
	Content    string  `json:"content,omitempty"`
}

// AskInput is the input schema for the ask tool.
type AskInput struct {
	Question string   `json:"question" jsonschema:"the question to answer from the indexed PDFs"`
	TopK     int      `json:"top_k,omitempty" jsonschema:"number of passages to ground the answer on"`
	Persona  []string `json:"persona,omitempty" jsonschema:"optional style statements for the answer"`
}

// AskOutput is the output schema for the ask tool.
type AskOutput struct {
	Status   string          `json:"status"`
	Answer   string          `json:"answer,omitempty"`
	Error    string          `json:"error,omitempty"`
	Contexts []PassageOutput `json:"contexts"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Semantic search across all indexed PDFs; returns the best passage per page",
	}, s.handleSearch)

	if s.ports.Answer != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "ask",
			Description: "Answer a question from the indexed PDFs, citing passages as [file p.N]",
		}, s.handleAsk)
	}
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	resp, err := s.ports.Search.Search(ctx, input.Query, input.TopK)
	if err != nil {
		return nil, SearchOutput{}, err
	}

	return nil, SearchOutput{
		Results: passages(resp.Results, true),
		Count:   len(resp.Results),
		Note:    resp.Note,
	}, nil
}

// handleAsk handles the ask tool invocation. A generation failure still
// returns the retrieved passages, with the error in the output.
func (s *Server) handleAsk(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	answer, err := s.ports.Answer.Ask(ctx, domain.AskRequest{
		Question: input.Question,
		TopK:     input.TopK,
		Persona:  input.Persona,
	})
	if err != nil && (answer == nil || !errors.Is(err, domain.ErrGeneration)) {
		return nil, AskOutput{}, err
	}

	out := AskOutput{
		Status:   string(answer.Status),
		Contexts: passages(answer.Contexts, false),
	}
	if err != nil {
		out.Error = err.Error()
	} else {
		out.Answer = answer.Text
	}
	return nil, out, nil
}

func passages(results []domain.SearchResult, withContent bool) []PassageOutput {
	out := make([]PassageOutput, len(results))
	for i := range results {
		r := &results[i]
		out[i] = PassageOutput{
			DocumentID: r.Document.ID,
			Filename:   r.Document.Filename,
			Title:      r.Document.Title,
			Page:       r.Page,
			ChunkID:    r.ChunkID,
			Score:      r.Score,
			Snippet:    r.Snippet,
		}
		if withContent {
			out[i].Content = r.Content
		}
	}
	return out
}
