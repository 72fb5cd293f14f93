package httpapi

import (
	"time"

	"github.com/custodia-labs/folio/internal/core/domain"
)

type uploadResponse struct {
	DocumentID    string `json:"document_id"`
	Filename      string `json:"filename"`
	Pages         int    `json:"pages"`
	ChunksIndexed int    `json:"chunks_indexed"`
	Replaced      bool   `json:"replaced"`
}

func toUploadResponse(r *domain.IngestResult) uploadResponse {
	return uploadResponse{
		DocumentID:    r.DocumentID,
		Filename:      r.Filename,
		Pages:         r.Pages,
		ChunksIndexed: r.ChunksIndexed,
		Replaced:      r.Replaced,
	}
}

type documentResponse struct {
	ID         string         `json:"id"`
	Filename   string         `json:"filename"`
	Title      string         `json:"title"`
	Author     string         `json:"author,omitempty"`
	Year       *int           `json:"year,omitempty"`
	Pages      int            `json:"pages"`
	SHA256     string         `json:"sha256"`
	UploadedAt time.Time      `json:"uploaded_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Meta       map[string]any `json:"meta,omitempty"`
}

func toDocumentResponse(d *domain.Document) documentResponse {
	return documentResponse{
		ID:         d.ID,
		Filename:   d.Filename,
		Title:      d.DisplayName(),
		Author:     d.Author,
		Year:       d.Year,
		Pages:      d.Pages,
		SHA256:     d.SHA256,
		UploadedAt: d.UploadedAt,
		UpdatedAt:  d.UpdatedAt,
		Meta:       d.Metadata,
	}
}

// patchRequest is the body of PATCH /documents/:id.
type patchRequest struct {
	Title  *string        `json:"title"`
	Author *string        `json:"author"`
	Year   *int           `json:"year"`
	Meta   map[string]any `json:"meta"`
}

func (r patchRequest) toPatch() domain.DocumentPatch {
	return domain.DocumentPatch{
		Title:    r.Title,
		Author:   r.Author,
		Year:     r.Year,
		Metadata: r.Meta,
	}
}

type documentRef struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Filename string `json:"filename"`
	Author   string `json:"author,omitempty"`
	Year     *int   `json:"year,omitempty"`
}

type resultResponse struct {
	Score    float64     `json:"score"`
	ChunkID  string      `json:"chunk_id"`
	Page     int         `json:"page"`
	Document documentRef `json:"document"`
	Snippet  string      `json:"snippet"`
}

func toResultResponse(r domain.SearchResult) resultResponse {
	title := r.Document.Title
	if title == "" {
		title = r.Document.Filename
	}
	return resultResponse{
		Score:   r.Score,
		ChunkID: r.ChunkID,
		Page:    r.Page,
		Document: documentRef{
			ID:       r.Document.ID,
			Title:    title,
			Filename: r.Document.Filename,
			Author:   r.Document.Author,
			Year:     r.Document.Year,
		},
		Snippet: r.Snippet,
	}
}

type searchQuery struct {
	Q    string `form:"q"`
	TopK int    `form:"top_k"`
}

type searchResponse struct {
	Results []resultResponse `json:"results"`
	Note    string           `json:"note,omitempty"`
}

type turnRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// askRequest is the body of POST /ask.
type askRequest struct {
	Question    string        `json:"question"`
	TopK        int           `json:"top_k"`
	Personality []string      `json:"personality"`
	History     []turnRequest `json:"history"`
}

func (r askRequest) toDomain() domain.AskRequest {
	history := make([]domain.Turn, len(r.History))
	for i, t := range r.History {
		history[i] = domain.Turn{Role: t.Role, Content: t.Content}
	}
	return domain.AskRequest{
		Question: r.Question,
		TopK:     r.TopK,
		Persona:  r.Personality,
		History:  history,
	}
}

type contextResponse struct {
	resultResponse
	Text string `json:"text"`
}

type askResponse struct {
	Status        domain.AnswerStatus `json:"status"`
	Answer        string              `json:"answer"`
	Contexts      []contextResponse   `json:"contexts"`
	NotConfigured bool                `json:"not_configured"`
}

func toAskResponse(a *domain.Answer) askResponse {
	contexts := make([]contextResponse, len(a.Contexts))
	for i, r := range a.Contexts {
		contexts[i] = contextResponse{resultResponse: toResultResponse(r), Text: r.Content}
	}
	return askResponse{
		Status:        a.Status,
		Answer:        a.Text,
		Contexts:      contexts,
		NotConfigured: a.NotConfigured(),
	}
}

type configStatusResponse struct {
	LLMProvider       string `json:"llm_provider"`
	ChatModel         string `json:"chat_model"`
	HasLLMKey         bool   `json:"has_llm_key"`
	LLMConfigured     bool   `json:"llm_configured"`
	EmbeddingProvider string `json:"embedding_provider"`
	EmbeddingModel    string `json:"embedding_model"`
	IndexSize         int    `json:"index_size"`
	Documents         int    `json:"documents"`
}
