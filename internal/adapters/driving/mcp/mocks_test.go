package mcp

import (
	"bytes"
	"context"
	"io"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driving"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	resp  *domain.SearchResponse
	err   error
	query string
	topK  int
}

func (m *mockSearchService) Search(_ context.Context, query string, topK int) (*domain.SearchResponse, error) {
	m.query = query
	m.topK = topK
	if m.err != nil {
		return nil, m.err
	}
	if m.resp == nil {
		return &domain.SearchResponse{}, nil
	}
	return m.resp, nil
}

// mockAnswerService is a mock implementation of driving.AnswerService.
type mockAnswerService struct {
	answer *domain.Answer
	err    error
	req    domain.AskRequest
}

func (m *mockAnswerService) Ask(_ context.Context, req domain.AskRequest) (*domain.Answer, error) {
	m.req = req
	return m.answer, m.err
}

func (m *mockAnswerService) Configured() bool { return m.answer != nil }

// mockDocumentService is a mock implementation of driving.DocumentService.
type mockDocumentService struct {
	documents []domain.Document
	chunks    []domain.Chunk
	err       error
}

func (m *mockDocumentService) List(_ context.Context, _ bool) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.documents {
		if m.documents[i].ID == id {
			return &m.documents[i], nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) Update(_ context.Context, _ string, _ domain.DocumentPatch) (*domain.Document, error) {
	return nil, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, _ string) error {
	return m.err
}

func (m *mockDocumentService) Open(_ context.Context, _ string) (io.ReadCloser, *domain.Document, error) {
	return io.NopCloser(bytes.NewReader(nil)), nil, m.err
}

func (m *mockDocumentService) Chunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return m.chunks, nil
}

func (m *mockDocumentService) Stats(_ context.Context) (*driving.IndexStats, error) {
	return &driving.IndexStats{}, m.err
}

func (m *mockDocumentService) Compact(_ context.Context) error {
	return m.err
}
