package httpapi

import (
	"bytes"
	"context"
	"io"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driving"
)

type mockIngestService struct {
	result *domain.IngestResult
	err    error
	upload *domain.Upload
}

func (m *mockIngestService) Ingest(_ context.Context, upload domain.Upload) (*domain.IngestResult, error) {
	m.upload = &upload
	return m.result, m.err
}

func (m *mockIngestService) Reingest(_ context.Context, _ string) (*domain.IngestResult, error) {
	return m.result, m.err
}

func (m *mockIngestService) ReindexAll(_ context.Context) ([]domain.IngestResult, error) {
	return nil, m.err
}

type mockDocumentService struct {
	documents   []domain.Document
	document    *domain.Document
	content     []byte
	stats       *driving.IndexStats
	err         error
	includeMeta bool
	patch       *domain.DocumentPatch
	deleted     string
}

func (m *mockDocumentService) List(_ context.Context, includeMeta bool) ([]domain.Document, error) {
	m.includeMeta = includeMeta
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, _ string) (*domain.Document, error) {
	return m.document, m.err
}

func (m *mockDocumentService) Update(_ context.Context, _ string, patch domain.DocumentPatch) (*domain.Document, error) {
	m.patch = &patch
	return m.document, m.err
}

func (m *mockDocumentService) Delete(_ context.Context, id string) error {
	m.deleted = id
	return m.err
}

func (m *mockDocumentService) Open(_ context.Context, _ string) (io.ReadCloser, *domain.Document, error) {
	if m.err != nil {
		return nil, nil, m.err
	}
	return io.NopCloser(bytes.NewReader(m.content)), m.document, nil
}

func (m *mockDocumentService) Chunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return nil, m.err
}

func (m *mockDocumentService) Stats(_ context.Context) (*driving.IndexStats, error) {
	return m.stats, m.err
}

func (m *mockDocumentService) Compact(_ context.Context) error {
	return m.err
}

type mockSearchService struct {
	resp  *domain.SearchResponse
	err   error
	query string
	topK  int
}

func (m *mockSearchService) Search(_ context.Context, query string, topK int) (*domain.SearchResponse, error) {
	m.query = query
	m.topK = topK
	return m.resp, m.err
}

type mockAnswerService struct {
	answer *domain.Answer
	err    error
	req    *domain.AskRequest
}

func (m *mockAnswerService) Ask(_ context.Context, req domain.AskRequest) (*domain.Answer, error) {
	m.req = &req
	return m.answer, m.err
}

func (m *mockAnswerService) Configured() bool {
	return m.answer != nil && m.answer.Status == domain.AnswerAnswered
}

type mockSettingsService struct {
	status driving.ConfigStatus
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := domain.DefaultAppSettings()
	return &s, nil
}

func (m *mockSettingsService) Save(_ *domain.AppSettings) error { return nil }

func (m *mockSettingsService) SetEmbeddingProvider(_ domain.AIProvider, _, _ string) error {
	return nil
}

func (m *mockSettingsService) SetLLMProvider(_ domain.AIProvider, _, _ string) error { return nil }

func (m *mockSettingsService) Set(_ string, _ any) error { return nil }

func (m *mockSettingsService) Validate() error { return nil }

func (m *mockSettingsService) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }

func (m *mockSettingsService) ValidateEmbeddingConfig(_ context.Context) error { return nil }

func (m *mockSettingsService) ValidateLLMConfig(_ context.Context) error { return nil }

func (m *mockSettingsService) Status() driving.ConfigStatus { return m.status }
