package cli

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driving"
)

type mockIngestService struct {
	uploads   []domain.Upload
	reingests []string
	results   []domain.IngestResult
	err       error
}

func (m *mockIngestService) Ingest(_ context.Context, upload domain.Upload) (*domain.IngestResult, error) {
	m.uploads = append(m.uploads, upload)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.IngestResult{
		DocumentID:    "doc-" + upload.Filename,
		Filename:      upload.Filename,
		Pages:         2,
		ChunksIndexed: 5,
	}, nil
}

func (m *mockIngestService) Reingest(_ context.Context, id string) (*domain.IngestResult, error) {
	m.reingests = append(m.reingests, id)
	if m.err != nil {
		return nil, m.err
	}
	return &domain.IngestResult{DocumentID: id, Filename: "paper.pdf", Pages: 2, ChunksIndexed: 5, Replaced: true}, nil
}

func (m *mockIngestService) ReindexAll(_ context.Context) ([]domain.IngestResult, error) {
	return m.results, m.err
}

type mockDocumentService struct {
	documents []domain.Document
	chunks    []domain.Chunk
	content   []byte
	stats     *driving.IndexStats
	err       error
	patch     *domain.DocumentPatch
	deleted   []string
	compacted bool
}

func (m *mockDocumentService) find(id string) (*domain.Document, error) {
	for i := range m.documents {
		if m.documents[i].ID == id {
			doc := m.documents[i]
			return &doc, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockDocumentService) List(_ context.Context, _ bool) ([]domain.Document, error) {
	return m.documents, m.err
}

func (m *mockDocumentService) Get(_ context.Context, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.find(id)
}

func (m *mockDocumentService) Update(_ context.Context, id string, patch domain.DocumentPatch) (*domain.Document, error) {
	m.patch = &patch
	if m.err != nil {
		return nil, m.err
	}
	return m.find(id)
}

func (m *mockDocumentService) Delete(_ context.Context, id string) error {
	if m.err != nil {
		return m.err
	}
	if _, err := m.find(id); err != nil {
		return err
	}
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockDocumentService) Open(_ context.Context, id string) (io.ReadCloser, *domain.Document, error) {
	doc, err := m.find(id)
	if err != nil {
		return nil, nil, err
	}
	return io.NopCloser(bytes.NewReader(m.content)), doc, nil
}

func (m *mockDocumentService) Chunks(_ context.Context, _ string) ([]domain.Chunk, error) {
	return m.chunks, m.err
}

func (m *mockDocumentService) Stats(_ context.Context) (*driving.IndexStats, error) {
	return m.stats, m.err
}

func (m *mockDocumentService) Compact(_ context.Context) error {
	m.compacted = true
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

func (m *mockAnswerService) Configured() bool { return true }

type mockSettingsService struct {
	settings    domain.AppSettings
	set         map[string]any
	validateErr error
}

func (m *mockSettingsService) Get() (*domain.AppSettings, error) {
	s := m.settings
	return &s, nil
}

func (m *mockSettingsService) Save(s *domain.AppSettings) error {
	m.settings = *s
	return nil
}

func (m *mockSettingsService) SetEmbeddingProvider(p domain.AIProvider, model, _ string) error {
	m.settings.Embedding.Provider = p
	m.settings.Embedding.Model = model
	return nil
}

func (m *mockSettingsService) SetLLMProvider(p domain.AIProvider, model, _ string) error {
	m.settings.LLM.Provider = p
	m.settings.LLM.Model = model
	return nil
}

func (m *mockSettingsService) Set(key string, value any) error {
	if key == "no.such.key" {
		return domain.ErrInvalidInput
	}
	if m.set == nil {
		m.set = make(map[string]any)
	}
	m.set[key] = value
	return nil
}

func (m *mockSettingsService) Validate() error { return m.validateErr }

func (m *mockSettingsService) GetDefaults() domain.AppSettings { return domain.DefaultAppSettings() }

func (m *mockSettingsService) ValidateEmbeddingConfig(_ context.Context) error { return nil }

func (m *mockSettingsService) ValidateLLMConfig(_ context.Context) error { return nil }

func (m *mockSettingsService) Status() driving.ConfigStatus {
	return driving.ConfigStatus{ConfigPath: "/tmp/folio/config.toml"}
}

// testServices holds the mocks installed by setupTestServices.
type testServices struct {
	ingest   *mockIngestService
	docs     *mockDocumentService
	search   *mockSearchService
	answer   *mockAnswerService
	settings *mockSettingsService
}

var testUploaded = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

// setupTestServices installs mock services and returns a cleanup func.
func setupTestServices() func() {
	_, cleanup := setupTestServicesWithMocks()
	return cleanup
}

func setupTestServicesWithMocks() (*testServices, func()) {
	year := 2017
	mocks := &testServices{
		ingest: &mockIngestService{},
		docs: &mockDocumentService{
			documents: []domain.Document{
				{
					ID:         "doc-1",
					Filename:   "attention.pdf",
					Title:      "Test Document 1",
					Author:     "Vaswani",
					Year:       &year,
					Pages:      11,
					SHA256:     "abc123",
					UploadedAt: testUploaded,
					UpdatedAt:  testUploaded,
					Metadata:   map[string]any{"producer": "LaTeX"},
				},
				{ID: "doc-2", Filename: "bert.pdf", Pages: 16, UploadedAt: testUploaded},
			},
			content: []byte("%PDF-1.7 test"),
			stats:   &driving.IndexStats{Documents: 2, Chunks: 40, Vectors: 40, Tombstones: 3, Dimensions: 384, Signature: "local/hashing-v1/384"},
		},
		search: &mockSearchService{resp: &domain.SearchResponse{Results: []domain.SearchResult{{
			Score:    0.912,
			Document: domain.DocumentSummary{ID: "doc-1", Filename: "attention.pdf", Title: "Test Document 1"},
			Page:     3,
			ChunkID:  "c-1",
			Snippet:  "self-attention relates positions",
			Content:  "self-attention relates positions of a single sequence",
		}}}},
		answer:   &mockAnswerService{},
		settings: &mockSettingsService{settings: domain.DefaultAppSettings()},
	}

	prevIngest, prevDocs, prevSearch, prevAnswer, prevSettings :=
		ingestService, documentService, searchService, answerService, settingsService

	SetServices(&Services{
		Ingest:   mocks.ingest,
		Document: mocks.docs,
		Search:   mocks.search,
		Answer:   mocks.answer,
		Settings: mocks.settings,
	})

	return mocks, func() {
		ingestService, documentService, searchService, answerService, settingsService =
			prevIngest, prevDocs, prevSearch, prevAnswer, prevSettings
	}
}
