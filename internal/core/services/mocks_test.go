package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/folio/internal/adapters/driven/storage/files"
	"github.com/custodia-labs/folio/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/folio/internal/adapters/driven/vector/hnsw"
	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
	"github.com/custodia-labs/folio/internal/postprocessors/chunker"
)

// --- Test environment ---

// testEnv wires the services over in-memory stores, a real HNSW index and
// the real chunker. Extraction and embedding are faked.
type testEnv struct {
	store     *memory.DocumentStore
	index     *hnsw.Index
	files     *files.FileStore
	extractor *fakeExtractor
	embedder  *vocabEmbedder
	indexer   *Indexer
	ingest    *IngestService
	search    *SearchService
	docs      *DocumentService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, nil, CompactionPolicy{Ratio: 0.9, MinTombstones: 1000})
}

// newTestEnvWith lets a test wrap the document store or vector index.
func newTestEnvWith(t *testing.T, wrap func(driven.DocumentStore, driven.VectorIndex) (driven.DocumentStore, driven.VectorIndex), policy CompactionPolicy) *testEnv {
	t.Helper()

	fs, err := files.NewFileStore(t.TempDir())
	require.NoError(t, err)

	embedder := newVocabEmbedder()
	index, err := hnsw.New(hnsw.Config{Dimensions: embedder.Dimensions(), Signature: "test/vocab"})
	require.NoError(t, err)

	env := &testEnv{
		store:     memory.NewDocumentStore(),
		index:     index,
		files:     fs,
		extractor: &fakeExtractor{},
		embedder:  embedder,
	}

	var store driven.DocumentStore = env.store
	var vectors driven.VectorIndex = env.index
	if wrap != nil {
		store, vectors = wrap(store, vectors)
	}

	env.indexer = NewIndexer(store, vectors, policy)
	env.ingest = NewIngestService(env.extractor, chunker.New(chunker.WithChunkSize(40), chunker.WithOverlap(10)),
		embedder, fs, store, env.indexer)
	env.search = NewSearchService(embedder, vectors, store, domain.SearchSettings{})
	env.docs = NewDocumentService(store, fs, env.indexer)
	return env
}

// storedFiles counts upload directories on disk.
func (e *testEnv) storedFiles(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(e.files.Root())
	require.NoError(t, err)
	return len(entries)
}

// pdf builds fake PDF bytes whose pages are separated by form feeds.
func pdf(pages ...string) []byte {
	return []byte("%PDF-1.7\n" + strings.Join(pages, "\f"))
}

// --- Extractor ---

// fakeExtractor treats everything after the header line as form-feed
// separated page text.
type fakeExtractor struct {
	err error
}

func (f *fakeExtractor) Extract(_ context.Context, content []byte) (*domain.Extraction, error) {
	if f.err != nil {
		return nil, f.err
	}
	header, body, ok := bytes.Cut(content, []byte("\n"))
	if !ok || !bytes.HasPrefix(header, []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: missing %%PDF header", domain.ErrExtraction)
	}

	texts := strings.Split(string(body), "\f")
	pages := make([]domain.Page, len(texts))
	for i, text := range texts {
		pages[i] = domain.Page{Number: i + 1, Text: text}
	}
	return &domain.Extraction{
		Pages:    pages,
		Metadata: map[string]any{"producer": "fake", "title": "Extracted Title"},
	}, nil
}

// --- Embedding ---

var vocabulary = []string{"alpha", "beta", "gamma", "delta", "omega"}

// vocabEmbedder counts vocabulary words, plus a constant bias so no text
// maps to the zero vector.
type vocabEmbedder struct {
	dims  int
	err   error
	calls atomic.Int32

	mu   sync.Mutex
	gate *batchGate
}

// batchGate parks one EmbedBatch call until released.
type batchGate struct {
	entered chan struct{}
	release chan struct{}
}

// holdNextBatch makes the next EmbedBatch call wait. entered is closed once
// the call is parked; release lets it continue.
func (e *vocabEmbedder) holdNextBatch() (entered <-chan struct{}, release func()) {
	g := &batchGate{entered: make(chan struct{}), release: make(chan struct{})}
	e.mu.Lock()
	e.gate = g
	e.mu.Unlock()
	return g.entered, func() { close(g.release) }
}

func (e *vocabEmbedder) takeGate() *batchGate {
	e.mu.Lock()
	defer e.mu.Unlock()
	g := e.gate
	e.gate = nil
	return g
}

func newVocabEmbedder() *vocabEmbedder {
	return &vocabEmbedder{dims: len(vocabulary) + 1}
}

func (e *vocabEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	return e.vector(text), nil
}

func (e *vocabEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if g := e.takeGate(); g != nil {
		close(g.entered)
		<-g.release
	}
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.vector(text)
	}
	return out, nil
}

func (e *vocabEmbedder) vector(text string) []float32 {
	vec := make([]float32, e.dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		for i, v := range vocabulary {
			if i < e.dims-1 && strings.Trim(word, ".,;:") == v {
				vec[i]++
			}
		}
	}
	vec[e.dims-1] = 0.1

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

func (e *vocabEmbedder) Dimensions() int              { return e.dims }
func (e *vocabEmbedder) ModelName() string            { return "vocab" }
func (e *vocabEmbedder) Ping(_ context.Context) error { return e.err }
func (e *vocabEmbedder) Close() error                 { return nil }

// --- Store and index wrappers ---

// failingStore fails CommitDocument while delegating everything else.
type failingStore struct {
	driven.DocumentStore
	commitErr error
}

func (s *failingStore) CommitDocument(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]string, error) {
	if s.commitErr != nil {
		return nil, s.commitErr
	}
	return s.DocumentStore.CommitDocument(ctx, doc, chunks)
}

// countingIndex records writes while delegating to a real index.
type countingIndex struct {
	driven.VectorIndex
	mu          sync.Mutex
	saves       int
	compactions int
	deleteErr   error
}

func (c *countingIndex) SoftDelete(ctx context.Context, chunkIDs ...string) error {
	if c.deleteErr != nil {
		return c.deleteErr
	}
	return c.VectorIndex.SoftDelete(ctx, chunkIDs...)
}

func (c *countingIndex) Compact(ctx context.Context) error {
	c.mu.Lock()
	c.compactions++
	c.mu.Unlock()
	return c.VectorIndex.Compact(ctx)
}

func (c *countingIndex) Save() error {
	c.mu.Lock()
	c.saves++
	c.mu.Unlock()
	return c.VectorIndex.Save()
}

// --- Generation ---

// fakeLLM records the last conversation and replies with a fixed answer.
type fakeLLM struct {
	reply    string
	err      error
	block    bool
	messages []driven.ChatMessage
	opts     driven.ChatOptions
}

func (f *fakeLLM) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	f.messages = messages
	f.opts = opts
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) ModelName() string            { return "fake-chat" }
func (f *fakeLLM) Ping(_ context.Context) error { return nil }
func (f *fakeLLM) Close() error                 { return nil }

// fakePrompts serves prompts from a map.
type fakePrompts map[string]string

func (p fakePrompts) Load(name string) (string, error) {
	text, ok := p[name]
	if !ok {
		return "", errors.New("unknown prompt")
	}
	return text, nil
}

// fakeSearch returns a canned response.
type fakeSearch struct {
	resp     *domain.SearchResponse
	err      error
	lastTopK int
}

func (f *fakeSearch) Search(_ context.Context, _ string, topK int) (*domain.SearchResponse, error) {
	f.lastTopK = topK
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

// --- Settings ---

// fakeValidator records what was validated.
type fakeValidator struct {
	embedding *domain.EmbeddingSettings
	llm       *domain.LLMSettings
	err       error
}

func (v *fakeValidator) ValidateEmbedding(_ context.Context, cfg *domain.EmbeddingSettings) error {
	v.embedding = cfg
	return v.err
}

func (v *fakeValidator) ValidateLLM(_ context.Context, cfg *domain.LLMSettings) error {
	v.llm = cfg
	return v.err
}
