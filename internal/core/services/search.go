package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
	"github.com/custodia-labs/folio/internal/core/ports/driving"
	"github.com/custodia-labs/folio/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// EmptyIndexNote is returned with an empty result set when nothing is indexed.
const EmptyIndexNote = "Index is empty. Upload PDFs first."

const snippetEllipsis = "..."

// minQueryLength is the shortest accepted query, in characters.
const minQueryLength = 2

// SearchService performs semantic search over indexed chunks.
type SearchService struct {
	embedder driven.EmbeddingService
	index    driven.VectorIndex
	store    driven.DocumentStore
	settings domain.SearchSettings
}

// NewSearchService creates a new search service.
// Zero-valued settings fall back to the defaults.
func NewSearchService(
	embedder driven.EmbeddingService,
	index driven.VectorIndex,
	store driven.DocumentStore,
	settings domain.SearchSettings,
) *SearchService {
	defaults := domain.DefaultAppSettings().Search
	if settings.DefaultTopK <= 0 {
		settings.DefaultTopK = defaults.DefaultTopK
	}
	if settings.MaxTopK < settings.DefaultTopK {
		settings.MaxTopK = max(defaults.MaxTopK, settings.DefaultTopK)
	}
	if settings.CandidateMargin <= 0 {
		settings.CandidateMargin = defaults.CandidateMargin
	}
	if settings.MinCandidates <= 0 {
		settings.MinCandidates = defaults.MinCandidates
	}
	if settings.SnippetLength <= 0 {
		settings.SnippetLength = defaults.SnippetLength
	}
	return &SearchService{
		embedder: embedder,
		index:    index,
		store:    store,
		settings: settings,
	}
}

// Search embeds query and returns at most topK results, one per
// (document, page), ordered by descending score.
func (s *SearchService) Search(ctx context.Context, query string, topK int) (*domain.SearchResponse, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < minQueryLength {
		return nil, fmt.Errorf("%w: query must be at least %d characters", domain.ErrInvalidInput, minQueryLength)
	}
	topK = s.clampTopK(topK)

	stats := s.index.Stats()
	if stats.Live == 0 {
		return &domain.SearchResponse{Results: []domain.SearchResult{}, Note: EmptyIndexNote}, nil
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		if !errors.Is(err, domain.ErrEmbeddingProvider) {
			err = fmt.Errorf("%w: %w", domain.ErrEmbeddingProvider, err)
		}
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if stats.Dimensions > 0 && len(vec) != stats.Dimensions {
		return nil, fmt.Errorf("%w: query has %d dimensions, index has %d",
			domain.ErrProviderMismatch, len(vec), stats.Dimensions)
	}

	candidates := max(topK*s.settings.CandidateMargin, s.settings.MinCandidates)
	hits, err := s.index.Search(ctx, vec, candidates)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results, err := s.hydrate(ctx, hits, query, topK)
	if err != nil {
		return nil, err
	}
	return &domain.SearchResponse{Results: results}, nil
}

// hydrate attaches chunk text and document summaries to hits, dropping
// entries the store no longer knows about.
func (s *SearchService) hydrate(ctx context.Context, hits []driven.VectorHit, query string, topK int) ([]domain.SearchResult, error) {
	results := make([]domain.SearchResult, 0, min(topK, len(hits)))
	if len(hits) == 0 {
		return results, nil
	}

	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ChunkID
	}
	chunks, err := s.store.GetChunksByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load chunks: %w", err)
	}
	byID := make(map[string]*domain.Chunk, len(chunks))
	for i := range chunks {
		byID[chunks[i].ID] = &chunks[i]
	}

	type pageKey struct {
		doc  string
		page int
	}
	seen := make(map[pageKey]struct{})
	docs := make(map[string]*domain.Document)
	orphans := 0

	for _, hit := range hits {
		if len(results) == topK {
			break
		}

		chunk, ok := byID[hit.ChunkID]
		if !ok {
			orphans++
			continue
		}

		doc, ok := docs[chunk.DocumentID]
		if !ok {
			doc, err = s.store.GetDocument(ctx, chunk.DocumentID)
			if errors.Is(err, domain.ErrNotFound) {
				orphans++
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("load document: %w", err)
			}
			docs[chunk.DocumentID] = doc
		}

		key := pageKey{doc: chunk.DocumentID, page: chunk.Page}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		results = append(results, domain.SearchResult{
			Score:    hit.Similarity,
			Document: doc.Summarise(),
			Page:     chunk.Page,
			ChunkID:  chunk.ID,
			Snippet:  Snippet(chunk.Content, query, s.settings.SnippetLength),
			Content:  chunk.Content,
		})
	}

	if orphans > 0 {
		logger.Warn("search: %v: skipped %d hits with no stored chunk", domain.ErrIndexConsistency, orphans)
	}
	return results, nil
}

func (s *SearchService) clampTopK(topK int) int {
	if topK <= 0 {
		return s.settings.DefaultTopK
	}
	return min(topK, s.settings.MaxTopK)
}

// Snippet returns at most limit characters of content, plus ellipses where
// text was cut. The window starts near the first query term found in the
// content, or at the beginning when no term occurs.
func Snippet(content, query string, limit int) string {
	content = strings.TrimSpace(content)
	runes := []rune(content)
	if limit <= 0 || len(runes) <= limit {
		return content
	}

	start := 0
	if pos := firstTermIndex(runes, query); pos > limit/2 {
		// Keep a little lead-in ahead of the match.
		start = wordStart(runes, pos-limit/4)
	}
	end := min(start+limit, len(runes))
	if end == len(runes) {
		start = max(0, end-limit)
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString(snippetEllipsis)
	}
	b.WriteString(strings.TrimSpace(string(runes[start:end])))
	if end < len(runes) {
		b.WriteString(snippetEllipsis)
	}
	return b.String()
}

// firstTermIndex returns the rune offset of the earliest query term in
// text, or -1. Terms shorter than three letters are ignored.
func firstTermIndex(text []rune, query string) int {
	lower := []rune(strings.ToLower(string(text)))
	if len(lower) != len(text) {
		// Case folding changed the length; offsets would not line up.
		lower = text
	}
	haystack := string(lower)

	best := -1
	for _, term := range strings.FieldsFunc(strings.ToLower(query), isTermSeparator) {
		if utf8.RuneCountInString(term) < 3 {
			continue
		}
		byteIdx := strings.Index(haystack, term)
		if byteIdx < 0 {
			continue
		}
		idx := utf8.RuneCountInString(haystack[:byteIdx])
		if best < 0 || idx < best {
			best = idx
		}
	}
	return best
}

// wordStart moves i back to the start of the word it falls in.
func wordStart(text []rune, i int) int {
	if i <= 0 {
		return 0
	}
	for i > 0 && !unicode.IsSpace(text[i-1]) {
		i--
	}
	return i
}

func isTermSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsNumber(r)
}
