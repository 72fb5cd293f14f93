package services

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
)

func ingestAll(t *testing.T, env *testEnv, uploads map[string][]byte) map[string]string {
	t.Helper()
	ids := make(map[string]string, len(uploads))
	for name, content := range uploads {
		result, err := env.ingest.Ingest(context.Background(), domain.Upload{Filename: name, Content: content})
		require.NoError(t, err)
		ids[name] = result.DocumentID
	}
	return ids
}

func TestSearch_EmptyIndex(t *testing.T) {
	env := newTestEnv(t)

	resp, err := env.search.Search(context.Background(), "alpha", 5)
	require.NoError(t, err)

	assert.Empty(t, resp.Results)
	assert.NotNil(t, resp.Results)
	assert.Equal(t, EmptyIndexNote, resp.Note)
	assert.Zero(t, env.embedder.calls.Load(), "empty index never embeds the query")
}

func TestSearch_RanksBySimilarity(t *testing.T) {
	env := newTestEnv(t)
	ids := ingestAll(t, env, map[string][]byte{
		"alpha.pdf": pdf("alpha alpha alpha"),
		"mixed.pdf": pdf("alpha beta"),
		"beta.pdf":  pdf("beta beta"),
	})

	resp, err := env.search.Search(context.Background(), "alpha", 5)
	require.NoError(t, err)

	require.Len(t, resp.Results, 3, "results are never padded")
	assert.Empty(t, resp.Note)
	assert.Equal(t, ids["alpha.pdf"], resp.Results[0].Document.ID)
	assert.Equal(t, ids["mixed.pdf"], resp.Results[1].Document.ID)
	assert.Equal(t, ids["beta.pdf"], resp.Results[2].Document.ID)
	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score)
	}

	top := resp.Results[0]
	assert.Equal(t, "alpha.pdf", top.Document.Filename)
	assert.Equal(t, 1, top.Page)
	assert.Equal(t, "alpha alpha alpha", top.Snippet)
	assert.InDelta(t, 0.99, top.Score, 0.02)
}

func TestSearch_TruncatesToTopK(t *testing.T) {
	env := newTestEnv(t)
	ingestAll(t, env, map[string][]byte{
		"a.pdf": pdf("alpha"),
		"b.pdf": pdf("alpha beta"),
		"c.pdf": pdf("alpha gamma"),
	})

	resp, err := env.search.Search(context.Background(), "alpha", 2)
	require.NoError(t, err)
	assert.Len(t, resp.Results, 2)
}

func TestSearch_OneResultPerPage(t *testing.T) {
	env := newTestEnv(t)
	long := strings.Repeat("alpha ", 20)
	ingestAll(t, env, map[string][]byte{"long.pdf": pdf(long, "alpha on page two")})

	resp, err := env.search.Search(context.Background(), "alpha", 10)
	require.NoError(t, err)

	require.Len(t, resp.Results, 2)
	pages := []int{resp.Results[0].Page, resp.Results[1].Page}
	assert.ElementsMatch(t, []int{1, 2}, pages)
}

func TestSearch_ExcludesDeletedDocuments(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := ingestAll(t, env, map[string][]byte{
		"keep.pdf": pdf("alpha beta"),
		"drop.pdf": pdf("alpha alpha"),
	})

	require.NoError(t, env.docs.Delete(ctx, ids["drop.pdf"]))

	resp, err := env.search.Search(ctx, "alpha", 5)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, ids["keep.pdf"], resp.Results[0].Document.ID)
}

func TestSearch_SkipsOrphanedVectors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	ids := ingestAll(t, env, map[string][]byte{"real.pdf": pdf("beta")})

	_, err := env.index.Insert(ctx, []driven.VectorEntry{{ChunkID: "ghost", Embedding: env.embedder.vector("alpha")}})
	require.NoError(t, err)

	resp, err := env.search.Search(ctx, "alpha", 5)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, ids["real.pdf"], resp.Results[0].Document.ID)
}

func TestSearch_RejectsShortQuery(t *testing.T) {
	env := newTestEnv(t)

	for _, q := range []string{"", "  ", "a"} {
		_, err := env.search.Search(context.Background(), q, 5)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "query %q", q)
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	env := newTestEnv(t)
	ingestAll(t, env, map[string][]byte{"a.pdf": pdf("alpha")})

	narrow := &vocabEmbedder{dims: 3}
	svc := NewSearchService(narrow, env.index, env.store, domain.SearchSettings{})

	_, err := svc.Search(context.Background(), "alpha", 5)
	assert.ErrorIs(t, err, domain.ErrProviderMismatch)
	assert.Equal(t, domain.KindConfiguration, domain.KindOf(err))
}

func TestSearch_EmbeddingFailure(t *testing.T) {
	env := newTestEnv(t)
	ingestAll(t, env, map[string][]byte{"a.pdf": pdf("alpha")})
	env.embedder.err = assert.AnError

	_, err := env.search.Search(context.Background(), "alpha", 5)
	assert.ErrorIs(t, err, domain.ErrEmbeddingProvider)
}

func TestSearch_ClampTopK(t *testing.T) {
	svc := NewSearchService(nil, nil, nil, domain.SearchSettings{DefaultTopK: 4, MaxTopK: 10})

	assert.Equal(t, 4, svc.clampTopK(0))
	assert.Equal(t, 4, svc.clampTopK(-3))
	assert.Equal(t, 7, svc.clampTopK(7))
	assert.Equal(t, 10, svc.clampTopK(500))
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		name    string
		content string
		query   string
		limit   int
		check   func(t *testing.T, got string)
	}{
		{
			name:    "short content is returned whole",
			content: "  a short passage  ",
			query:   "passage",
			limit:   400,
			check: func(t *testing.T, got string) {
				assert.Equal(t, "a short passage", got)
			},
		},
		{
			name:    "no match keeps the head",
			content: strings.Repeat("word ", 100),
			query:   "missing",
			limit:   50,
			check: func(t *testing.T, got string) {
				assert.True(t, strings.HasPrefix(got, "word"))
				assert.True(t, strings.HasSuffix(got, snippetEllipsis))
			},
		},
		{
			name:    "late match moves the window",
			content: strings.Repeat("filler ", 60) + "transformer architecture " + strings.Repeat("tail ", 60),
			query:   "the transformer",
			limit:   80,
			check: func(t *testing.T, got string) {
				assert.True(t, strings.HasPrefix(got, snippetEllipsis))
				assert.True(t, strings.HasSuffix(got, snippetEllipsis))
				assert.Contains(t, got, "transformer")
			},
		},
		{
			name:    "match near the end keeps a full window",
			content: strings.Repeat("filler ", 60) + "conclusion",
			query:   "conclusion",
			limit:   40,
			check: func(t *testing.T, got string) {
				assert.True(t, strings.HasPrefix(got, snippetEllipsis))
				assert.True(t, strings.HasSuffix(got, "conclusion"))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Snippet(tt.content, tt.query, tt.limit)
			body := strings.TrimSuffix(strings.TrimPrefix(got, snippetEllipsis), snippetEllipsis)
			assert.LessOrEqual(t, utf8.RuneCountInString(body), tt.limit)
			tt.check(t, got)
		})
	}
}
