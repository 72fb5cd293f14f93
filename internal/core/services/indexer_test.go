package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
)

func indexedDoc(env *testEnv, id string, texts ...string) (*domain.Document, []domain.Chunk) {
	doc := &domain.Document{
		ID:         id,
		Filename:   id + ".pdf",
		StorageRef: "ref/" + id,
		SHA256:     "sha-" + id,
		Pages:      len(texts),
		UploadedAt: time.Now().UTC(),
	}
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{
			ID:         id + "-" + string(rune('a'+i)),
			DocumentID: id,
			Position:   i,
			Page:       i + 1,
			EndChar:    len(text),
			Content:    text,
			Embedding:  env.embedder.vector(text),
		}
	}
	return doc, chunks
}

func TestIndexer_CommitAndDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc, chunks := indexedDoc(env, "d1", "alpha", "beta")
	retired, err := env.indexer.Commit(ctx, doc, chunks)
	require.NoError(t, err)
	assert.Empty(t, retired)
	assert.True(t, env.index.Contains("d1-a"))

	removed, err := env.indexer.Delete(ctx, "d1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"d1-a", "d1-b"}, removed)
	assert.False(t, env.index.Contains("d1-a"))
	assert.False(t, env.index.Contains("d1-b"))

	_, err = env.store.GetDocument(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.indexer.Delete(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndexer_InsertFailureCommitsNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc, chunks := indexedDoc(env, "d1", "alpha")
	chunks[0].Embedding = []float32{1, 0}

	_, err := env.indexer.Commit(ctx, doc, chunks)

	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.IngestEmbedded, stageErr.State)
	assert.ErrorIs(t, err, domain.ErrProviderMismatch)

	_, err = env.store.GetDocument(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIndexer_CompactsAfterDeletesPastPolicy(t *testing.T) {
	var counting *countingIndex
	env := newTestEnvWith(t, func(s driven.DocumentStore, v driven.VectorIndex) (driven.DocumentStore, driven.VectorIndex) {
		counting = &countingIndex{VectorIndex: v}
		return s, counting
	}, CompactionPolicy{Ratio: 0.5, MinTombstones: 2})
	ctx := context.Background()

	for _, id := range []string{"d1", "d2"} {
		doc, chunks := indexedDoc(env, id, "alpha", "beta")
		_, err := env.indexer.Commit(ctx, doc, chunks)
		require.NoError(t, err)
	}
	assert.Equal(t, 0, counting.compactions)

	_, err := env.indexer.Delete(ctx, "d1")
	require.NoError(t, err)

	assert.Equal(t, 1, counting.compactions)
	stats := env.index.Stats()
	assert.Equal(t, 2, stats.Live)
	assert.Equal(t, 0, stats.Tombstones)
	assert.Positive(t, counting.saves)
}

func TestIndexer_SkipsCompactionBelowPolicy(t *testing.T) {
	var counting *countingIndex
	env := newTestEnvWith(t, func(s driven.DocumentStore, v driven.VectorIndex) (driven.DocumentStore, driven.VectorIndex) {
		counting = &countingIndex{VectorIndex: v}
		return s, counting
	}, CompactionPolicy{Ratio: 0.5, MinTombstones: 2})
	ctx := context.Background()

	doc, chunks := indexedDoc(env, "d1", "alpha")
	_, err := env.indexer.Commit(ctx, doc, chunks)
	require.NoError(t, err)
	doc, chunks = indexedDoc(env, "d2", "beta", "gamma", "delta")
	_, err = env.indexer.Commit(ctx, doc, chunks)
	require.NoError(t, err)

	_, err = env.indexer.Delete(ctx, "d1")
	require.NoError(t, err)

	assert.Equal(t, 0, counting.compactions)
	assert.Equal(t, 1, env.index.Stats().Tombstones)
}

func TestIndexer_DeleteSurvivesTombstoneFailure(t *testing.T) {
	env := newTestEnvWith(t, func(s driven.DocumentStore, v driven.VectorIndex) (driven.DocumentStore, driven.VectorIndex) {
		return s, &countingIndex{VectorIndex: v, deleteErr: errors.New("index busy")}
	}, CompactionPolicy{Ratio: 1, MinTombstones: 1000})
	ctx := context.Background()

	doc, chunks := indexedDoc(env, "d1", "alpha")
	_, err := env.indexer.Commit(ctx, doc, chunks)
	require.NoError(t, err)

	_, err = env.indexer.Delete(ctx, "d1")
	require.NoError(t, err)

	// The vector is still live, but search drops it because its chunk is gone.
	assert.True(t, env.index.Contains("d1-a"))
	resp, err := env.search.Search(ctx, "alpha", 5)
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
}

func TestIndexer_Reconcile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// A vector whose chunk never reached the store.
	_, err := env.index.Insert(ctx, []driven.VectorEntry{{ChunkID: "ghost", Embedding: env.embedder.vector("omega")}})
	require.NoError(t, err)

	// Chunks committed to the store whose vectors never reached the index.
	doc, chunks := indexedDoc(env, "d1", "alpha", "beta")
	_, err = env.store.CommitDocument(ctx, doc, chunks)
	require.NoError(t, err)

	// A stored chunk without an embedding cannot be restored.
	doc2, chunks2 := indexedDoc(env, "d2", "gamma")
	chunks2[0].Embedding = nil
	_, err = env.store.CommitDocument(ctx, doc2, chunks2)
	require.NoError(t, err)

	report, err := env.indexer.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Orphans)
	assert.Equal(t, 2, report.Restored)
	assert.Equal(t, 1, report.Skipped)

	assert.False(t, env.index.Contains("ghost"))
	assert.True(t, env.index.Contains("d1-a"))
	assert.True(t, env.index.Contains("d1-b"))

	// A second pass has nothing left to fix except the unrestorable chunk.
	report, err = env.indexer.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Orphans)
	assert.Zero(t, report.Restored)
	assert.Equal(t, 1, report.Skipped)
}

func TestIndexer_ReplaceMergesIntoCurrentDocument(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	doc, chunks := indexedDoc(env, "d1", "alpha")
	_, err := env.indexer.Commit(ctx, doc, chunks)
	require.NoError(t, err)

	title := "Kept"
	_, err = env.indexer.Update(ctx, "d1", domain.DocumentPatch{Title: &title})
	require.NoError(t, err)

	_, next := indexedDoc(env, "d1", "beta", "gamma")
	for i := range next {
		next[i].ID = "d1-next-" + next[i].ID
	}

	var seen string
	got, retired, err := env.indexer.Replace(ctx, "d1", next, func(current *domain.Document) {
		seen = current.Title
		current.Pages = 2
	})
	require.NoError(t, err)

	assert.Equal(t, "Kept", seen)
	assert.Equal(t, []string{"d1-a"}, retired)
	assert.Equal(t, 2, got.Pages)
	assert.False(t, env.index.Contains("d1-a"))
	assert.True(t, env.index.Contains("d1-next-d1-a"))

	stored, err := env.store.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "Kept", stored.Title)
	assert.Equal(t, 2, stored.Pages)
}

func TestIndexer_ReplaceMissingDocumentWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, chunks := indexedDoc(env, "gone", "alpha")
	called := false
	_, _, err := env.indexer.Replace(ctx, "gone", chunks, func(*domain.Document) { called = true })

	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.False(t, called)
	assert.Zero(t, env.index.Stats().Live)
	_, err = env.store.GetDocument(ctx, "gone")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
