package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/folio/internal/core/domain"
)

func testDoc(id string) *domain.Document {
	return &domain.Document{
		ID:       id,
		Filename: id + ".pdf",
		Pages:    1,
		SHA256:   "sha-" + id,
		Metadata: map[string]any{"producer": "LaTeX"},
	}
}

func testChunks(docID string, n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = domain.Chunk{
			ID:         fmt.Sprintf("%s-%d", docID, i),
			DocumentID: docID,
			Position:   i,
			Page:       1,
			Content:    "text",
			Embedding:  []float32{1, 0},
		}
	}
	return out
}

func TestDocumentStore_CommitAndGet(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	retired, err := store.CommitDocument(ctx, testDoc("d1"), testChunks("d1", 2))
	require.NoError(t, err)
	assert.Empty(t, retired)

	doc, err := store.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1.pdf", doc.Filename)
	assert.False(t, doc.UploadedAt.IsZero())

	// Returned values are copies.
	doc.Metadata["producer"] = "changed"
	again, err := store.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "LaTeX", again.Metadata["producer"])

	n, err := store.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestDocumentStore_CommitReplacesGeneration(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	_, err := store.CommitDocument(ctx, testDoc("d1"), testChunks("d1", 2))
	require.NoError(t, err)

	next := []domain.Chunk{{ID: "fresh", DocumentID: "d1", Content: "new"}}
	retired, err := store.CommitDocument(ctx, testDoc("d1"), next)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1-0", "d1-1"}, retired)

	ids, err := store.ListChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, ids)
}

func TestDocumentStore_CommitValidation(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	_, err := store.CommitDocument(ctx, testDoc("d1"), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = store.CommitDocument(ctx, testDoc("d1"), testChunks("d2", 1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = store.CommitDocument(ctx, testDoc("d1"), testChunks("d1", 1))
	require.NoError(t, err)
	clash := testDoc("d2")
	clash.SHA256 = "sha-d1"
	_, err = store.CommitDocument(ctx, clash, testChunks("d2", 1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestDocumentStore_FindUpdateDelete(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	_, err := store.CommitDocument(ctx, testDoc("d1"), testChunks("d1", 3))
	require.NoError(t, err)

	found, err := store.FindBySHA256(ctx, "sha-d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", found.ID)

	author := "Vaswani"
	updated, err := store.UpdateDocument(ctx, "d1", domain.DocumentPatch{Author: &author})
	require.NoError(t, err)
	assert.Equal(t, "Vaswani", updated.Author)
	assert.Equal(t, fixed, updated.UpdatedAt)

	removed, err := store.DeleteDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1-0", "d1-1", "d1-2"}, removed)

	_, err = store.GetDocument(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.DeleteDocument(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.UpdateDocument(ctx, "d1", domain.DocumentPatch{Author: &author})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.FindBySHA256(ctx, "sha-d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentStore_ListNewestFirst(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		doc := testDoc(id)
		doc.UploadedAt = base.Add(time.Duration(i) * time.Minute)
		_, err := store.CommitDocument(ctx, doc, testChunks(id, 1))
		require.NoError(t, err)
	}

	docs, err := store.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "c", docs[0].ID)
	assert.Equal(t, "a", docs[2].ID)
}

func TestDocumentStore_GetChunksByIDs(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	_, err := store.CommitDocument(ctx, testDoc("d1"), testChunks("d1", 3))
	require.NoError(t, err)

	chunks, err := store.GetChunksByIDs(ctx, []string{"d1-2", "nope", "d1-0"})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "d1-2", chunks[0].ID)
	assert.Equal(t, "d1-0", chunks[1].ID)
}

func TestDocumentStore_ConcurrentCommits(t *testing.T) {
	store := NewDocumentStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("doc-%d", i)
			_, err := store.CommitDocument(ctx, testDoc(id), testChunks(id, 2))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	n, err := store.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
}
