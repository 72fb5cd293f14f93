package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) (*Store, driven.DocumentStore) {
	t.Helper()

	store, err := NewStore(t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })

	return store, store.DocumentStore()
}

func testDocument(id string, uploaded time.Time) *domain.Document {
	return &domain.Document{
		ID:         id,
		Filename:   id + ".pdf",
		StorageRef: "ref-" + id,
		Pages:      2,
		SHA256:     "sha-" + id,
		Metadata:   map[string]any{"producer": "pdfTeX"},
		UploadedAt: uploaded,
		UpdatedAt:  uploaded,
	}
}

func testChunks(docID string, n int) []domain.Chunk {
	chunks := make([]domain.Chunk, n)
	for i := range chunks {
		chunks[i] = domain.Chunk{
			ID:         fmt.Sprintf("%s-c%d", docID, i),
			DocumentID: docID,
			Position:   i,
			Page:       i/2 + 1,
			StartChar:  i * 680,
			EndChar:    i*680 + 800,
			Content:    fmt.Sprintf("chunk %d of %s", i, docID),
			Embedding:  []float32{float32(i), 0.5, -1},
		}
	}
	return chunks
}

// ==================== Store Creation Tests ====================

func TestNewStore_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, filepath.Join(dir, "metadata.db"), store.Path())
	assert.FileExists(t, store.Path())
}

func TestNewStore_MigrationsAreIdempotent(t *testing.T) {
	dir := t.TempDir()

	store, err := NewStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewStore(dir)
	require.NoError(t, err)
	defer store.Close()

	var versions int
	require.NoError(t, store.db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 1, versions)
}

// ==================== Document Store Tests ====================

func TestCommitDocument_RoundTrip(t *testing.T) {
	_, ds := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	doc := testDocument("d1", now)
	year := 2021
	doc.Year = &year

	retired, err := ds.CommitDocument(ctx, doc, testChunks("d1", 3))
	require.NoError(t, err)
	assert.Empty(t, retired)

	got, err := ds.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1.pdf", got.Filename)
	assert.Equal(t, "ref-d1", got.StorageRef)
	assert.Equal(t, 2, got.Pages)
	require.NotNil(t, got.Year)
	assert.Equal(t, 2021, *got.Year)
	assert.Equal(t, "pdfTeX", got.Metadata["producer"])
	assert.True(t, now.Equal(got.UploadedAt))

	chunks, err := ds.GetChunks(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "d1-c2", chunks[2].ID)
	assert.Equal(t, 2, chunks[2].Page)
	assert.Equal(t, 1360, chunks[2].StartChar)
	assert.Equal(t, []float32{2, 0.5, -1}, chunks[2].Embedding)
}

func TestCommitDocument_ReplacesGeneration(t *testing.T) {
	_, ds := setupTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := ds.CommitDocument(ctx, testDocument("d1", now), testChunks("d1", 2))
	require.NoError(t, err)

	next := testChunks("d1", 1)
	next[0].ID = "d1-new"
	retired, err := ds.CommitDocument(ctx, testDocument("d1", now), next)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1-c0", "d1-c1"}, retired)

	ids, err := ds.ListChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1-new"}, ids)
}

func TestCommitDocument_Rejects(t *testing.T) {
	_, ds := setupTestStore(t)
	ctx := context.Background()

	_, err := ds.CommitDocument(ctx, testDocument("d1", time.Now()), nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ds.CommitDocument(ctx, testDocument("d1", time.Now()), testChunks("other", 1))
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = ds.GetDocument(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCommitDocument_FailureLeavesPreviousGeneration(t *testing.T) {
	_, ds := setupTestStore(t)
	ctx := context.Background()

	_, err := ds.CommitDocument(ctx, testDocument("d1", time.Now().UTC()), testChunks("d1", 2))
	require.NoError(t, err)

	// Duplicate chunk IDs violate the primary key midway through the insert.
	dup := testChunks("d1", 2)
	dup[1].ID = dup[0].ID
	_, err = ds.CommitDocument(ctx, testDocument("d1", time.Now().UTC()), dup)
	require.Error(t, err)

	ids, err := ds.ListChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1-c0", "d1-c1"}, ids)
}

func TestFindBySHA256(t *testing.T) {
	_, ds := setupTestStore(t)
	ctx := context.Background()

	_, err := ds.CommitDocument(ctx, testDocument("d1", time.Now().UTC()), testChunks("d1", 1))
	require.NoError(t, err)

	got, err := ds.FindBySHA256(ctx, "sha-d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", got.ID)

	_, err = ds.FindBySHA256(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateDocument(t *testing.T) {
	store, ds := setupTestStore(t)
	ctx := context.Background()
	edited := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return edited }

	_, err := ds.CommitDocument(ctx, testDocument("d1", time.Now().UTC()), testChunks("d1", 1))
	require.NoError(t, err)

	title := "Attention Is All You Need"
	year := 2017
	got, err := ds.UpdateDocument(ctx, "d1", domain.DocumentPatch{
		Title:    &title,
		Year:     &year,
		Metadata: map[string]any{"producer": nil, "venue": "NeurIPS"},
	})
	require.NoError(t, err)
	assert.Equal(t, title, got.Title)
	assert.Equal(t, edited, got.UpdatedAt)

	reloaded, err := ds.GetDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, title, reloaded.Title)
	assert.Equal(t, 2017, *reloaded.Year)
	assert.Equal(t, map[string]any{"venue": "NeurIPS"}, reloaded.Metadata)

	_, err = ds.UpdateDocument(ctx, "missing", domain.DocumentPatch{Title: &title})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteDocument_Cascades(t *testing.T) {
	_, ds := setupTestStore(t)
	ctx := context.Background()

	_, err := ds.CommitDocument(ctx, testDocument("d1", time.Now().UTC()), testChunks("d1", 2))
	require.NoError(t, err)
	_, err = ds.CommitDocument(ctx, testDocument("d2", time.Now().UTC()), testChunks("d2", 1))
	require.NoError(t, err)

	removed, err := ds.DeleteDocument(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, []string{"d1-c0", "d1-c1"}, removed)

	n, err := ds.CountChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = ds.DeleteDocument(ctx, "d1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListDocuments_NewestFirst(t *testing.T) {
	_, ds := setupTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "new", "mid"} {
		offsets := []time.Duration{0, 2 * time.Hour, time.Hour}
		_, err := ds.CommitDocument(ctx, testDocument(id, base.Add(offsets[i])), testChunks(id, 1))
		require.NoError(t, err)
	}

	docs, err := ds.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{docs[0].ID, docs[1].ID, docs[2].ID})
}

func TestGetChunksByIDs_SkipsMissingAndKeepsOrder(t *testing.T) {
	_, ds := setupTestStore(t)
	ctx := context.Background()

	_, err := ds.CommitDocument(ctx, testDocument("d1", time.Now().UTC()), testChunks("d1", 3))
	require.NoError(t, err)

	chunks, err := ds.GetChunksByIDs(ctx, []string{"d1-c2", "gone", "d1-c0"})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "d1-c2", chunks[0].ID)
	assert.Equal(t, "d1-c0", chunks[1].ID)

	chunks, err = ds.GetChunksByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestGetChunksByIDs_ManyIDs(t *testing.T) {
	_, ds := setupTestStore(t)
	ctx := context.Background()

	_, err := ds.CommitDocument(ctx, testDocument("d1", time.Now().UTC()), testChunks("d1", maxParams+20))
	require.NoError(t, err)

	ids, err := ds.ListChunkIDs(ctx)
	require.NoError(t, err)

	chunks, err := ds.GetChunksByIDs(ctx, ids)
	require.NoError(t, err)
	assert.Len(t, chunks, maxParams+20)
}
