package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
	"github.com/custodia-labs/folio/internal/logger"
)

// CompactionPolicy decides when deletions trigger an index rebuild.
type CompactionPolicy struct {
	// Ratio is the tombstone share at or above which the index is compacted.
	Ratio float64

	// MinTombstones keeps tiny indexes from being rebuilt on every delete.
	MinTombstones int
}

// ReconcileReport describes the repairs made by Reconcile.
type ReconcileReport struct {
	// Orphans is the number of index entries with no stored chunk.
	Orphans int

	// Restored is the number of stored chunks re-inserted into the index.
	Restored int

	// Skipped is the number of stored chunks that could not be restored.
	Skipped int
}

// Indexer keeps the metadata store and the vector index in lockstep.
// It is the only writer of either; readers never take its lock.
type Indexer struct {
	mu     sync.Mutex
	store  driven.DocumentStore
	index  driven.VectorIndex
	policy CompactionPolicy
}

// NewIndexer creates an indexer over store and index.
func NewIndexer(store driven.DocumentStore, index driven.VectorIndex, policy CompactionPolicy) *Indexer {
	return &Indexer{
		store:  store,
		index:  index,
		policy: policy,
	}
}

// Commit inserts the vectors for chunks, then commits doc and chunks to the
// metadata store as one generation. If the metadata commit fails the new
// vectors are tombstoned again. Vectors of the replaced generation are
// tombstoned after the commit succeeds.
//
// Failures are returned as *domain.StageError carrying the last state reached.
func (x *Indexer) Commit(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	return x.commit(ctx, doc, chunks)
}

// Replace commits chunks as the new generation of an existing document.
// The document is re-read under the writer lock and handed to apply, so
// edits committed while the chunks were embedded survive. A document
// deleted in the meantime stays deleted: Replace returns domain.ErrNotFound
// and writes nothing.
func (x *Indexer) Replace(
	ctx context.Context,
	documentID string,
	chunks []domain.Chunk,
	apply func(current *domain.Document),
) (*domain.Document, []string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	current, err := x.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, nil, &domain.StageError{
			State: domain.IngestEmbedded,
			Err:   fmt.Errorf("reload document %s: %w", documentID, err),
		}
	}
	apply(current)

	retired, err := x.commit(ctx, current, chunks)
	if err != nil {
		return nil, nil, err
	}
	return current, retired, nil
}

// Update applies patch to a document's editable fields. It shares the
// writer lock so an edit is never overwritten by a concurrent Replace.
func (x *Indexer) Update(ctx context.Context, documentID string, patch domain.DocumentPatch) (*domain.Document, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	return x.store.UpdateDocument(ctx, documentID, patch)
}

// commit does the work of Commit. Caller holds x.mu.
func (x *Indexer) commit(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]string, error) {
	entries := make([]driven.VectorEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = driven.VectorEntry{ChunkID: c.ID, Embedding: c.Embedding}
	}

	if _, err := x.index.Insert(ctx, entries); err != nil {
		return nil, &domain.StageError{
			State: domain.IngestEmbedded,
			Err:   fmt.Errorf("insert vectors: %w", err),
		}
	}

	retired, err := x.store.CommitDocument(ctx, doc, chunks)
	if err != nil {
		err = fmt.Errorf("commit document: %w", err)
		// The insert succeeded, so roll it back even if ctx is done.
		if rbErr := x.index.SoftDelete(context.WithoutCancel(ctx), chunkIDs(chunks)...); rbErr != nil {
			logger.Error("rollback vectors for %s: %v", doc.ID, rbErr)
			err = errors.Join(err, fmt.Errorf("%w: rollback vectors: %w", domain.ErrIndexConsistency, rbErr))
		}
		return nil, &domain.StageError{State: domain.IngestIndexed, Err: err}
	}

	if len(retired) > 0 {
		if err := x.index.SoftDelete(context.WithoutCancel(ctx), retired...); err != nil {
			// Search filters chunks missing from the store; Reconcile
			// tombstones them on the next start.
			logger.Warn("retire %d vectors of %s: %v", len(retired), doc.ID, err)
		}
		x.maybeCompact(ctx)
	}
	x.persist()

	return retired, nil
}

// Delete removes a document from the store, then tombstones its vectors.
func (x *Indexer) Delete(ctx context.Context, documentID string) ([]string, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	removed, err := x.store.DeleteDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("delete document: %w", err)
	}

	if err := x.index.SoftDelete(context.WithoutCancel(ctx), removed...); err != nil {
		logger.Warn("tombstone %d vectors of %s: %v", len(removed), documentID, err)
	}
	x.maybeCompact(ctx)
	x.persist()

	return removed, nil
}

// Compact rebuilds the index without tombstones.
func (x *Indexer) Compact(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	if err := x.index.Compact(ctx); err != nil {
		return fmt.Errorf("compact index: %w", err)
	}
	x.persist()
	return nil
}

// Reconcile repairs disagreement between the store and the index, which
// can follow a crash between the two writes. Index entries without a
// stored chunk are tombstoned; stored chunks missing from the index are
// re-inserted from their persisted embeddings.
func (x *Indexer) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	x.mu.Lock()
	defer x.mu.Unlock()

	stored, err := x.store.ListChunkIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunk ids: %w", err)
	}
	storedSet := make(map[string]struct{}, len(stored))
	for _, id := range stored {
		storedSet[id] = struct{}{}
	}

	report := &ReconcileReport{}

	var orphans []string
	for _, id := range x.index.ChunkIDs() {
		if _, ok := storedSet[id]; !ok {
			orphans = append(orphans, id)
		}
	}
	if len(orphans) > 0 {
		if err := x.index.SoftDelete(ctx, orphans...); err != nil {
			return nil, fmt.Errorf("%w: tombstone orphans: %w", domain.ErrIndexConsistency, err)
		}
		report.Orphans = len(orphans)
		logger.Warn("reconcile: tombstoned %d orphaned vectors", len(orphans))
	}

	var missing []string
	for _, id := range stored {
		if !x.index.Contains(id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		chunks, err := x.store.GetChunksByIDs(ctx, missing)
		if err != nil {
			return nil, fmt.Errorf("load missing chunks: %w", err)
		}

		dims := x.index.Stats().Dimensions
		entries := make([]driven.VectorEntry, 0, len(chunks))
		for _, c := range chunks {
			if len(c.Embedding) == 0 || (dims > 0 && len(c.Embedding) != dims) {
				report.Skipped++
				continue
			}
			entries = append(entries, driven.VectorEntry{ChunkID: c.ID, Embedding: c.Embedding})
		}
		if len(entries) > 0 {
			if _, err := x.index.Insert(ctx, entries); err != nil {
				return nil, fmt.Errorf("%w: restore vectors: %w", domain.ErrIndexConsistency, err)
			}
		}
		report.Restored = len(entries)
		logger.Warn("reconcile: restored %d vectors, skipped %d", report.Restored, report.Skipped)
	}

	if report.Orphans > 0 || report.Restored > 0 {
		x.maybeCompact(ctx)
		x.persist()
	}

	return report, nil
}

// Stats reports index occupancy.
func (x *Indexer) Stats() driven.VectorStats {
	return x.index.Stats()
}

// maybeCompact compacts when the policy says so. Caller holds x.mu.
func (x *Indexer) maybeCompact(ctx context.Context) {
	stats := x.index.Stats()
	if stats.Tombstones == 0 || stats.Tombstones < x.policy.MinTombstones {
		return
	}
	if stats.TombstoneRatio() < x.policy.Ratio {
		return
	}

	logger.Info("compacting index: %d live, %d tombstones", stats.Live, stats.Tombstones)
	if err := x.index.Compact(ctx); err != nil {
		logger.Warn("compact index: %v", err)
	}
}

// persist saves the index. A failed save is recovered by Reconcile on the
// next start, so it is logged rather than returned.
func (x *Indexer) persist() {
	if err := x.index.Save(); err != nil {
		logger.Error("save index: %v", err)
	}
}

func chunkIDs(chunks []domain.Chunk) []string {
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}
	return ids
}
