package driven

import "context"

// VectorIndex provides semantic similarity search operations.
// Deletion is logical: SoftDelete tombstones entries, which stay in the
// structure until Compact rebuilds it.
type VectorIndex interface {
	// Insert appends vectors. Either all entries are inserted or none.
	// Returns the internal ids assigned, aligned with entries.
	Insert(ctx context.Context, entries []VectorEntry) ([]uint64, error)

	// Search finds up to k nearest live neighbours to the query vector,
	// ordered by descending similarity. Ties are broken by insertion order.
	Search(ctx context.Context, query []float32, k int) ([]VectorHit, error)

	// SoftDelete tombstones every live entry for the given chunk IDs.
	// Unknown chunk IDs are ignored.
	SoftDelete(ctx context.Context, chunkIDs ...string) error

	// Compact rebuilds the index without tombstoned entries.
	Compact(ctx context.Context) error

	// Contains reports whether a live entry exists for chunkID.
	Contains(chunkID string) bool

	// ChunkIDs returns the chunk IDs of all live entries.
	ChunkIDs() []string

	// Stats reports index occupancy.
	Stats() VectorStats

	// Save persists the index.
	Save() error

	// Close persists and releases resources.
	Close() error
}

// VectorEntry is a vector to insert.
type VectorEntry struct {
	// ChunkID is the metadata store key for this vector.
	ChunkID string

	// Embedding is the vector. It is normalised on insert.
	Embedding []float32
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ID is the internal index id.
	ID uint64

	// ChunkID is the matched chunk.
	ChunkID string

	// Similarity is the cosine similarity score.
	Similarity float64
}

// VectorStats describes the index state.
type VectorStats struct {
	// Live is the number of searchable entries.
	Live int

	// Tombstones is the number of deleted entries awaiting compaction.
	Tombstones int

	// Dimensions is the vector size.
	Dimensions int

	// Signature identifies the embedding space the index was built in.
	Signature string
}

// TombstoneRatio returns tombstones as a share of all entries.
func (s VectorStats) TombstoneRatio() float64 {
	total := s.Live + s.Tombstones
	if total == 0 {
		return 0
	}
	return float64(s.Tombstones) / float64(total)
}
