package hnsw

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
	"github.com/custodia-labs/folio/internal/logger"
)

// Ensure Index implements the interface.
var _ driven.VectorIndex = (*Index)(nil)

// Default configuration values.
const (
	DefaultM              = 16
	DefaultEfConstruction = 200
	DefaultEfSearch       = 64
	DefaultSeed           = 42
)

// ErrClosed is returned by operations on a closed index.
var ErrClosed = errors.New("hnsw: index is closed")

var errZeroVector = fmt.Errorf("%w: zero vector", domain.ErrInvalidInput)

// Config holds index parameters.
type Config struct {
	// Path is the persistence file. Empty keeps the index in memory only.
	Path string

	// Dimensions is the vector size (required).
	Dimensions int

	// Signature identifies the embedding space. An existing file built
	// under a different signature fails to open.
	Signature string

	// M is the number of links per node on upper layers (default: 16).
	M int

	// EfConstruction is the candidate list size while inserting (default: 200).
	EfConstruction int

	// EfSearch is the minimum candidate list size while searching (default: 64).
	EfSearch int

	// Seed drives level assignment (default: 42).
	Seed uint64
}

// entry is one inserted vector. Its position in Index.entries is its id.
type entry struct {
	chunkID string
	vec     []float32
	deleted bool
}

// Index is an HNSW vector index.
//
// Writers serialise on writeMu. Readers only take mu, so searches run
// concurrently with each other and with the preparation phase of a writer.
type Index struct {
	writeMu sync.Mutex
	mu      sync.RWMutex

	cfg        Config
	graph      *graph
	entries    []entry
	byChunk    map[string]uint64
	tombstones int
	closed     bool

	// dirty is guarded by writeMu.
	dirty bool
}

// New creates an index, loading it from cfg.Path when the file exists.
func New(cfg Config) (*Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, errors.New("hnsw: dimensions must be positive")
	}
	if cfg.M <= 1 {
		cfg.M = DefaultM
	}
	if cfg.EfConstruction <= 0 {
		cfg.EfConstruction = DefaultEfConstruction
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = DefaultEfSearch
	}
	if cfg.Seed == 0 {
		cfg.Seed = DefaultSeed
	}

	idx := &Index{
		cfg:     cfg,
		graph:   newGraph(cfg.M, cfg.EfConstruction, cfg.Seed),
		byChunk: make(map[string]uint64),
	}
	if cfg.Path == "" {
		return idx, nil
	}

	f, err := os.Open(cfg.Path)
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hnsw: open %s: %w", cfg.Path, err)
	}
	defer f.Close()

	snap, err := readSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("hnsw: load %s: %w", cfg.Path, err)
	}
	if snap.signature != cfg.Signature || snap.dimensions != cfg.Dimensions {
		return nil, fmt.Errorf("%w: index built for %q (%d dims), configured for %q (%d dims)",
			domain.ErrProviderMismatch, snap.signature, snap.dimensions, cfg.Signature, cfg.Dimensions)
	}

	done := logger.Timed("hnsw: rebuild graph")
	for _, e := range snap.entries {
		idx.append(e)
	}
	done()
	logger.Debug("hnsw: loaded %d entries (%d tombstones)", len(idx.entries), idx.tombstones)
	return idx, nil
}

// append adds e to the entry list and graph. Caller holds mu for writing.
func (idx *Index) append(e entry) uint64 {
	id := idx.graph.add(e.vec)
	idx.entries = append(idx.entries, e)
	if e.deleted {
		idx.tombstones++
	} else {
		idx.byChunk[e.chunkID] = id
	}
	return id
}

// Insert adds entries. Every entry is validated before any is inserted.
func (idx *Index) Insert(ctx context.Context, entries []driven.VectorEntry) ([]uint64, error) {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	if idx.isClosed() {
		return nil, ErrClosed
	}

	prepared := make([]entry, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for i, e := range entries {
		if e.ChunkID == "" {
			return nil, fmt.Errorf("%w: entry %d has no chunk id", domain.ErrInvalidInput, i)
		}
		if _, dup := seen[e.ChunkID]; dup || idx.Contains(e.ChunkID) {
			return nil, fmt.Errorf("%w: chunk %s already indexed", domain.ErrIndexConsistency, e.ChunkID)
		}
		seen[e.ChunkID] = struct{}{}

		vec, err := idx.normalise(e.Embedding)
		if err != nil {
			return nil, fmt.Errorf("entry %d (%s): %w", i, e.ChunkID, err)
		}
		prepared[i] = entry{chunkID: e.ChunkID, vec: vec}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	ids := make([]uint64, len(prepared))
	for i, e := range prepared {
		ids[i] = idx.append(e)
	}
	if len(ids) > 0 {
		idx.dirty = true
	}
	return ids, nil
}

// normalise checks dimension and finiteness and returns a unit-length copy.
func (idx *Index) normalise(v []float32) ([]float32, error) {
	if len(v) != idx.cfg.Dimensions {
		return nil, fmt.Errorf("%w: vector has %d dimensions, index has %d",
			domain.ErrProviderMismatch, len(v), idx.cfg.Dimensions)
	}
	for _, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil, fmt.Errorf("%w: vector contains non-finite values", domain.ErrInvalidInput)
		}
	}
	mag := magnitude(v)
	if mag == 0 {
		return nil, errZeroVector
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x / mag
	}
	return out, nil
}

// Search finds the k most similar live entries.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]driven.VectorHit, error) {
	if k <= 0 {
		return nil, nil
	}
	q, err := idx.normalise(query)
	if errors.Is(err, errZeroVector) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.closed {
		return nil, ErrClosed
	}

	total := idx.graph.len()
	ef := max(idx.cfg.EfSearch, k)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found := idx.graph.knn(q, ef)
		hits := make([]driven.VectorHit, 0, min(k, len(found)))
		for _, c := range found {
			e := idx.entries[c.id]
			if e.deleted {
				continue
			}
			hits = append(hits, driven.VectorHit{
				ID:         c.id,
				ChunkID:    e.chunkID,
				Similarity: 1 - float64(c.dist),
			})
			if len(hits) == k {
				break
			}
		}
		// Tombstones can crowd live entries out of the candidate list.
		if len(hits) == k || ef >= total {
			return hits, nil
		}
		ef *= 2
	}
}

// SoftDelete tombstones the live entries for chunkIDs.
func (idx *Index) SoftDelete(_ context.Context, chunkIDs ...string) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.closed {
		return ErrClosed
	}
	for _, chunkID := range chunkIDs {
		id, ok := idx.byChunk[chunkID]
		if !ok {
			continue
		}
		idx.entries[id].deleted = true
		delete(idx.byChunk, chunkID)
		idx.tombstones++
		idx.dirty = true
	}
	return nil
}

// Compact rebuilds the graph from live entries, preserving their order.
// Internal ids are reassigned. Searches keep using the old graph until the
// new one is swapped in.
func (idx *Index) Compact(ctx context.Context) error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	if idx.isClosed() {
		return ErrClosed
	}

	// Writers are excluded, so entries are stable while the rebuild runs.
	next := &Index{
		cfg:     idx.cfg,
		graph:   newGraph(idx.cfg.M, idx.cfg.EfConstruction, idx.cfg.Seed),
		byChunk: make(map[string]uint64, len(idx.byChunk)),
	}
	for _, e := range idx.entries {
		if e.deleted {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		next.append(e)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	logger.Info("hnsw: compacted %d entries, dropped %d tombstones", len(next.entries), idx.tombstones)
	idx.graph = next.graph
	idx.entries = next.entries
	idx.byChunk = next.byChunk
	idx.tombstones = 0
	idx.dirty = true
	return nil
}

// Contains reports whether chunkID has a live entry.
func (idx *Index) Contains(chunkID string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	_, ok := idx.byChunk[chunkID]
	return ok
}

// ChunkIDs returns the live chunk IDs in insertion order.
func (idx *Index) ChunkIDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	ids := make([]string, 0, len(idx.byChunk))
	for _, e := range idx.entries {
		if !e.deleted {
			ids = append(ids, e.chunkID)
		}
	}
	return ids
}

// Stats reports index occupancy.
func (idx *Index) Stats() driven.VectorStats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return driven.VectorStats{
		Live:       len(idx.byChunk),
		Tombstones: idx.tombstones,
		Dimensions: idx.cfg.Dimensions,
		Signature:  idx.cfg.Signature,
	}
}

// Save writes the index to its path if it changed since the last save.
func (idx *Index) Save() error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()
	return idx.save()
}

func (idx *Index) save() error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if idx.cfg.Path == "" || !idx.dirty {
		return nil
	}
	snap := &snapshot{
		signature:  idx.cfg.Signature,
		dimensions: idx.cfg.Dimensions,
		entries:    idx.entries,
	}
	if err := writeSnapshotFile(idx.cfg.Path, snap); err != nil {
		return fmt.Errorf("hnsw: save %s: %w", idx.cfg.Path, err)
	}
	idx.dirty = false
	return nil
}

// Close saves the index and rejects further use.
func (idx *Index) Close() error {
	idx.writeMu.Lock()
	defer idx.writeMu.Unlock()

	if idx.isClosed() {
		return nil
	}
	err := idx.save()

	idx.mu.Lock()
	idx.closed = true
	idx.mu.Unlock()
	return err
}

func (idx *Index) isClosed() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.closed
}
