// Package hnsw provides a pure-Go Hierarchical Navigable Small World index
// implementing driven.VectorIndex.
//
// Vectors are normalised on insert and compared by cosine similarity.
// Deletes are tombstones; Compact rebuilds the graph from live entries.
// The index persists as a flat list of entries and rebuilds its graph on load.
package hnsw
