// Package sqlite provides the SQLite implementation of driven.DocumentStore.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
// Chunks reference their document with ON DELETE CASCADE and carry their
// embedding as a little-endian float32 BLOB, so the vector index can always be
// rebuilt from this database.
//
// # Data Location
//
// By default, the database is stored at ~/.folio/data/metadata.db
//
// # Thread Safety
//
// All operations are thread-safe. The store uses database-level locking provided
// by SQLite in WAL mode.
package sqlite
