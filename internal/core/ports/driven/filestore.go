package driven

import (
	"context"
	"io"
)

// FileStore keeps the original upload bytes.
// References are opaque to callers.
type FileStore interface {
	// Put stores content and returns a reference to it.
	Put(ctx context.Context, filename string, content []byte) (string, error)

	// Open returns a reader for the stored bytes.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)

	// Delete removes the stored bytes. Missing references are not an error.
	Delete(ctx context.Context, ref string) error
}
