// Package files stores original uploads on the local filesystem.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
)

// Ensure FileStore implements the interface.
var _ driven.FileStore = (*FileStore)(nil)

// FileStore keeps each upload in its own directory under root.
// References have the form "<uuid>/<filename>".
type FileStore struct {
	root string
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &FileStore{root: dir}, nil
}

// Root returns the directory uploads are stored under.
func (s *FileStore) Root() string {
	return s.root
}

// Put writes content under a fresh directory.
func (s *FileStore) Put(_ context.Context, filename string, content []byte) (string, error) {
	name := SanitizeFilename(filename)
	dir := uuid.NewString()
	if err := os.MkdirAll(filepath.Join(s.root, dir), 0o700); err != nil {
		return "", fmt.Errorf("creating upload directory: %w", err)
	}

	ref := dir + "/" + name
	if err := os.WriteFile(filepath.Join(s.root, dir, name), content, 0o600); err != nil {
		_ = os.RemoveAll(filepath.Join(s.root, dir)) //nolint:errcheck // already failing
		return "", fmt.Errorf("writing upload: %w", err)
	}
	return ref, nil
}

// Open returns a reader for a stored upload.
func (s *FileStore) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	path, err := s.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: stored file %s", domain.ErrNotFound, ref)
	}
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	return f, nil
}

// Delete removes a stored upload and its directory.
func (s *FileStore) Delete(_ context.Context, ref string) error {
	path, err := s.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Dir(path)); err != nil {
		return fmt.Errorf("removing upload: %w", err)
	}
	return nil
}

// resolve maps a reference to a path, rejecting anything that escapes root.
func (s *FileStore) resolve(ref string) (string, error) {
	dir, name, ok := strings.Cut(ref, "/")
	if !ok || uuid.Validate(dir) != nil || name == "" || name != SanitizeFilename(name) {
		return "", fmt.Errorf("%w: invalid file reference %q", domain.ErrInvalidInput, ref)
	}
	return filepath.Join(s.root, dir, name), nil
}

// SanitizeFilename reduces an upload name to a safe base name.
func SanitizeFilename(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '/' || r == ':' {
			return '_'
		}
		return r
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "upload.pdf"
	}
	return name
}
