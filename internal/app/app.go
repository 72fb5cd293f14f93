// Package app wires adapters and services into a running application.
package app

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/custodia-labs/folio/internal/adapters/driven/ai"
	"github.com/custodia-labs/folio/internal/adapters/driven/config/file"
	"github.com/custodia-labs/folio/internal/adapters/driven/storage/files"
	"github.com/custodia-labs/folio/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/folio/internal/adapters/driven/vector/hnsw"
	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
	"github.com/custodia-labs/folio/internal/core/services"
	"github.com/custodia-labs/folio/internal/logger"
	"github.com/custodia-labs/folio/internal/normalisers/pdf"
	"github.com/custodia-labs/folio/internal/postprocessors/chunker"
)

// Files under the data directory.
const (
	IndexFile = "index.bin"
	DocsDir   = "docs"
	PromptDir = "prompts"
)

// LoadEnv reads a .env file from the working directory when one exists.
// Variables already set in the environment win.
func LoadEnv() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading .env: %w", err)
}

// NewSettings opens the TOML config under configDir (~/.folio when empty)
// and returns the settings service over it.
func NewSettings(configDir string) (*services.SettingsService, error) {
	store, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	return services.NewSettingsService(store, ai.NewConfigValidator()), nil
}

// App holds the services built from one settings snapshot.
type App struct {
	Settings *domain.AppSettings

	Ingest   *services.IngestService
	Document *services.DocumentService
	Search   *services.SearchService
	Answer   *services.AnswerService
	Indexer  *services.Indexer

	embedder driven.EmbeddingService
	closers  []func() error
}

// ResolveDataDir returns dir, or ~/.folio/data when dir is empty.
func ResolveDataDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, ".folio", "data"), nil
}

// Build opens the stores, creates the providers and reconciles the index
// with the metadata store. Anything opened before a failure is closed again.
func Build(ctx context.Context, settingsSvc *services.SettingsService) (_ *App, err error) {
	settings, err := settingsSvc.Get()
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}

	dataDir, err := ResolveDataDir(settings.DataDir)
	if err != nil {
		return nil, err
	}
	logger.Debug("data dir: %s", dataDir)

	a := &App{Settings: settings}
	defer func() {
		if err != nil {
			a.Close() //nolint:errcheck // already failing
		}
	}()

	store, err := sqlite.NewStore(dataDir)
	if err != nil {
		return nil, fmt.Errorf("opening metadata store: %w", err)
	}
	a.closers = append(a.closers, store.Close)

	fileStore, err := files.NewFileStore(filepath.Join(dataDir, DocsDir))
	if err != nil {
		return nil, fmt.Errorf("opening file store: %w", err)
	}

	embedder, err := ai.CreateEmbeddingService(&settings.Embedding)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrEmbeddingProvider, err)
	}
	a.closers = append(a.closers, embedder.Close)
	a.embedder = embedder

	dims := embedder.Dimensions()
	index, err := hnsw.New(hnsw.Config{
		Path:           filepath.Join(dataDir, IndexFile),
		Dimensions:     dims,
		Signature:      settings.Embedding.Signature(dims),
		M:              settings.Index.M,
		EfConstruction: settings.Index.EfConstruction,
		EfSearch:       settings.Index.EfSearch,
	})
	if err != nil {
		return nil, fmt.Errorf("opening vector index: %w", err)
	}
	// Closing the index saves it, so it must close before the store.
	a.closers = append([]func() error{index.Close}, a.closers...)

	llm := createLLM(settings)
	if llm != nil {
		a.closers = append(a.closers, llm.Close)
	}

	if err := pdf.CheckAvailable(); err != nil {
		logger.Warn("%v: uploads will fail until poppler-utils is installed", err)
	}

	a.Indexer = services.NewIndexer(store.DocumentStore(), index, services.CompactionPolicy{
		Ratio:         settings.Index.CompactRatio,
		MinTombstones: settings.Index.CompactMinTombstones,
	})

	report, err := a.Indexer.Reconcile(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciling index: %w", err)
	}
	if report.Orphans+report.Restored+report.Skipped > 0 {
		logger.Info("reconciled index: %d orphans removed, %d chunks restored, %d skipped",
			report.Orphans, report.Restored, report.Skipped)
	}

	chunks := chunker.New(
		chunker.WithChunkSize(settings.Chunking.Size),
		chunker.WithOverlap(settings.Chunking.Overlap),
	)
	prompts := file.NewPromptStore(filepath.Join(dataDir, PromptDir))

	a.Ingest = services.NewIngestService(pdf.New(), chunks, embedder, fileStore, store.DocumentStore(), a.Indexer)
	a.Document = services.NewDocumentService(store.DocumentStore(), fileStore, a.Indexer)
	a.Search = services.NewSearchService(embedder, index, store.DocumentStore(), settings.Search)
	a.Answer = services.NewAnswerService(a.Search, llm, prompts, settings.Answer, settings.LLM.Timeout)

	return a, nil
}

// createLLM builds the generation provider without pinging it, so an
// unreachable provider surfaces per question instead of blocking startup.
func createLLM(settings *domain.AppSettings) driven.LLMService {
	llm, err := ai.CreateLLMService(&settings.LLM)
	if err != nil {
		logger.Warn("LLM disabled: %v", err)
		return nil
	}
	if llm == nil {
		logger.Debug("no LLM configured; questions return contexts only")
	}
	return llm
}

// Close releases every opened resource, saving the index first.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
