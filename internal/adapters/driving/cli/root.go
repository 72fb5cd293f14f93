// Package cli implements folio's command-line interface using cobra.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/folio/internal/core/ports/driving"
	"github.com/custodia-labs/folio/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

// Services bundles the driving ports used by commands.
type Services struct {
	Ingest   driving.IngestService
	Document driving.DocumentService
	Search   driving.SearchService
	Answer   driving.AnswerService
	Settings driving.SettingsService
}

// Bootstrapper builds the services on first use. The returned cleanup
// runs after the command completes.
type Bootstrapper func(ctx context.Context) (*Services, func(), error)

var (
	ingestService   driving.IngestService
	documentService driving.DocumentService
	searchService   driving.SearchService
	answerService   driving.AnswerService
	settingsService driving.SettingsService
)

var (
	verbose   bool
	bootstrap Bootstrapper
	cleanup   func()
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Semantic search and question answering over your PDFs",
	Long: `folio ingests PDF documents, indexes them for semantic search and
answers questions grounded in the retrieved passages.

Run 'folio serve' to start the HTTP API, or use the subcommands directly.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logger.SetVerbose(verbose)
		if skipBootstrap(cmd) {
			return nil
		}
		return ensureServices(cmd.Context())
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if cleanup != nil {
			cleanup()
			cleanup = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// SetBootstrap registers the function that wires services on demand.
func SetBootstrap(b Bootstrapper) {
	bootstrap = b
}

// SetServices installs services directly, bypassing the bootstrapper.
func SetServices(s *Services) {
	ingestService = s.Ingest
	documentService = s.Document
	searchService = s.Search
	answerService = s.Answer
	settingsService = s.Settings
}

// Execute runs the root command. Services built by the bootstrapper are
// released even when the command fails.
func Execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if cleanup != nil {
		cleanup()
		cleanup = nil
	}
	return err
}

func ensureServices(ctx context.Context) error {
	if searchService != nil || bootstrap == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	svc, done, err := bootstrap(ctx)
	if err != nil {
		return fmt.Errorf("initialising: %w", err)
	}
	SetServices(svc)
	cleanup = done
	return nil
}

// skipBootstrap reports whether cmd runs without the index loaded.
func skipBootstrap(cmd *cobra.Command) bool {
	return cmd == versionCmd || cmd.Annotations["bootstrap"] == "settings"
}

// commandContext returns the command's context, defaulting to Background.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

var errNotConfigured = errors.New("service not configured")

func requireService(name string, ok bool) error {
	if !ok {
		return fmt.Errorf("%s %w", name, errNotConfigured)
	}
	return nil
}
