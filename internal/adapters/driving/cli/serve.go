package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/folio/internal/adapters/driving/httpapi"
	"github.com/custodia-labs/folio/internal/adapters/driving/watcher"
)

var (
	serveAddr  string
	serveInbox string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Starts the HTTP API for uploads, search and questions.

The listen address, base path, CORS origins and upload limit come from the
[server] settings; --addr overrides the address. With --inbox, PDFs dropped
into that directory are ingested while the server runs.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from settings)")
	serveCmd.Flags().StringVar(&serveInbox, "inbox", "", "directory to watch for new PDFs")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if err := requireService("settings", settingsService != nil); err != nil {
		return err
	}

	settings, err := settingsService.Get()
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	server, err := httpapi.NewServer(&httpapi.Ports{
		Ingest:   ingestService,
		Document: documentService,
		Search:   searchService,
		Answer:   answerService,
		Settings: settingsService,
	}, httpapi.Config{
		BasePath:       settings.Server.BasePath,
		CORSOrigins:    settings.Server.CORSOrigins,
		MaxUploadBytes: settings.Server.MaxUploadBytes,
	})
	if err != nil {
		return err
	}

	addr := settings.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	g, ctx := errgroup.WithContext(commandContext(cmd))
	g.Go(func() error {
		cmd.Printf("folio listening on http://%s%s\n", displayAddr(addr), settings.Server.BasePath)
		return server.Run(ctx, addr)
	})
	if serveInbox != "" {
		w := watcher.New(serveInbox, ingestService, documentService)
		g.Go(func() error {
			return w.Run(ctx)
		})
	}
	return g.Wait()
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
