package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/folio/internal/adapters/driving/watcher"
	"github.com/custodia-labs/folio/internal/core/domain"
)

var (
	watchScan   bool
	watchSettle time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Ingest PDFs dropped into a directory",
	Long: `Watches a directory and ingests each PDF once it stops changing.
Use --scan to also ingest PDFs already in the directory. Press Ctrl+C to stop.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchScan, "scan", false, "ingest existing PDFs before watching")
	watchCmd.Flags().DurationVar(&watchSettle, "settle", watcher.DefaultSettle, "quiet period before a file is ingested")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := requireService("ingest", ingestService != nil); err != nil {
		return err
	}

	w := watcher.New(args[0], ingestService, documentService,
		watcher.WithSettle(watchSettle),
		watcher.WithResultFunc(func(path string, result *domain.IngestResult, err error) {
			if err != nil {
				cmd.Printf("  %s %s: %v\n", warningStyle.Render("✗"), path, err)
				return
			}
			printIngestResult(cmd, result)
		}),
	)
	defer w.Close()

	ctx := commandContext(cmd)
	if watchScan {
		if err := w.Scan(ctx); err != nil {
			return err
		}
	}

	cmd.Printf("Watching %s (Ctrl+C to stop)\n", args[0])
	return w.Run(ctx)
}
