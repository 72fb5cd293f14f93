package cli

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/folio/internal/core/domain"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Ingest PDF files",
	Long: `Extracts, chunks, embeds and indexes the given PDFs. Directories are
walked recursively for *.pdf files. Re-ingesting identical bytes replaces the
existing document instead of creating a duplicate.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if err := requireService("ingest", ingestService != nil); err != nil {
		return err
	}

	paths, err := collectPDFs(args)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		cmd.Println("No PDF files found.")
		return nil
	}

	ctx := commandContext(cmd)
	var failed int
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			failed++
			cmd.Printf("  %s %s: %v\n", warningStyle.Render("✗"), path, err)
			continue
		}

		result, err := ingestService.Ingest(ctx, domain.Upload{
			Filename: filepath.Base(path),
			Content:  content,
		})
		if err != nil {
			failed++
			cmd.Printf("  %s %s: %v\n", warningStyle.Render("✗"), path, err)
			continue
		}
		printIngestResult(cmd, result)
	}

	cmd.Printf("\nIngested %d of %d files\n", len(paths)-failed, len(paths))
	if failed > 0 {
		return fmt.Errorf("%d file(s) failed", failed)
	}
	return nil
}

func printIngestResult(cmd *cobra.Command, r *domain.IngestResult) {
	verb := "added"
	if r.Replaced {
		verb = "replaced"
	}
	cmd.Printf("  %s %s %s: %d pages, %d chunks %s\n",
		successStyle.Render("✓"), r.Filename, verb, r.Pages, r.ChunksIndexed, mutedStyle.Render(r.DocumentID))
}

// collectPDFs expands directories into the PDFs beneath them.
// Explicit file arguments are kept regardless of extension so the
// pipeline can reject them with a proper error.
func collectPDFs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", arg, err)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != arg && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if isPDFName(d.Name()) {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", arg, err)
		}
	}
	return paths, nil
}

func isPDFName(name string) bool {
	return !strings.HasPrefix(name, ".") && strings.EqualFold(filepath.Ext(name), ".pdf")
}
