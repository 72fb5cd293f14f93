package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/folio/internal/core/domain"
)

var (
	searchTopK int
	searchJSON bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Performs semantic search across all indexed PDFs.
The query is embedded and compared against every chunk; the best chunk of
each page is returned, most similar first.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 8, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := requireService("search", searchService != nil); err != nil {
		return err
	}

	resp, err := searchService.Search(commandContext(cmd), args[0], searchTopK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		return printJSON(cmd, resp)
	}
	printResults(cmd, resp)
	return nil
}

func printResults(cmd *cobra.Command, resp *domain.SearchResponse) {
	if len(resp.Results) == 0 {
		if resp.Note != "" {
			cmd.Println(resp.Note)
			return
		}
		cmd.Println("No results found.")
		return
	}

	cmd.Println(heading("Results:"))
	cmd.Println()
	for i, r := range resp.Results {
		name := r.Document.Title
		if name == "" {
			name = r.Document.Filename
		}
		cmd.Printf("  [%d] %s p.%d (%s)\n", i+1, name, r.Page, score(r.Score))
		cmd.Printf("      %s\n", mutedStyle.Render(r.Document.ID))
		if r.Snippet != "" {
			cmd.Println(snippetStyle.Render(r.Snippet))
		}
		cmd.Println()
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
