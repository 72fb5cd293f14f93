package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and maintain the vector index",
}

var indexStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store and index occupancy",
	Args:  cobra.NoArgs,
	RunE:  runIndexStats,
}

var indexCompactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rebuild the index without deleted entries",
	Args:  cobra.NoArgs,
	RunE:  runIndexCompact,
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Re-ingest every document",
	Long: `Re-runs extraction, chunking and embedding for every stored document.
Needed after changing the embedding provider or model, since vectors from
different embedding spaces cannot be compared.`,
	Args: cobra.NoArgs,
	RunE: runIndexRebuild,
}

func init() {
	indexCmd.AddCommand(indexStatsCmd)
	indexCmd.AddCommand(indexCompactCmd)
	indexCmd.AddCommand(indexRebuildCmd)
	rootCmd.AddCommand(indexCmd)
}

func runIndexStats(cmd *cobra.Command, _ []string) error {
	if err := requireService("document", documentService != nil); err != nil {
		return err
	}

	stats, err := documentService.Stats(commandContext(cmd))
	if err != nil {
		return fmt.Errorf("failed to read stats: %w", err)
	}

	cmd.Println(heading("Index"))
	cmd.Printf("  Documents:  %d\n", stats.Documents)
	cmd.Printf("  Chunks:     %d\n", stats.Chunks)
	cmd.Printf("  Vectors:    %d\n", stats.Vectors)
	cmd.Printf("  Tombstones: %d\n", stats.Tombstones)
	cmd.Printf("  Dimensions: %d\n", stats.Dimensions)
	cmd.Printf("  Signature:  %s\n", stats.Signature)
	if stats.Vectors != stats.Chunks {
		cmd.Println(warningStyle.Render("  Vector and chunk counts differ; they are reconciled on next start."))
	}
	return nil
}

func runIndexCompact(cmd *cobra.Command, _ []string) error {
	if err := requireService("document", documentService != nil); err != nil {
		return err
	}

	if err := documentService.Compact(commandContext(cmd)); err != nil {
		return fmt.Errorf("compaction failed: %w", err)
	}
	cmd.Println("Index compacted.")
	return nil
}

func runIndexRebuild(cmd *cobra.Command, _ []string) error {
	if err := requireService("ingest", ingestService != nil); err != nil {
		return err
	}

	results, err := ingestService.ReindexAll(commandContext(cmd))
	for i := range results {
		printIngestResult(cmd, &results[i])
	}
	if err != nil {
		return fmt.Errorf("rebuild stopped after %d documents: %w", len(results), err)
	}

	cmd.Printf("Rebuilt %d documents.\n", len(results))
	return nil
}
