package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/folio/internal/core/domain"
)

var documentCmd = &cobra.Command{
	Use:   "document",
	Short: "Manage indexed documents",
	Long:  `List, view, edit, delete, download or re-ingest indexed documents.`,
}

var documentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents, newest first",
	Args:  cobra.NoArgs,
	RunE:  runDocumentList,
}

var documentGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show document info",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentGet,
}

var documentUpdateCmd = &cobra.Command{
	Use:   "update [doc-id]",
	Short: "Edit document metadata",
	Long: `Sets the title, author, year or free-form metadata of a document.
Only the flags given are changed. Use --meta key= to remove a key.`,
	Args: cobra.ExactArgs(1),
	RunE: runDocumentUpdate,
}

var documentDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document",
	Long:  `Removes the document, its chunks, its vectors and its stored file.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDelete,
}

var documentDownloadCmd = &cobra.Command{
	Use:   "download [doc-id]",
	Short: "Save the original PDF",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentDownload,
}

var documentRefreshCmd = &cobra.Command{
	Use:   "refresh [doc-id]",
	Short: "Re-ingest a document from its stored file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentRefresh,
}

var documentChunksCmd = &cobra.Command{
	Use:   "chunks [doc-id]",
	Short: "Print a document's chunks in reading order",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentChunks,
}

var (
	listIncludeMeta bool
	listJSON        bool
	updateTitle     string
	updateAuthor    string
	updateYear      int
	updateMeta      map[string]string
	downloadOutput  string
)

func init() {
	documentListCmd.Flags().BoolVar(&listIncludeMeta, "meta", false, "include metadata")
	documentListCmd.Flags().BoolVar(&listJSON, "json", false, "output as JSON")

	documentUpdateCmd.Flags().StringVar(&updateTitle, "title", "", "document title")
	documentUpdateCmd.Flags().StringVar(&updateAuthor, "author", "", "document author")
	documentUpdateCmd.Flags().IntVar(&updateYear, "year", 0, "publication year")
	documentUpdateCmd.Flags().StringToStringVar(&updateMeta, "meta", nil, "metadata key=value pairs")

	documentDownloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "output path (default: original filename)")

	documentCmd.AddCommand(documentListCmd)
	documentCmd.AddCommand(documentGetCmd)
	documentCmd.AddCommand(documentUpdateCmd)
	documentCmd.AddCommand(documentDeleteCmd)
	documentCmd.AddCommand(documentDownloadCmd)
	documentCmd.AddCommand(documentRefreshCmd)
	documentCmd.AddCommand(documentChunksCmd)
	rootCmd.AddCommand(documentCmd)
}

func runDocumentList(cmd *cobra.Command, _ []string) error {
	if err := requireService("document", documentService != nil); err != nil {
		return err
	}

	docs, err := documentService.List(commandContext(cmd), listIncludeMeta)
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	if listJSON {
		return printJSON(cmd, docs)
	}

	if len(docs) == 0 {
		cmd.Println("No documents found.")
		return nil
	}

	cmd.Println(heading("Documents:"))
	cmd.Println()
	for i := range docs {
		cmd.Printf("  %s\n", docs[i].ID)
		cmd.Printf("    Title: %s\n", docs[i].DisplayName())
		cmd.Printf("    File:  %s (%d pages)\n", docs[i].Filename, docs[i].Pages)
		cmd.Printf("    Added: %s\n", docs[i].UploadedAt.Format("2006-01-02 15:04:05"))
		if listIncludeMeta {
			printMetadata(cmd, docs[i].Metadata, "    ")
		}
		cmd.Println()
	}

	cmd.Printf("Total: %d documents\n", len(docs))
	return nil
}

func runDocumentGet(cmd *cobra.Command, args []string) error {
	if err := requireService("document", documentService != nil); err != nil {
		return err
	}

	doc, err := documentService.Get(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	cmd.Printf("Document: %s\n\n", doc.ID)
	cmd.Printf("  Title:    %s\n", doc.DisplayName())
	cmd.Printf("  Author:   %s\n", doc.Author)
	if doc.Year != nil {
		cmd.Printf("  Year:     %d\n", *doc.Year)
	}
	cmd.Printf("  File:     %s\n", doc.Filename)
	cmd.Printf("  Pages:    %d\n", doc.Pages)
	cmd.Printf("  SHA-256:  %s\n", doc.SHA256)
	cmd.Printf("  Uploaded: %s\n", doc.UploadedAt.Format("2006-01-02 15:04:05"))
	cmd.Printf("  Updated:  %s\n", doc.UpdatedAt.Format("2006-01-02 15:04:05"))
	printMetadata(cmd, doc.Metadata, "  ")

	return nil
}

func runDocumentUpdate(cmd *cobra.Command, args []string) error {
	if err := requireService("document", documentService != nil); err != nil {
		return err
	}

	flags := cmd.Flags()
	var patch domain.DocumentPatch
	if flags.Changed("title") {
		patch.Title = &updateTitle
	}
	if flags.Changed("author") {
		patch.Author = &updateAuthor
	}
	if flags.Changed("year") {
		patch.Year = &updateYear
	}
	if flags.Changed("meta") {
		patch.Metadata = make(map[string]any, len(updateMeta))
		for k, v := range updateMeta {
			if v == "" {
				patch.Metadata[k] = nil
				continue
			}
			patch.Metadata[k] = v
		}
	}

	doc, err := documentService.Update(commandContext(cmd), args[0], patch)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	cmd.Printf("Document %s updated.\n", doc.ID)
	return nil
}

func runDocumentDelete(cmd *cobra.Command, args []string) error {
	if err := requireService("document", documentService != nil); err != nil {
		return err
	}

	if err := documentService.Delete(commandContext(cmd), args[0]); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	cmd.Printf("Document %s deleted.\n", args[0])
	return nil
}

func runDocumentDownload(cmd *cobra.Command, args []string) error {
	if err := requireService("document", documentService != nil); err != nil {
		return err
	}

	rc, doc, err := documentService.Open(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to open document: %w", err)
	}
	defer rc.Close()

	out := downloadOutput
	if out == "" {
		out = filepath.Base(doc.Filename)
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating %s: %w", out, err)
	}
	n, err := io.Copy(f, rc)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	cmd.Printf("Saved %s (%d bytes)\n", out, n)
	return nil
}

func runDocumentRefresh(cmd *cobra.Command, args []string) error {
	if err := requireService("ingest", ingestService != nil); err != nil {
		return err
	}

	cmd.Printf("Refreshing document %s...\n", args[0])

	result, err := ingestService.Reingest(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to refresh document: %w", err)
	}

	printIngestResult(cmd, result)
	return nil
}

func runDocumentChunks(cmd *cobra.Command, args []string) error {
	if err := requireService("document", documentService != nil); err != nil {
		return err
	}

	chunks, err := documentService.Chunks(commandContext(cmd), args[0])
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}

	for _, c := range chunks {
		cmd.Println(mutedStyle.Render(fmt.Sprintf("#%d p.%d [%d:%d] %s", c.Position, c.Page, c.StartChar, c.EndChar, c.ID)))
		cmd.Println(c.Content)
		cmd.Println()
	}
	return nil
}

func printMetadata(cmd *cobra.Command, meta map[string]any, indent string) {
	if len(meta) == 0 {
		return
	}
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cmd.Printf("\n%sMetadata:\n", indent)
	for _, k := range keys {
		cmd.Printf("%s  %s: %v\n", indent, k, meta[k])
	}
}
