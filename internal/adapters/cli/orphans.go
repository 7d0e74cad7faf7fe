package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "List documents whose source vanished",
	Long: `Orphaned documents are kept for audit but excluded from all
processing. A document is orphaned when its source record is gone or
flagged deleted.`,
	RunE: runOrphans,
}

var orphansLimit int

func init() {
	orphansCmd.Flags().IntVar(&orphansLimit, "limit", 0, "cap listed documents (0 uses the repository default)")
	rootCmd.AddCommand(orphansCmd)
}

func runOrphans(cmd *cobra.Command, _ []string) error {
	if documentStore == nil {
		return notConfigured("document store")
	}
	ctx := cmd.Context()

	docs, err := documentStore.ListOrphaned(ctx, orphansLimit)
	if err != nil {
		return fmt.Errorf("list orphaned documents: %w", err)
	}
	if len(docs) == 0 {
		cmd.Println("No orphaned documents.")
		return nil
	}

	cmd.Println("Orphaned documents:")
	for i := range docs {
		doc := &docs[i]
		cmd.Printf("  %s\n", doc.ID)
		cmd.Printf("    Source:   %s\n", doc.SourceID)
		cmd.Printf("    Status:   %s\n", doc.PipelineStatus)
		if doc.OrphanedAt != nil {
			cmd.Printf("    Orphaned: %s\n", doc.OrphanedAt.Format("2006-01-02 15:04:05"))
		}
		if doc.ClassificationMetadata.LastError != "" {
			cmd.Printf("    Note:     %s\n", doc.ClassificationMetadata.LastError)
		}
		cmd.Println()
	}
	cmd.Printf("Total: %d orphaned documents\n", len(docs))
	return nil
}
