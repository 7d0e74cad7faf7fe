package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show document counts per pipeline status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// statusOrder fixes the printing order; map iteration would shuffle it.
var statusOrder = []domain.PipelineStatus{
	domain.StatusUnprocessed,
	domain.StatusNeedsClassification,
	domain.StatusProcessed,
	domain.StatusNeedsReprocessing,
	domain.StatusReprocessingDone,
	domain.StatusSkipProcessing,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	if documentStore == nil {
		return notConfigured("document store")
	}
	ctx := cmd.Context()

	counts, err := documentStore.CountByStatus(ctx)
	if err != nil {
		return fmt.Errorf("count documents: %w", err)
	}
	orphaned, err := documentStore.CountOrphaned(ctx)
	if err != nil {
		return fmt.Errorf("count orphans: %w", err)
	}

	total := 0
	cmd.Println("Pipeline status:")
	for _, s := range statusOrder {
		cmd.Printf("  %-22s %d\n", s, counts[s])
		total += counts[s]
	}
	cmd.Printf("  %-22s %d\n", "orphaned", orphaned)
	cmd.Printf("\nTotal: %d documents\n", total+orphaned)
	return nil
}
