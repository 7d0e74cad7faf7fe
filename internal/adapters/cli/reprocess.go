package cli

import (
	"github.com/spf13/cobra"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess [document-id...]",
	Short: "Run documents marked for reprocessing",
	Long: `Re-extracts documents in needsReprocessing and re-classifies the
ones whose content actually changed. Use "docpipe mark" to request
reprocessing first.`,
	RunE: runReprocess,
}

var (
	reprocessLimit       int
	reprocessDryRun      bool
	reprocessStopOnError bool
)

func init() {
	reprocessCmd.Flags().IntVar(&reprocessLimit, "limit", 0, "cap selected documents (0 uses the repository default)")
	reprocessCmd.Flags().BoolVar(&reprocessDryRun, "dry-run", false, "report what would run without touching any document")
	reprocessCmd.Flags().BoolVar(&reprocessStopOnError, "stop-on-error", false, "stop scheduling new documents after the first failure")
	rootCmd.AddCommand(reprocessCmd)
}

func runReprocess(cmd *cobra.Command, args []string) error {
	if pipeline == nil {
		return notConfigured("pipeline")
	}
	ctx := cmd.Context()

	ids := args
	if len(ids) == 0 {
		selected, err := selectByStatus(ctx, []domain.PipelineStatus{domain.StatusNeedsReprocessing}, reprocessLimit)
		if err != nil {
			return err
		}
		ids = selected
	}
	if len(ids) == 0 {
		cmd.Println("No documents are marked for reprocessing.")
		return nil
	}

	res, err := runPipelineBatch(ctx, cmd, ids, batchTuning{
		stopOnError: reprocessStopOnError,
		dryRun:      reprocessDryRun,
	})
	printBatchResult(cmd, res)
	return err
}
