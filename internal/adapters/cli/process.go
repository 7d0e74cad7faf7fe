package cli

import (
	"github.com/spf13/cobra"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

var processCmd = &cobra.Command{
	Use:   "process [document-id...]",
	Short: "Run pending documents through the pipeline",
	Long: `Processes documents until they reach a settled status. With no
arguments every document in an actionable status (unprocessed,
needsClassification, needsReprocessing) is selected.`,
	RunE: runProcess,
}

var (
	processStatus      string
	processLimit       int
	processDryRun      bool
	processStopOnError bool
	processConcurrency int
)

func init() {
	processCmd.Flags().StringVar(&processStatus, "status", "", "pick documents in exactly this pipeline status")
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "cap selected documents per status (0 uses the repository default)")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "report what would run without touching any document")
	processCmd.Flags().BoolVar(&processStopOnError, "stop-on-error", false, "stop scheduling new documents after the first failure")
	processCmd.Flags().IntVar(&processConcurrency, "concurrency", 0, "worker pool size (0 uses the configured value)")
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	if pipeline == nil {
		return notConfigured("pipeline")
	}
	ctx := cmd.Context()

	ids := args
	if len(ids) == 0 {
		statuses := actionableStatuses
		if processStatus != "" {
			parsed, err := domain.ParsePipelineStatus(processStatus)
			if err != nil {
				return err
			}
			statuses = []domain.PipelineStatus{parsed}
		}
		selected, err := selectByStatus(ctx, statuses, processLimit)
		if err != nil {
			return err
		}
		ids = selected
	}
	if len(ids) == 0 {
		cmd.Println("No documents to process.")
		return nil
	}

	res, err := runPipelineBatch(ctx, cmd, ids, batchTuning{
		stopOnError: processStopOnError,
		dryRun:      processDryRun,
		concurrency: processConcurrency,
	})
	printBatchResult(cmd, res)
	return err
}
