package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var markCmd = &cobra.Command{
	Use:   "mark [document-id...]",
	Short: "Mark processed documents for reprocessing",
	Long: `Requests the explicit backward transition into needsReprocessing.
Only documents in processed, needsClassification or reprocessingDone
qualify.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMark,
}

var markReason string

func init() {
	markCmd.Flags().StringVarP(&markReason, "reason", "r", "", "why the document needs another pass")
	rootCmd.AddCommand(markCmd)
}

func runMark(cmd *cobra.Command, args []string) error {
	if pipeline == nil {
		return notConfigured("pipeline")
	}
	ctx := cmd.Context()

	var failed int
	for _, id := range args {
		if err := pipeline.MarkForReprocessing(ctx, id, markReason); err != nil {
			failed++
			cmd.Printf("%s: %v\n", id, err)
			continue
		}
		cmd.Printf("%s marked for reprocessing\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents could not be marked", failed, len(args))
	}
	return nil
}
