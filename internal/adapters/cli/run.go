package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/raybunnage/dhg-mono-sub007/internal/batch"
	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

// actionableStatuses are the statuses Advance acts on; settled and
// terminal documents are never selected.
var actionableStatuses = []domain.PipelineStatus{
	domain.StatusUnprocessed,
	domain.StatusNeedsClassification,
	domain.StatusNeedsReprocessing,
}

func selectByStatus(ctx context.Context, statuses []domain.PipelineStatus, limit int) ([]string, error) {
	var ids []string
	for _, s := range statuses {
		docs, err := documentStore.ListByStatus(ctx, s, limit)
		if err != nil {
			return nil, fmt.Errorf("list %s documents: %w", s, err)
		}
		for i := range docs {
			ids = append(ids, docs[i].ID)
		}
	}
	return ids, nil
}

type batchTuning struct {
	stopOnError bool
	dryRun      bool
	concurrency int
}

func runPipelineBatch(ctx context.Context, cmd *cobra.Command, ids []string, tuning batchTuning) (batch.Result, error) {
	out := cmd.OutOrStdout()
	opts := batch.Options{
		BatchSize:       appConfig.BatchSize,
		Concurrency:     appConfig.BatchConcurrency,
		MaxAttempts:     appConfig.RetryAttempts,
		BackoffBase:     time.Duration(appConfig.BackoffBaseMS) * time.Millisecond,
		BackoffMax:      time.Duration(appConfig.BackoffMaxMS) * time.Millisecond,
		ContinueOnError: !tuning.stopOnError,
		ErrorListCap:    appConfig.ErrorListCap,
		DryRun:          tuning.dryRun,
		Logger:          slog.Default(),
		OnProgress: func(p batch.Progress) {
			fmt.Fprintf(out, "\rprocessed %d/%d  %.1f docs/s  eta %.0fs ", p.Processed, p.Total, p.Rate, p.ETASeconds)
		},
		// Documents whose classifier reply stayed malformed through the
		// whole retry budget move to needsReprocessing instead of
		// sitting in needsClassification forever.
		OnExhausted: batch.MarkMalformedExhausted(pipeline, slog.Default()),
	}
	if tuning.concurrency > 0 {
		opts.Concurrency = tuning.concurrency
	}

	res, err := batch.NewExecutor(pipeline, opts).Run(ctx, ids)
	if res.Succeeded+res.Failed > 0 {
		fmt.Fprintln(out)
	}
	return res, err
}

func printBatchResult(cmd *cobra.Command, res batch.Result) {
	cmd.Printf("Total: %d  Succeeded: %d  Failed: %d  Skipped: %d  (%.1fs)\n",
		res.Total, res.Succeeded, res.Failed, res.Skipped, res.Duration.Seconds())
	if len(res.Errors) == 0 {
		return
	}
	cmd.Println("\nFailures:")
	for _, ie := range res.Errors {
		cmd.Printf("  %s: %v (attempts %d)\n", ie.DocumentID, ie.Err, ie.Attempts)
	}
	if res.ErrorsTruncated {
		cmd.Printf("  ... error list capped at %d entries, %d documents failed in total\n",
			len(res.Errors), res.Failed)
	}
}
