package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Admit files from the source directory",
	Long: `Scans the configured source root, upserts a source record per file
and admits each one into the pipeline. With --watch the command keeps
running and picks up files as they appear or vanish.`,
	RunE: runDiscover,
}

var discoverWatch bool

func init() {
	discoverCmd.Flags().BoolVar(&discoverWatch, "watch", false, "keep watching the source root for changes")
	rootCmd.AddCommand(discoverCmd)
}

func runDiscover(cmd *cobra.Command, _ []string) error {
	if intake == nil || contentDir == nil {
		return notConfigured("intake")
	}
	ctx := cmd.Context()

	records, err := contentDir.Scan(ctx)
	if err != nil {
		return fmt.Errorf("scan source root: %w", err)
	}

	admitted := 0
	for i := range records {
		if err := admitSource(ctx, &records[i]); err != nil {
			cmd.Printf("%s: %v\n", records[i].PathHint, err)
			continue
		}
		admitted++
	}
	cmd.Printf("Admitted %d of %d sources.\n", admitted, len(records))

	if !discoverWatch {
		return nil
	}

	cmd.Println("Watching for changes (ctrl-c to stop)...")
	return contentDir.Watch(ctx, func(ctx context.Context, rec *domain.SourceRecord, removed bool) error {
		if removed {
			if err := retireSource(ctx, rec); err != nil {
				return err
			}
			cmd.Printf("retired %s\n", rec.PathHint)
			return nil
		}
		if err := admitSource(ctx, rec); err != nil {
			return err
		}
		cmd.Printf("admitted %s\n", rec.PathHint)
		return nil
	})
}

func admitSource(ctx context.Context, rec *domain.SourceRecord) error {
	if err := sourceStore.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upsert source: %w", err)
	}
	if _, err := intake.Admit(ctx, rec.ID); err != nil {
		return fmt.Errorf("admit source: %w", err)
	}
	return nil
}

// retireSource flags the source deleted so the pipeline orphans its
// document on the next touch.
func retireSource(ctx context.Context, rec *domain.SourceRecord) error {
	existing, err := sourceStore.GetByID(ctx, rec.ID)
	if domain.IsKind(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load source: %w", err)
	}
	existing.IsDeleted = true
	return sourceStore.Upsert(ctx, existing)
}
