// Package cli implements the docpipe command tree. Commands stay thin:
// they select documents and hand the work to the use cases wired by
// bootstrap.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/raybunnage/dhg-mono-sub007/internal/bootstrap"
	"github.com/raybunnage/dhg-mono-sub007/internal/config"
	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
	"github.com/raybunnage/dhg-mono-sub007/internal/core/ports"
	"github.com/raybunnage/dhg-mono-sub007/internal/observability/logging"
)

// contentScanner is the slice of the local content source the discover
// command needs.
type contentScanner interface {
	Scan(ctx context.Context) ([]domain.SourceRecord, error)
	Watch(ctx context.Context, handler func(context.Context, *domain.SourceRecord, bool) error) error
}

// Wired by wireApp before any RunE fires; tests swap these directly.
var (
	app *bootstrap.App

	appConfig     config.Config
	pipeline      ports.DocumentPipeline
	intake        ports.SourceIntake
	documentStore ports.ExpertDocumentRepository
	sourceStore   ports.SourceRepository
	typeStore     ports.DocumentTypeRepository
	contentDir    contentScanner
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "docpipe",
	Short: "Drive documents through the processing pipeline",
	Long: `docpipe admits discovered source files, extracts their text,
classifies them against the document type taxonomy and tracks each
document's progress through the pipeline statuses.`,
	SilenceUsage:      true,
	PersistentPreRunE: wireApp,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config overlay (defaults to $CONFIG_FILE)")
}

func wireApp(cmd *cobra.Command, _ []string) error {
	if pipeline != nil {
		return nil
	}
	switch cmd.Name() {
	case "help", cobra.ShellCompRequestCmd:
		return nil
	}

	if configFile != "" {
		os.Setenv("CONFIG_FILE", configFile)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New("docpipe", cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	a, err := bootstrap.NewWithOptions(cmd.Context(), cfg, bootstrap.Options{
		Logger: log,
		// Only discover publishes events; everything else works off
		// the database.
		Queue: cmd.Name() == "discover",
	})
	if err != nil {
		return err
	}

	app = a
	appConfig = cfg
	pipeline = a.Pipeline
	intake = a.Intake
	documentStore = a.Documents
	sourceStore = a.Sources
	typeStore = a.Types
	contentDir = a.Content
	return nil
}

// Execute runs the command tree and releases bootstrap resources.
func Execute(ctx context.Context) error {
	defer func() {
		if app != nil {
			app.Close()
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func notConfigured(what string) error {
	return errors.New(what + " not configured")
}
