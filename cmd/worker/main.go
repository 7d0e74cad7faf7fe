package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raybunnage/dhg-mono-sub007/internal/batch"
	"github.com/raybunnage/dhg-mono-sub007/internal/bootstrap"
	"github.com/raybunnage/dhg-mono-sub007/internal/config"
	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
	"github.com/raybunnage/dhg-mono-sub007/internal/observability/logging"
	"github.com/raybunnage/dhg-mono-sub007/internal/observability/metrics"
)

const serviceName = "worker"

// perDocumentTimeout bounds one document's full pipeline run, model
// call included.
const perDocumentTimeout = 5 * time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logging.New(serviceName, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.NewWithOptions(ctx, cfg, bootstrap.Options{Logger: log, Queue: true})
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close()

	pm := metrics.NewPipelineMetrics(serviceName)
	go func() {
		if err := metrics.Serve(ctx, cfg.WorkerMetricsPort, pm.Handler(), log); err != nil {
			log.Error("metrics server", "error", err)
		}
	}()

	// Each delivery runs through the batch executor so the worker
	// honors the same retry budget and malformed-reply exhaustion
	// policy as CLI batch runs.
	exec := batch.NewExecutor(app.Pipeline, batch.Options{
		Concurrency:     1,
		MaxAttempts:     cfg.RetryAttempts,
		BackoffBase:     time.Duration(cfg.BackoffBaseMS) * time.Millisecond,
		BackoffMax:      time.Duration(cfg.BackoffMaxMS) * time.Millisecond,
		ContinueOnError: true,
		Logger:          log,
		OnExhausted:     batch.MarkMalformedExhausted(app.Pipeline, log),
	})

	log.Info("worker.subscribed", "subject", cfg.NATSSubject)
	return app.Queue.SubscribeSourceDiscovered(ctx, func(handlerCtx context.Context, sourceID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, perDocumentTimeout)
		defer cancel()
		return handleSource(processCtx, app, pm, exec, sourceID)
	})
}

func handleSource(ctx context.Context, app *bootstrap.App, pm *metrics.PipelineMetrics, exec *batch.Executor, sourceID string) error {
	doc, err := app.Intake.Admit(ctx, sourceID)
	if err != nil {
		return fmt.Errorf("admit source %s: %w", sourceID, err)
	}
	if doc.PipelineStatus == domain.StatusUnprocessed {
		pm.ObserveQueueLag(serviceName, time.Since(doc.CreatedAt))
	}

	stage := string(doc.PipelineStatus)
	pm.StartStage()
	start := time.Now()
	res, err := exec.Run(ctx, []string{doc.ID})
	if err == nil && len(res.Errors) > 0 {
		err = res.Errors[0].Err
	}
	pm.FinishStage(serviceName, stage, time.Since(start), err)
	if err != nil {
		return fmt.Errorf("process document %s: %w", doc.ID, err)
	}
	return nil
}
