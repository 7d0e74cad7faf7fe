package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raybunnage/dhg-mono-sub007/internal/config"
	"github.com/raybunnage/dhg-mono-sub007/internal/core/ports"
	"github.com/raybunnage/dhg-mono-sub007/internal/core/usecase"
	"github.com/raybunnage/dhg-mono-sub007/internal/infrastructure/extractor"
	"github.com/raybunnage/dhg-mono-sub007/internal/infrastructure/llm/openai"
	"github.com/raybunnage/dhg-mono-sub007/internal/infrastructure/queue/nats"
	"github.com/raybunnage/dhg-mono-sub007/internal/infrastructure/ratelimit"
	"github.com/raybunnage/dhg-mono-sub007/internal/infrastructure/repository/sqlstore"
	"github.com/raybunnage/dhg-mono-sub007/internal/infrastructure/resilience"
	"github.com/raybunnage/dhg-mono-sub007/internal/infrastructure/source/localdir"
)

// App wires the pipeline's adapters behind the core ports.
type App struct {
	Config config.Config
	Log    *slog.Logger

	Sources   ports.SourceRepository
	Documents ports.ExpertDocumentRepository
	Types     ports.DocumentTypeRepository
	Content   *localdir.Source
	Queue     ports.MessageQueue
	Limiter   *ratelimit.Limiter

	Pipeline *usecase.PipelineUseCase
	Intake   *usecase.IntakeUseCase

	closeFn func()
}

type Options struct {
	// Logger defaults to slog.Default. Binaries pass their own so every
	// line carries the service name.
	Logger *slog.Logger
	// Queue connects NATS so intake can publish discovery events.
	// Commands that never publish leave it off.
	Queue bool
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	return NewWithOptions(ctx, cfg, Options{})
}

func NewWithOptions(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	store, err := sqlstore.Open(cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	sources := sqlstore.NewSourceRepository(store)
	documents := sqlstore.NewExpertDocumentRepository(store)
	types := sqlstore.NewDocumentTypeRepository(store)

	content, err := localdir.New(cfg.SourceRoot, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init content source: %w", err)
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		Burst:             cfg.RateLimitBurst,
		WaitTimeout:       time.Duration(cfg.RateLimitWaitSeconds) * time.Second,
	})

	// The classifier executor is breaker-only. Per-item retry stays with
	// the batch executor, so re-sending here would multiply attempts.
	classifierExec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: 1,
		BreakerEnabled:   true,
	}, log)

	classifier := openai.NewClient(openai.Config{
		BaseURL:     cfg.ClassifierBaseURL,
		APIKey:      cfg.ClassifierAPIKey,
		Model:       cfg.ClassifierModel,
		Temperature: cfg.ClassifierTemperature,
		MaxTokens:   cfg.ClassifierMaxTokens,
		Timeout:     time.Duration(cfg.ClassifierTimeoutSeconds) * time.Second,
		Executor:    classifierExec,
		Backoff:     limiter,
		Logger:      log,
	})

	resolver := usecase.NewResolver(types, cfg.TypeOverrides, log)
	pipeline := usecase.NewPipelineUseCase(
		sources,
		documents,
		content,
		extractor.NewDefaultRegistry(),
		classifier,
		limiter,
		resolver,
		usecase.PipelineConfig{
			ClassifyMaxChars: cfg.ClassifyMaxChars,
			SkipMimePrefixes: cfg.SkipMimeTypes,
			ModelName:        cfg.ClassifierModel,
		},
		log,
	)

	var queue ports.MessageQueue
	closeQueue := func() {}
	if opts.Queue {
		// Queue publishes carry no retry budget of their own, so this
		// executor re-sends a few times before the breaker takes over.
		queueExec := resilience.NewExecutor(resilience.DefaultConfig(), log)
		q, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: queueExec,
		})
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("init message queue: %w", err)
		}
		queue = q
		closeQueue = q.Close
	}

	intake := usecase.NewIntakeUseCase(sources, documents, queue, log)

	return &App{
		Config:    cfg,
		Log:       log,
		Sources:   sources,
		Documents: documents,
		Types:     types,
		Content:   content,
		Queue:     queue,
		Limiter:   limiter,
		Pipeline:  pipeline,
		Intake:    intake,
		closeFn: func() {
			closeQueue()
			_ = store.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
