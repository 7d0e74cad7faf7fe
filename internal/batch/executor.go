// Package batch runs the document pipeline over many documents with
// bounded concurrency, per-item retries and progress reporting.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

// Processor advances one document to a resting status.
type Processor interface {
	Process(ctx context.Context, documentID string) error
}

// Options tunes a batch run. Zero values are replaced by normalize.
type Options struct {
	// BatchSize is how many documents form one sequential slice.
	BatchSize int
	// Concurrency bounds the workers inside a slice.
	Concurrency int
	// MaxAttempts is the total number of tries per document, first
	// attempt included.
	MaxAttempts int
	// BackoffBase is the wait before the first retry; it doubles per
	// attempt up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// ContinueOnError keeps the run going after a document exhausts
	// its attempts. When false the first exhausted failure stops the
	// run.
	ContinueOnError bool
	// ErrorListCap bounds how many per-document errors the result
	// carries.
	ErrorListCap int
	// DryRun reports what would be processed without touching
	// anything.
	DryRun bool
	// OnProgress is invoked after every finished document. Calls are
	// serialized, so the callback may write to a shared sink directly.
	OnProgress func(Progress)
	// OnExhausted is invoked once per document whose attempts are all
	// spent, before the run moves on. Policy hooks live here.
	OnExhausted func(ctx context.Context, documentID string, err error)
	Logger      *slog.Logger
}

func (o Options) normalize() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 100
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 3
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 30 * time.Second
	}
	if o.ErrorListCap <= 0 {
		o.ErrorListCap = 25
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Progress is a point-in-time view of a running batch.
type Progress struct {
	Processed  int
	Total      int
	Succeeded  int
	Failed     int
	Rate       float64
	ETASeconds float64
}

// ItemError records the final failure of one document.
type ItemError struct {
	DocumentID string
	Attempts   int
	Err        error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("document %s failed after %d attempt(s): %v", e.DocumentID, e.Attempts, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// Result summarizes a finished run. Skipped counts documents that were
// never started because the run stopped early.
type Result struct {
	Total           int
	Succeeded       int
	Failed          int
	Skipped         int
	Errors          []ItemError
	ErrorsTruncated bool
	Duration        time.Duration
	Aborted         bool
}

// Executor fans documents out over a bounded worker pool, slice by
// slice.
type Executor struct {
	processor Processor
	opts      Options
	log       *slog.Logger
}

func NewExecutor(processor Processor, opts Options) *Executor {
	opts = opts.normalize()
	return &Executor{processor: processor, opts: opts, log: opts.Logger}
}

type runState struct {
	mu        sync.Mutex
	res       Result
	start     time.Time
	abort     error
	parentCtx context.Context
	cancel    context.CancelFunc
}

// Run processes the given documents. Duplicate and blank ids are
// dropped up front. The returned error is nil when the run itself
// completed; per-document failures live in Result.Errors. An
// authentication failure or a stop-on-error failure aborts the run,
// and cancelling ctx lets in-flight documents finish before returning.
func (e *Executor) Run(ctx context.Context, documentIDs []string) (Result, error) {
	ids := dedupe(documentIDs)

	if e.opts.DryRun {
		e.log.Info("batch.dry_run", "total", len(ids))
		return Result{Total: len(ids), Skipped: len(ids)}, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := &runState{
		res:       Result{Total: len(ids)},
		start:     time.Now(),
		parentCtx: ctx,
		cancel:    cancel,
	}

	e.log.Info("batch.run_start",
		"total", len(ids),
		"batch_size", e.opts.BatchSize,
		"concurrency", e.opts.Concurrency)

	for offset := 0; offset < len(ids); offset += e.opts.BatchSize {
		if runCtx.Err() != nil {
			break
		}
		end := offset + e.opts.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		e.runSlice(runCtx, st, ids[offset:end])
	}

	st.mu.Lock()
	st.res.Skipped = st.res.Total - st.res.Succeeded - st.res.Failed
	st.res.Duration = time.Since(st.start)
	st.res.Aborted = st.abort != nil || ctx.Err() != nil
	res := st.res
	abort := st.abort
	st.mu.Unlock()

	e.log.Info("batch.run_done",
		"total", res.Total,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"skipped", res.Skipped,
		"duration_ms", res.Duration.Milliseconds(),
		"aborted", res.Aborted)

	if abort != nil {
		return res, abort
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}
	return res, nil
}

func (e *Executor) runSlice(ctx context.Context, st *runState, ids []string) {
	sem := make(chan struct{}, e.opts.Concurrency)
	var wg sync.WaitGroup

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(documentID string) {
			defer wg.Done()
			defer func() { <-sem }()

			attempts, err := e.runItem(ctx, documentID)
			if attempts == 0 {
				return
			}
			e.finishItem(st, documentID, attempts, err)
		}(id)
	}

	wg.Wait()
}

// runItem tries one document up to MaxAttempts times. It returns the
// number of attempts actually made; zero means the run was already
// cancelled before the first try.
func (e *Executor) runItem(ctx context.Context, documentID string) (int, error) {
	backoff := e.opts.BackoffBase
	var lastErr error

	for attempt := 1; attempt <= e.opts.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return attempt - 1, lastErr
			}
			return 0, err
		}

		err := e.processor.Process(ctx, documentID)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if domain.Fatal(err) || !domain.Retryable(err) || attempt == e.opts.MaxAttempts {
			return attempt, err
		}

		wait := backoff
		if wait > e.opts.BackoffMax {
			wait = e.opts.BackoffMax
		}
		e.log.Warn("batch.retry",
			"document_id", documentID,
			"attempt", attempt,
			"max_attempts", e.opts.MaxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, lastErr
		case <-timer.C:
		}

		backoff *= 2
		if backoff > e.opts.BackoffMax {
			backoff = e.opts.BackoffMax
		}
	}

	return e.opts.MaxAttempts, lastErr
}

func (e *Executor) finishItem(st *runState, documentID string, attempts int, err error) {
	st.mu.Lock()
	if err == nil {
		st.res.Succeeded++
	} else {
		st.res.Failed++
		if len(st.res.Errors) < e.opts.ErrorListCap {
			st.res.Errors = append(st.res.Errors, ItemError{DocumentID: documentID, Attempts: attempts, Err: err})
		} else {
			st.res.ErrorsTruncated = true
		}
		if st.abort == nil {
			if domain.Fatal(err) {
				st.abort = fmt.Errorf("authentication failure stopped the run: %w", err)
				st.cancel()
			} else if !e.opts.ContinueOnError {
				st.abort = fmt.Errorf("run stopped on first failed document: %w", err)
				st.cancel()
			}
		}
	}
	if e.opts.OnProgress != nil {
		e.opts.OnProgress(st.progressLocked())
	}
	exhausted := err != nil && !isCancellation(err)
	st.mu.Unlock()

	// OnExhausted may do I/O, so it runs outside the run lock.
	if exhausted && e.opts.OnExhausted != nil {
		e.opts.OnExhausted(st.parentCtx, documentID, err)
	}
}

func (st *runState) progressLocked() Progress {
	processed := st.res.Succeeded + st.res.Failed
	p := Progress{
		Processed: processed,
		Total:     st.res.Total,
		Succeeded: st.res.Succeeded,
		Failed:    st.res.Failed,
	}
	elapsed := time.Since(st.start).Seconds()
	if elapsed > 0 && processed > 0 {
		p.Rate = float64(processed) / elapsed
		remaining := st.res.Total - processed
		if remaining > 0 && p.Rate > 0 {
			p.ETASeconds = float64(remaining) / p.Rate
		}
	}
	return p
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
