package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/raybunnage/dhg-mono-sub007/internal/core/domain"
)

// Config holds token bucket parameters for the classifier gate.
type Config struct {
	// RequestsPerMinute is the sustained refill rate.
	RequestsPerMinute int
	// Burst is the bucket capacity.
	Burst int
	// WaitTimeout bounds how long Acquire blocks for a token.
	WaitTimeout time.Duration
}

func (c *Config) normalize() {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = 60
	}
	if c.Burst <= 0 {
		c.Burst = 10
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 30 * time.Second
	}
}

// Limiter is the process-wide token bucket in front of the classifier. It
// also honors server-signalled backoff from 429 replies.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
	timeout time.Duration
}

func NewLimiter(cfg Config) *Limiter {
	cfg.normalize()
	perSecond := float64(cfg.RequestsPerMinute) / 60.0
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), cfg.Burst),
		timeout: cfg.WaitTimeout,
	}
}

// Acquire blocks until a token is available or the wait timeout elapses.
// Expiry surfaces as ErrRateLimitTimeout, which the batch executor treats as
// retryable.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if until := time.Until(retryAt); until > 0 {
		select {
		case <-waitCtx.Done():
			return acquireErr(ctx, waitCtx.Err())
		case <-time.After(until):
		}
	}

	// Wait fails up front when the needed delay would outlive the
	// deadline, so the cause must be its own error: waitCtx.Err() is
	// still nil at that point.
	if err := l.limiter.Wait(waitCtx); err != nil {
		return acquireErr(ctx, err)
	}
	return nil
}

// RecordServerBackoff pauses the gate after an upstream 429.
func (l *Limiter) RecordServerBackoff(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = time.Minute
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retryAt = time.Now().Add(retryAfter)
}

// Allow reports whether a token is available right now, without blocking.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if time.Now().Before(retryAt) {
		return false
	}
	return l.limiter.Allow()
}

// acquireErr distinguishes caller cancellation from gate timeout.
func acquireErr(ctx context.Context, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return domain.WrapError(domain.ErrRateLimitTimeout, "acquire rate limit token", cause)
}
