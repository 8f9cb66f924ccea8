package governor

import (
	"context"
	"math/rand"
	"time"
)

// Backoff defaults.
const (
	DefaultBaseDelay = time.Second
	DefaultMaxDelay  = 30 * time.Second

	// backoffJitter is the maximum multiplicative jitter applied per
	// attempt, to spread out retries of concurrently queued items.
	backoffJitter = 0.1
)

// backoffDelay computes the delay before retry number attempt (zero-based):
// min(base*2^attempt, max), scaled by up to +10% jitter.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if max <= 0 {
		max = DefaultMaxDelay
	}
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	return time.Duration(float64(d) * (1 + rand.Float64()*backoffJitter))
}

// executeWithRetry runs work against model, retrying retryable failures up
// to maxRetries times with exponential backoff. Fatal errors propagate
// immediately; when retries are exhausted the last error is returned. The
// second return value is the number of attempts made.
func (g *Governor) executeWithRetry(ctx context.Context, work Work, model string, maxRetries int) (any, int, error) {
	for attempt := 0; ; attempt++ {
		start := time.Now()
		result, err := work(ctx)
		g.meter.OnResult(ResultEvent{
			Model:    model,
			Success:  err == nil,
			Attempt:  attempt + 1,
			Duration: time.Since(start),
			Err:      err,
		})
		if err == nil {
			return result, attempt + 1, nil
		}
		if IsFatal(err) || attempt >= maxRetries {
			return nil, attempt + 1, err
		}
		if serr := sleepCtx(ctx, backoffDelay(attempt, g.baseDelay, g.maxDelay)); serr != nil {
			return nil, attempt + 1, serr
		}
	}
}

// sleepCtx sleeps for d or until ctx is done, returning the context error
// in the latter case.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
