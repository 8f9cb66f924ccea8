package governor

import (
	"context"
	"fmt"
	"time"
)

// Admission is the outcome of an admission check. A denial is a routine
// value, not an error: Wait is how long the caller should hold off before
// re-checking (zero when only a daily reset or model switch can help), and
// Reason names the limit that blocked the call.
type Admission struct {
	Allowed bool
	Wait    time.Duration
	Reason  string
}

// Check decides whether a call against model with the given estimated token
// cost may proceed now. Checks run cheapest-first: the in-memory per-minute
// request count, then the (possibly remote) daily count, then the advisory
// token budget. A model with no quota entry is admitted unconditionally.
//
// The returned error reflects a daily-counter store failure only; quota
// denials are reported through the Admission value.
func (t *Tracker) Check(ctx context.Context, model string, estimatedTokens int64) (Admission, error) {
	quota, ok := t.quotas[model]
	if !ok {
		return Admission{Allowed: true}, nil
	}

	t.mu.Lock()
	u := t.getOrCreate(model)
	t.prune(u)
	requests := len(u.timestamps)
	var oldest time.Time
	if requests > 0 {
		oldest = u.timestamps[0]
	}
	tokensInWindow := u.tokensInWindow
	t.mu.Unlock()

	if requests >= quota.RequestsPerMinute {
		wait := t.window - time.Since(oldest)
		if wait < 0 {
			wait = 0
		}
		return Admission{
			Wait:   wait,
			Reason: fmt.Sprintf("%s: %d requests per minute reached", model, quota.RequestsPerMinute),
		}, nil
	}

	if quota.RequestsPerDay > 0 {
		daily, err := t.daily.Count(ctx, model)
		if err != nil {
			return Admission{}, fmt.Errorf("governor: daily count for %s: %w", model, err)
		}
		if daily >= int64(quota.RequestsPerDay) {
			// No wait time: the caller must use another model or wait for
			// the midnight reset.
			return Admission{
				Reason: fmt.Sprintf("%s: %d requests per day reached", model, quota.RequestsPerDay),
			}, nil
		}
	}

	if quota.TokensPerMinute > 0 && tokensInWindow+estimatedTokens > quota.TokensPerMinute {
		// Conservative: the estimate is advisory, so wait out a full window.
		return Admission{
			Wait:   t.window,
			Reason: fmt.Sprintf("%s: %d tokens per minute would be exceeded", model, quota.TokensPerMinute),
		}, nil
	}

	return Admission{Allowed: true}, nil
}
