package governor

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is the sliding window over which per-minute limits apply.
const DefaultWindow = time.Minute

// DailyCounter tracks per-model daily request counts. Implementations may be
// process-local or backed by an external store shared across processes; the
// lookup may therefore be remote and takes a context.
type DailyCounter interface {
	// Incr increments the count for the current day and returns the new value.
	Incr(ctx context.Context, model string) (int64, error)

	// Count returns the count for the current day.
	Count(ctx context.Context, model string) (int64, error)

	// ResetAll zeroes every model's count. Stores whose keys are date-scoped
	// may treat this as a no-op.
	ResetAll(ctx context.Context) error
}

// UsageSnapshot is a read-only view of one model's current usage.
type UsageSnapshot struct {
	RequestsInWindow int
	TokensInWindow   int64
	DailyRequests    int64
}

// Tracker holds per-model usage state: a sliding window of request
// timestamps, token usage in the current window, and a daily request count.
// Safe for concurrent use; the per-model counters are the only shared
// mutable state in the governor and are guarded here.
type Tracker struct {
	mu     sync.Mutex
	window time.Duration
	quotas map[string]ModelQuota
	daily  DailyCounter
	usage  map[string]*modelUsage
}

type modelUsage struct {
	timestamps     []time.Time
	tokensInWindow int64
}

// NewTracker creates a Tracker over the given quota table. A nil daily
// counter falls back to process-local counting; a zero window falls back to
// DefaultWindow.
func NewTracker(quotas map[string]ModelQuota, daily DailyCounter, window time.Duration) *Tracker {
	if daily == nil {
		daily = newLocalCounter()
	}
	if window <= 0 {
		window = DefaultWindow
	}
	q := make(map[string]ModelQuota, len(quotas))
	for name, mq := range quotas {
		q[name] = mq
	}
	return &Tracker{
		window: window,
		quotas: q,
		daily:  daily,
		usage:  make(map[string]*modelUsage),
	}
}

// Record accounts for an admitted call: append the timestamp, add the token
// estimate, bump the daily count, and schedule the token reversal one window
// later. It is called after admission and before the call is issued, so
// concurrent dispatches cannot all be admitted against the same remaining
// budget; the cost is that a call which errors after admission still
// consumes budget until its window entry expires.
func (t *Tracker) Record(ctx context.Context, model string, tokens int64) error {
	t.mu.Lock()
	u := t.getOrCreate(model)
	u.timestamps = append(u.timestamps, time.Now())
	u.tokensInWindow += tokens
	t.mu.Unlock()

	if tokens > 0 {
		time.AfterFunc(t.window, func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			u := t.getOrCreate(model)
			u.tokensInWindow -= tokens
			if u.tokensInWindow < 0 {
				u.tokensInWindow = 0
			}
		})
	}

	_, err := t.daily.Incr(ctx, model)
	return err
}

// Snapshot returns the current usage for every model that has recorded
// calls. Daily counts reflect the process-local or external store view at
// call time.
func (t *Tracker) Snapshot(ctx context.Context) map[string]UsageSnapshot {
	t.mu.Lock()
	models := make([]string, 0, len(t.usage))
	for name := range t.usage {
		models = append(models, name)
	}
	t.mu.Unlock()

	out := make(map[string]UsageSnapshot, len(models))
	for _, name := range models {
		daily, _ := t.daily.Count(ctx, name)

		t.mu.Lock()
		u := t.getOrCreate(name)
		t.prune(u)
		out[name] = UsageSnapshot{
			RequestsInWindow: len(u.timestamps),
			TokensInWindow:   u.tokensInWindow,
			DailyRequests:    daily,
		}
		t.mu.Unlock()
	}
	return out
}

// ResetDaily zeroes every model's daily count.
func (t *Tracker) ResetDaily(ctx context.Context) error {
	return t.daily.ResetAll(ctx)
}

// prune drops timestamps older than the window. Must be called with the
// lock held.
func (t *Tracker) prune(u *modelUsage) {
	cutoff := time.Now().Add(-t.window)
	valid := u.timestamps[:0]
	for _, ts := range u.timestamps {
		if ts.After(cutoff) {
			valid = append(valid, ts)
		}
	}
	u.timestamps = valid
}

func (t *Tracker) getOrCreate(model string) *modelUsage {
	u, ok := t.usage[model]
	if !ok {
		u = &modelUsage{}
		t.usage[model] = u
	}
	return u
}

// localCounter is the default process-local DailyCounter. Counts roll over
// lazily when the local date changes.
type localCounter struct {
	mu     sync.Mutex
	counts map[string]int64
	day    string
}

func newLocalCounter() *localCounter {
	return &localCounter{
		counts: make(map[string]int64),
		day:    localDay(),
	}
}

func (c *localCounter) Incr(_ context.Context, model string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeRoll()
	c.counts[model]++
	return c.counts[model], nil
}

func (c *localCounter) Count(_ context.Context, model string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maybeRoll()
	return c.counts[model], nil
}

func (c *localCounter) ResetAll(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts = make(map[string]int64)
	c.day = localDay()
	return nil
}

// maybeRoll resets counts if the local date changed. Must be called with
// the lock held.
func (c *localCounter) maybeRoll() {
	today := localDay()
	if today != c.day {
		c.counts = make(map[string]int64)
		c.day = today
	}
}

func localDay() string {
	return time.Now().Format("2006-01-02")
}
