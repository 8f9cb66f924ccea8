package governor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Work is one unit of deferred work: typically a single inference call. The
// governor never constructs the upstream request itself; it only decides
// whether and when work may run and how to react to its failure.
type Work func(ctx context.Context) (any, error)

// DispatchOptions controls how a unit of work is scheduled.
type DispatchOptions struct {
	// Model is the primary model. Empty means the first model of the
	// selected strategy's realtime (or bulk, if Bulk is set) list.
	Model string

	// Fallbacks are tried in order after the primary. Empty with an empty
	// Model means the remainder of the strategy's list.
	Fallbacks []string

	// Priority orders items in the deferred queue; higher is more urgent.
	Priority int

	// EstimatedTokens is the expected token cost. Zero means no token
	// budget is charged against the per-minute token window.
	EstimatedTokens int64

	// Bulk selects the strategy's bulk model list when Model is empty.
	Bulk bool
}

// Governor arbitrates access to a quota-constrained multi-model inference
// service: per-model admission, fallback across models, bounded retry with
// backoff, and a priority queue for work that no model can take right now.
// Construct one per process area that needs it; there is no package-level
// instance.
type Governor struct {
	strategy Strategy
	tracker  *Tracker
	meter    Meter
	logger   *slog.Logger

	window       time.Duration
	pollInterval time.Duration
	denyWait     time.Duration
	baseDelay    time.Duration
	maxDelay     time.Duration

	quotas map[string]ModelQuota
	daily  DailyCounter

	qmu   sync.Mutex
	queue []*queueItem

	startOnce sync.Once
	stopOnce  sync.Once
	cancel    context.CancelFunc
	group     *errgroup.Group
}

// Option configures a Governor.
type Option func(*Governor)

// WithMeter sets the meter.
func WithMeter(m Meter) Option {
	return func(g *Governor) { g.meter = m }
}

// WithLogger sets the logger used by the scheduler loop.
func WithLogger(l *slog.Logger) Option {
	return func(g *Governor) { g.logger = l }
}

// WithDailyCounter sets the daily request counter store.
func WithDailyCounter(d DailyCounter) Option {
	return func(g *Governor) { g.daily = d }
}

// WithQuotas overrides or extends the built-in quota table.
func WithQuotas(quotas map[string]ModelQuota) Option {
	return func(g *Governor) {
		for name, q := range quotas {
			g.quotas[name] = q
		}
	}
}

// WithWindow sets the sliding-window duration (default one minute).
func WithWindow(d time.Duration) Option {
	return func(g *Governor) { g.window = d }
}

// WithPollInterval sets the scheduler's idle poll interval (default 1s).
func WithPollInterval(d time.Duration) Option {
	return func(g *Governor) { g.pollInterval = d }
}

// WithDenyWait sets how long the scheduler waits when an admission check
// denies the head item without reporting a wait time (default 5s).
func WithDenyWait(d time.Duration) Option {
	return func(g *Governor) { g.denyWait = d }
}

// WithMaxDelay caps the exponential backoff (default 30s).
func WithMaxDelay(d time.Duration) Option {
	return func(g *Governor) { g.maxDelay = d }
}

// New creates a Governor from cfg. Default components (built-in quotas,
// process-local daily counting, noop meter, slog default logger) are used
// unless overridden via options.
func New(cfg Config, opts ...Option) (*Governor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	name := cfg.Strategy
	if name == "" {
		name = StrategyFromEnv()
	}
	strategy, err := cfg.resolveStrategy(name)
	if err != nil {
		return nil, err
	}

	g := &Governor{
		strategy:     strategy,
		quotas:       DefaultQuotas(),
		window:       DefaultWindow,
		pollInterval: time.Second,
		denyWait:     5 * time.Second,
		baseDelay:    strategy.Realtime.BaseDelay.Std(),
		maxDelay:     DefaultMaxDelay,
	}
	for name, q := range cfg.Quotas {
		g.quotas[name] = q
	}

	for _, opt := range opts {
		opt(g)
	}

	// Apply defaults after options.
	if g.meter == nil {
		g.meter = noopMeter{}
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	if g.baseDelay <= 0 {
		g.baseDelay = DefaultBaseDelay
	}
	g.tracker = NewTracker(g.quotas, g.daily, g.window)

	return g, nil
}

// Start launches the scheduler loop and the daily reset timer. They run
// until Close is called. Start is idempotent.
func (g *Governor) Start() {
	g.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		g.cancel = cancel
		g.group, ctx = errgroup.WithContext(ctx)
		g.group.Go(func() error { return g.schedulerLoop(ctx) })
		g.group.Go(func() error { return g.dailyResetLoop(ctx) })
	})
}

// Close stops the background loops and rejects all still-queued items with
// ErrClosed. Safe to call more than once.
func (g *Governor) Close() error {
	var err error
	g.stopOnce.Do(func() {
		if g.cancel != nil {
			g.cancel()
			err = g.group.Wait()
		}
		g.rejectAll(ErrClosed)
	})
	return err
}

// Tracker exposes the usage tracker, mainly for status reporting via
// Snapshot.
func (g *Governor) Tracker() *Tracker { return g.tracker }

// Dispatch submits one unit of work. It tries the primary model, then each
// fallback in order; a model is skipped when admission denies it or its
// execution fails with a retryable error. A fatal error propagates
// immediately without trying further models or queueing. When every model is
// denied or fails retryably, the work is placed on the deferred queue and
// Dispatch blocks until the scheduler completes or abandons it, or until ctx
// is done. A queued item cannot be retracted: cancelling ctx stops the wait
// but the item still runs.
func (g *Governor) Dispatch(ctx context.Context, work Work, opts DispatchOptions) (any, error) {
	models := g.candidateModels(opts)
	est := opts.EstimatedTokens

	var lastErr error
	for _, model := range models {
		adm, err := g.tracker.Check(ctx, model, est)
		if err != nil {
			g.logger.Warn("admission check failed", "model", model, "error", err)
			lastErr = err
			continue
		}
		g.meter.OnAdmission(AdmissionEvent{
			Model:           model,
			Allowed:         adm.Allowed,
			Wait:            adm.Wait,
			Reason:          adm.Reason,
			EstimatedTokens: est,
		})
		if !adm.Allowed {
			continue
		}

		if err := g.tracker.Record(ctx, model, est); err != nil {
			g.logger.Warn("usage record failed", "model", model, "error", err)
		}

		result, _, err := g.executeWithRetry(ctx, work, model, g.strategy.Realtime.MaxRetries)
		if err == nil {
			return result, nil
		}
		if IsFatal(err) {
			return nil, err
		}
		lastErr = err
	}

	// Every model was denied or failed retryably; hand the work to the
	// deferred queue and wait for the scheduler to resolve it.
	item := g.enqueue(work, opts.Priority, models[0], est)
	if lastErr != nil {
		g.logger.Debug("deferring work after transient failures",
			"id", item.id, "model", item.model, "error", lastErr)
	}
	select {
	case out := <-item.done:
		return out.value, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// candidateModels returns the primary model followed by the fallbacks,
// with the primary de-duplicated out of the fallback list. An empty Model
// falls back to the strategy's list for the requested mode.
func (g *Governor) candidateModels(opts DispatchOptions) []string {
	primary := opts.Model
	fallbacks := opts.Fallbacks
	if primary == "" {
		list := g.strategy.Realtime.Models
		if opts.Bulk {
			list = g.strategy.Bulk.Models
		}
		primary = list[0]
		if len(fallbacks) == 0 {
			fallbacks = list[1:]
		}
	}

	models := []string{primary}
	for _, m := range fallbacks {
		if m != primary {
			models = append(models, m)
		}
	}
	return models
}

// dailyResetLoop zeroes daily counters at each local midnight. A missed
// fire (process restart) just means slightly stale counts until the next
// one; that is acceptable for this tool's scale.
func (g *Governor) dailyResetLoop(ctx context.Context) error {
	for {
		if err := sleepCtx(ctx, untilNextMidnight(time.Now())); err != nil {
			return nil
		}
		if err := g.tracker.ResetDaily(ctx); err != nil {
			g.logger.Warn("daily reset failed", "error", err)
		} else {
			g.logger.Info("daily counters reset")
		}
	}
}

func untilNextMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}
