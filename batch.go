package governor

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// BatchResult pairs one work item's outcome with its index in the input.
type BatchResult struct {
	Index int
	Value any
	Err   error
}

// DispatchBatch runs works in bulk mode: chunks of the strategy's batch
// size dispatched concurrently, with the strategy's inter-batch delay
// between chunks. Individual failures do not abort the batch; each result
// carries its own error. Returns early only when ctx is done.
func (g *Governor) DispatchBatch(ctx context.Context, works []Work, opts DispatchOptions) ([]BatchResult, error) {
	opts.Bulk = true

	size := g.strategy.Bulk.BatchSize
	if size <= 0 {
		size = 1
	}

	results := make([]BatchResult, len(works))
	for start := 0; start < len(works); start += size {
		end := start + size
		if end > len(works) {
			end = len(works)
		}

		eg, egctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			eg.Go(func() error {
				value, err := g.Dispatch(egctx, works[i], opts)
				results[i] = BatchResult{Index: i, Value: value, Err: err}
				return nil
			})
		}
		_ = eg.Wait()

		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		if end < len(works) {
			if err := sleepCtx(ctx, g.strategy.Bulk.BatchDelay.Std()); err != nil {
				return results, err
			}
		}
	}
	return results, nil
}
