package governor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// queueItem is one deferred unit of work waiting for quota.
type queueItem struct {
	id         string
	model      string
	priority   int
	enqueuedAt time.Time
	retries    int
	estTokens  int64
	work       Work
	done       chan outcome
}

type outcome struct {
	value any
	err   error
}

// enqueue inserts by descending priority, after existing items of equal
// priority (insertion-order tie-break).
func (g *Governor) enqueue(work Work, priority int, model string, estTokens int64) *queueItem {
	item := &queueItem{
		id:         uuid.New().String(),
		model:      model,
		priority:   priority,
		enqueuedAt: time.Now(),
		estTokens:  estTokens,
		work:       work,
		done:       make(chan outcome, 1),
	}
	g.insert(item)
	return item
}

func (g *Governor) insert(item *queueItem) {
	g.qmu.Lock()
	pos := len(g.queue)
	for i, existing := range g.queue {
		if existing.priority < item.priority {
			pos = i
			break
		}
	}
	g.queue = append(g.queue, nil)
	copy(g.queue[pos+1:], g.queue[pos:])
	g.queue[pos] = item
	depth := len(g.queue)
	g.qmu.Unlock()

	kind := QueueEnqueued
	if item.retries > 0 {
		kind = QueueRequeued
	}
	g.meter.OnQueue(QueueEvent{
		Kind:     kind,
		ID:       item.id,
		Model:    item.model,
		Priority: item.priority,
		Retries:  item.retries,
		Depth:    depth,
	})
}

// peek returns the head item without removing it, or nil when empty.
func (g *Governor) peek() *queueItem {
	g.qmu.Lock()
	defer g.qmu.Unlock()
	if len(g.queue) == 0 {
		return nil
	}
	return g.queue[0]
}

// remove takes item off the queue wherever it currently sits. Returns false
// if it is no longer queued.
func (g *Governor) remove(item *queueItem) bool {
	g.qmu.Lock()
	defer g.qmu.Unlock()
	for i, existing := range g.queue {
		if existing == item {
			g.queue = append(g.queue[:i], g.queue[i+1:]...)
			return true
		}
	}
	return false
}

// rejectAll terminates every queued item with err.
func (g *Governor) rejectAll(err error) {
	g.qmu.Lock()
	items := g.queue
	g.queue = nil
	g.qmu.Unlock()

	for _, item := range items {
		item.done <- outcome{err: &QueueError{
			ID:      item.id,
			Model:   item.model,
			Retries: item.retries,
			Err:     err,
		}}
	}
}

// QueueDepth returns the number of items waiting in the deferred queue.
func (g *Governor) QueueDepth() int {
	g.qmu.Lock()
	defer g.qmu.Unlock()
	return len(g.queue)
}

// schedulerLoop is the single worker that drains the deferred queue. It
// inspects only the current head: a head denied admission sleeps its
// reported wait and is re-polled without dequeueing, which blocks
// lower-priority items behind it for the duration. One item is attempted at
// a time; throughput here is bounded by the upstream quota, not the loop.
func (g *Governor) schedulerLoop(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		item := g.peek()
		if item == nil {
			if err := sleepCtx(ctx, g.pollInterval); err != nil {
				return nil
			}
			continue
		}

		adm, err := g.tracker.Check(ctx, item.model, item.estTokens)
		if err != nil {
			g.logger.Warn("queue admission check failed",
				"id", item.id, "model", item.model, "error", err)
			if err := sleepCtx(ctx, g.denyWait); err != nil {
				return nil
			}
			continue
		}
		g.meter.OnAdmission(AdmissionEvent{
			Model:           item.model,
			Allowed:         adm.Allowed,
			Wait:            adm.Wait,
			Reason:          adm.Reason,
			EstimatedTokens: item.estTokens,
			FromQueue:       true,
		})
		if !adm.Allowed {
			wait := adm.Wait
			if wait <= 0 {
				wait = g.denyWait
			}
			if err := sleepCtx(ctx, wait); err != nil {
				return nil
			}
			continue
		}

		if !g.remove(item) {
			// Item vanished (rejectAll ran); start over.
			continue
		}
		if err := g.tracker.Record(ctx, item.model, item.estTokens); err != nil {
			g.logger.Warn("usage record failed", "id", item.id, "model", item.model, "error", err)
		}

		// Single attempt per pass: the queue does its own retry counting.
		result, _, err := g.executeWithRetry(ctx, item.work, item.model, 0)
		if err == nil {
			g.meter.OnQueue(QueueEvent{
				Kind:     QueueCompleted,
				ID:       item.id,
				Model:    item.model,
				Priority: item.priority,
				Retries:  item.retries,
				Depth:    g.QueueDepth(),
			})
			item.done <- outcome{value: result}
			continue
		}

		item.retries++
		if item.retries < g.strategy.Realtime.MaxRetries && IsRetryable(err) {
			if serr := sleepCtx(ctx, backoffDelay(item.retries-1, g.baseDelay, g.maxDelay)); serr != nil {
				g.insert(item) // keep it for rejectAll
				return nil
			}
			g.insert(item)
			continue
		}

		qerr := &QueueError{
			ID:      item.id,
			Model:   item.model,
			Retries: item.retries,
			Err:     err,
		}
		g.logger.Error("queued item abandoned",
			"id", item.id,
			"model", item.model,
			"priority", item.priority,
			"retries", item.retries,
			"queued_for", time.Since(item.enqueuedAt),
			"error", err,
		)
		g.meter.OnQueue(QueueEvent{
			Kind:     QueueDropped,
			ID:       item.id,
			Model:    item.model,
			Priority: item.priority,
			Retries:  item.retries,
			Depth:    g.QueueDepth(),
			Err:      err,
		})
		item.done <- outcome{err: qerr}
	}
}
