// Package tasks runs post-commit index work either inline on the calling
// goroutine or queued on a bounded worker pool.
package tasks

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/covelabs/docdex/internal/logging"
	"github.com/covelabs/docdex/internal/metrics"
)

// Task is one unit of deferred work. The context is the runner's
// lifecycle context, not the submitting request's, so queued work
// survives the originating request.
type Task func(ctx context.Context)

// Runner executes tasks. With zero workers every task runs inline before
// Submit returns; with workers it is queued and Submit returns
// immediately.
type Runner struct {
	pool   *ants.Pool
	logger *logging.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a runner. workers == 0 selects inline execution.
func NewRunner(workers int, logger *logging.Logger) (*Runner, error) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{logger: logger, ctx: ctx, cancel: cancel}

	if workers > 0 {
		pool, err := ants.NewPool(workers)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("creating worker pool: %w", err)
		}
		r.pool = pool
	}
	return r, nil
}

// Submit runs or enqueues the task. Inline mode propagates nothing to the
// caller: task errors are the task's own to log, matching queued mode.
func (r *Runner) Submit(task Task) error {
	if r.pool == nil {
		task(r.ctx)
		return nil
	}

	r.wg.Add(1)
	metrics.IngestQueueDepth.Inc()
	err := r.pool.Submit(func() {
		defer r.wg.Done()
		defer metrics.IngestQueueDepth.Dec()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error(r.ctx, "task panicked", zap.Any("panic", rec))
			}
		}()
		task(r.ctx)
	})
	if err != nil {
		r.wg.Done()
		metrics.IngestQueueDepth.Dec()
		return fmt.Errorf("submitting task: %w", err)
	}
	return nil
}

// Wait blocks until all queued tasks finish. Inline mode returns
// immediately.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close waits for queued tasks, then stops the pool and cancels the
// runner context.
func (r *Runner) Close() {
	r.wg.Wait()
	r.cancel()
	if r.pool != nil {
		r.pool.Release()
	}
}
