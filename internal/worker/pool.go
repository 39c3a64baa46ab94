// Package worker runs the execution side of the work queue: a pool of
// goroutines that dequeue tasks, invoke the inference handler under a soft
// deadline, and apply the retry policy to failures.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Jacobjfiske/inferflow/internal/queue"
)

// Broker is the consumption-side contract the pool needs from the queue.
// *queue.RedisQueue satisfies it.
type Broker interface {
	Dequeue(ctx context.Context, timeout time.Duration) (queue.Task, bool, error)
	ScheduleRetry(ctx context.Context, task queue.Task, readyAt time.Time) error
	PromoteDue(ctx context.Context, now time.Time) error
	SetTaskState(ctx context.Context, taskID, state string) error
}

// Pool manages concurrent workers plus a single scheduler goroutine that
// promotes due retries back onto the pending list. Attempts for one task ID
// are strictly sequential: a task re-enters the queue only after its
// handler has returned.
type Pool struct {
	broker       Broker
	handler      queue.Handler
	policy       queue.RetryPolicy
	concurrency  int
	softTimeout  time.Duration
	pollInterval time.Duration
	logger       *slog.Logger

	// Abandon is called when a retryable task cannot be put back on the
	// queue (ScheduleRetry failed). It must record a terminal failure on the
	// durable record; otherwise the row stays started forever while the
	// broker already reports failure. Optional.
	Abandon func(ctx context.Context, task queue.Task, cause error)
}

// NewPool creates a worker pool.
func NewPool(broker Broker, handler queue.Handler, policy queue.RetryPolicy,
	concurrency int, softTimeout, pollInterval time.Duration, logger *slog.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Pool{
		broker:       broker,
		handler:      handler,
		policy:       policy,
		concurrency:  concurrency,
		softTimeout:  softTimeout,
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Run blocks until ctx is cancelled, then waits for in-flight attempts to
// finish.
func (p *Pool) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.schedulerLoop(ctx)
	}()

	for i := 0; i < p.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.workerLoop(ctx)
		}()
	}

	wg.Wait()
	return nil
}

func (p *Pool) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := p.broker.PromoteDue(ctx, now); err != nil && ctx.Err() == nil {
				p.logger.Error("promote due retries", "error", err)
			}
		}
	}
}

func (p *Pool) workerLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		task, ok, err := p.broker.Dequeue(ctx, p.pollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("dequeue", "error", err)
			continue
		}
		if !ok {
			continue
		}

		p.process(ctx, task)
	}
}

// process runs one attempt of a task and applies the retry policy to its
// outcome. The attempt context is detached from the pool's run context: a
// dequeued task is owned by this worker and must finish even when shutdown
// begins, so the soft deadline is the only thing that can cancel it.
func (p *Pool) process(ctx context.Context, task queue.Task) {
	record := context.WithoutCancel(ctx)

	if err := p.broker.SetTaskState(record, task.ID, queue.StateStarted); err != nil {
		p.logger.Error("set task state", "task_id", task.ID, "error", err)
	}

	attemptCtx := record
	cancel := context.CancelFunc(func() {})
	if p.softTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(record, p.softTimeout)
	}
	err := p.handler(attemptCtx, task)
	cancel()

	switch {
	case err == nil:
		_ = p.broker.SetTaskState(record, task.ID, queue.StateSuccess)

	case errors.Is(err, context.DeadlineExceeded):
		// Timeouts are terminal, never retried.
		_ = p.broker.SetTaskState(record, task.ID, queue.StateFailure)
		p.logger.Error("task timed out", "task_id", task.ID, "retry_count", task.RetryCount)

	case p.policy.Retryable(err) && task.RetryCount < p.policy.MaxRetries:
		next := task
		next.RetryCount++
		delay := p.policy.Delay(next.RetryCount)
		if schedErr := p.broker.ScheduleRetry(record, next, time.Now().Add(delay)); schedErr != nil {
			_ = p.broker.SetTaskState(record, task.ID, queue.StateFailure)
			if p.Abandon != nil {
				p.Abandon(record, task, schedErr)
			}
			p.logger.Error("schedule retry", "task_id", task.ID, "error", schedErr)
			return
		}
		p.logger.Warn("task retry scheduled",
			"task_id", task.ID, "retry_count", next.RetryCount, "delay", delay, "error", err)

	default:
		_ = p.broker.SetTaskState(record, task.ID, queue.StateFailure)
		p.logger.Error("task failed", "task_id", task.ID, "retry_count", task.RetryCount, "error", err)
	}
}
