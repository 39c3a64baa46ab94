package worker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/Jacobjfiske/inferflow/internal/queue"
	"github.com/Jacobjfiske/inferflow/internal/worker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fake broker ---

type scheduledRetry struct {
	task    queue.Task
	readyAt time.Time
}

type fakeBroker struct {
	tasks chan queue.Task

	mu          sync.Mutex
	states      map[string]string
	retries     []scheduledRetry
	scheduleErr error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		tasks:  make(chan queue.Task, 16),
		states: make(map[string]string),
	}
}

func (b *fakeBroker) Dequeue(ctx context.Context, timeout time.Duration) (queue.Task, bool, error) {
	select {
	case task := <-b.tasks:
		return task, true, nil
	case <-time.After(timeout):
		return queue.Task{}, false, nil
	case <-ctx.Done():
		return queue.Task{}, false, ctx.Err()
	}
}

func (b *fakeBroker) ScheduleRetry(_ context.Context, task queue.Task, readyAt time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scheduleErr != nil {
		return b.scheduleErr
	}
	b.retries = append(b.retries, scheduledRetry{task: task, readyAt: readyAt})
	b.states[task.ID] = queue.StateRetry
	return nil
}

func (b *fakeBroker) PromoteDue(_ context.Context, _ time.Time) error { return nil }

func (b *fakeBroker) SetTaskState(_ context.Context, taskID, state string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[taskID] = state
	return nil
}

func (b *fakeBroker) state(taskID string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.states[taskID]
}

func (b *fakeBroker) scheduled() []scheduledRetry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]scheduledRetry(nil), b.retries...)
}

var _ worker.Broker = (*fakeBroker)(nil)

// --- helpers ---

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startPool(t *testing.T, broker worker.Broker, handler queue.Handler,
	policy queue.RetryPolicy, softTimeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	pool := worker.NewPool(broker, handler, policy, 2, softTimeout, 10*time.Millisecond, discardLogger())

	done := make(chan struct{})
	go func() {
		_ = pool.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// --- tests ---

func TestPool_SuccessfulTask(t *testing.T) {
	broker := newFakeBroker()
	policy := queue.RetryPolicy{MaxRetries: 3}

	startPool(t, broker, func(_ context.Context, _ queue.Task) error {
		return nil
	}, policy, 0)

	broker.tasks <- queue.Task{ID: "job-1", InputText: "hello"}

	require.Eventually(t, func() bool {
		return broker.state("job-1") == queue.StateSuccess
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, broker.scheduled())
}

func TestPool_TransientFailureSchedulesRetry(t *testing.T) {
	broker := newFakeBroker()
	policy := queue.RetryPolicy{MaxRetries: 3, BackoffBase: time.Second}

	startPool(t, broker, func(_ context.Context, _ queue.Task) error {
		return queue.Transient(errors.New("flaky"))
	}, policy, 0)

	before := time.Now()
	broker.tasks <- queue.Task{ID: "job-2", RetryCount: 0}

	require.Eventually(t, func() bool {
		return len(broker.scheduled()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	retry := broker.scheduled()[0]
	assert.Equal(t, 1, retry.task.RetryCount)
	// Full jitter keeps the delay within [0, 2s] of scheduling time.
	assert.WithinRange(t, retry.readyAt, before, time.Now().Add(2*time.Second))
	assert.Equal(t, queue.StateRetry, broker.state("job-2"))
}

func TestPool_RetryBudgetExhausted(t *testing.T) {
	broker := newFakeBroker()
	policy := queue.RetryPolicy{MaxRetries: 2}

	startPool(t, broker, func(_ context.Context, _ queue.Task) error {
		return queue.Transient(errors.New("always flaky"))
	}, policy, 0)

	broker.tasks <- queue.Task{ID: "job-3", RetryCount: 2}

	require.Eventually(t, func() bool {
		return broker.state("job-3") == queue.StateFailure
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, broker.scheduled())
}

func TestPool_FatalErrorNotRetried(t *testing.T) {
	broker := newFakeBroker()
	policy := queue.RetryPolicy{MaxRetries: 3}

	startPool(t, broker, func(_ context.Context, _ queue.Task) error {
		return errors.New("fatal")
	}, policy, 0)

	broker.tasks <- queue.Task{ID: "job-4"}

	require.Eventually(t, func() bool {
		return broker.state("job-4") == queue.StateFailure
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, broker.scheduled())
}

func TestPool_SoftDeadlineAbortsAttempt(t *testing.T) {
	broker := newFakeBroker()
	policy := queue.RetryPolicy{MaxRetries: 3}

	startPool(t, broker, func(ctx context.Context, _ queue.Task) error {
		<-ctx.Done()
		return ctx.Err()
	}, policy, 20*time.Millisecond)

	broker.tasks <- queue.Task{ID: "job-5"}

	require.Eventually(t, func() bool {
		return broker.state("job-5") == queue.StateFailure
	}, 2*time.Second, 10*time.Millisecond)
	// Timeouts are terminal; no retry even with budget left.
	assert.Empty(t, broker.scheduled())
}

func TestPool_ShutdownDrainsInFlightAttempt(t *testing.T) {
	broker := newFakeBroker()
	policy := queue.RetryPolicy{MaxRetries: 3}

	started := make(chan struct{})
	handler := func(ctx context.Context, _ queue.Task) error {
		close(started)
		// A cancellation-aware handler: if shutdown leaked into the attempt
		// context this would return context.Canceled instead of finishing.
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
			return nil
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := worker.NewPool(broker, handler, policy, 1, time.Second, 10*time.Millisecond, discardLogger())

	done := make(chan struct{})
	go func() {
		_ = pool.Run(ctx)
		close(done)
	}()

	broker.tasks <- queue.Task{ID: "job-6"}
	<-started
	cancel()
	<-done

	assert.Equal(t, queue.StateSuccess, broker.state("job-6"))
	assert.Empty(t, broker.scheduled())
}

func TestPool_AbandonOnScheduleRetryFailure(t *testing.T) {
	broker := newFakeBroker()
	broker.scheduleErr = errors.New("broker write failed")
	policy := queue.RetryPolicy{MaxRetries: 3}

	ctx, cancel := context.WithCancel(context.Background())
	pool := worker.NewPool(broker, func(_ context.Context, _ queue.Task) error {
		return queue.Transient(errors.New("flaky"))
	}, policy, 1, 0, 10*time.Millisecond, discardLogger())

	var mu sync.Mutex
	var abandoned []queue.Task
	pool.Abandon = func(_ context.Context, task queue.Task, _ error) {
		mu.Lock()
		defer mu.Unlock()
		abandoned = append(abandoned, task)
	}

	done := make(chan struct{})
	go func() {
		_ = pool.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	broker.tasks <- queue.Task{ID: "job-7"}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(abandoned) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, "job-7", abandoned[0].ID)
	mu.Unlock()
	assert.Equal(t, queue.StateFailure, broker.state("job-7"))
}

func TestPool_KeepsRunningAfterHandlerFailure(t *testing.T) {
	broker := newFakeBroker()
	policy := queue.RetryPolicy{MaxRetries: 0}

	startPool(t, broker, func(_ context.Context, task queue.Task) error {
		if task.ID == "bad" {
			return errors.New("boom")
		}
		return nil
	}, policy, 0)

	broker.tasks <- queue.Task{ID: "bad"}
	broker.tasks <- queue.Task{ID: "good"}

	require.Eventually(t, func() bool {
		return broker.state("bad") == queue.StateFailure &&
			broker.state("good") == queue.StateSuccess
	}, 2*time.Second, 10*time.Millisecond)
}
