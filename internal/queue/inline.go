package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Inline is a synchronous executor used for tests and the TASK_INLINE
// configuration: Enqueue runs the bound handler in the calling goroutine,
// including the retry loop, instead of dispatching to a worker process.
// It satisfies the same Queue interface as RedisQueue.
type Inline struct {
	policy  RetryPolicy
	timeout time.Duration

	mu      sync.Mutex
	handler Handler
	states  map[string]string
	results map[string]Result
}

// NewInline creates an inline executor. timeout is the per-attempt soft
// deadline; zero disables it.
func NewInline(policy RetryPolicy, timeout time.Duration) *Inline {
	return &Inline{
		policy:  policy,
		timeout: timeout,
		states:  make(map[string]string),
		results: make(map[string]Result),
	}
}

// Bind registers the execution handler. It must be called before Enqueue.
func (q *Inline) Bind(h Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handler = h
}

// Enqueue executes the task synchronously. Handler failures are recorded in
// the task state, not returned: an Enqueue error means the work was never
// accepted, matching the broker-backed queue's contract.
func (q *Inline) Enqueue(ctx context.Context, task Task) error {
	q.mu.Lock()
	handler := q.handler
	q.mu.Unlock()
	if handler == nil {
		return errors.New("inline queue: no handler bound")
	}

	q.setState(task.ID, StatePending)

	for {
		q.setState(task.ID, StateStarted)

		attemptCtx := ctx
		cancel := context.CancelFunc(func() {})
		if q.timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, q.timeout)
		}
		err := handler(attemptCtx, task)
		cancel()

		if err == nil {
			q.setState(task.ID, StateSuccess)
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) ||
			!q.policy.Retryable(err) ||
			task.RetryCount >= q.policy.MaxRetries {
			q.setState(task.ID, StateFailure)
			return nil
		}

		task.RetryCount++
		q.setState(task.ID, StateRetry)
		if d := q.policy.Delay(task.RetryCount); d > 0 {
			time.Sleep(d)
		}
	}
}

func (q *Inline) TaskState(_ context.Context, taskID string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	state, ok := q.states[taskID]
	if !ok {
		return "", ErrUnknownTask
	}
	return state, nil
}

func (q *Inline) SetTaskResult(_ context.Context, taskID string, result Result) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.results[taskID] = result
	return nil
}

func (q *Inline) TaskResult(_ context.Context, taskID string) (Result, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	result, ok := q.results[taskID]
	return result, ok, nil
}

func (q *Inline) Ping(_ context.Context) error {
	return nil
}

func (q *Inline) setState(taskID, state string) {
	q.mu.Lock()
	q.states[taskID] = state
	q.mu.Unlock()
}
