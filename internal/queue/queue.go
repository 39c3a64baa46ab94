// Package queue provides the work queue boundary: a Redis-backed broker for
// the distributed worker pool, an inline executor for eager mode, and the
// retry policy shared by both.
package queue

import (
	"context"
	"errors"
	"fmt"
)

// Broker-native task states. These are best-effort bookkeeping per task ID,
// kept even when no durable job row exists, and serve as the fallback source
// for status queries.
const (
	StatePending = "pending"
	StateStarted = "started"
	StateSuccess = "success"
	StateFailure = "failure"
	StateRetry   = "retry"
)

// ErrUnknownTask is returned by TaskState when the broker has no knowledge
// of the given task ID.
var ErrUnknownTask = errors.New("unknown task")

// ErrTransient marks an execution fault as retryable. Handlers wrap
// retryable errors with Transient; everything else is terminal.
var ErrTransient = errors.New("transient execution error")

// Transient wraps err so the retry policy classifies it as retryable.
func Transient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Task is one unit of inference work. ID doubles as the durable job ID and
// the broker-side task identity. RetryCount is the zero-based attempt
// counter carried across retries.
type Task struct {
	ID           string `json:"id"`
	InputText    string `json:"input_text"`
	ModelVersion string `json:"model_version"`
	RetryCount   int    `json:"retry_count"`
}

// Handler executes one attempt of a task. The context carries the attempt's
// soft deadline. Returning an error wrapped with Transient requests a retry;
// any other error (and context.DeadlineExceeded) is terminal.
type Handler func(ctx context.Context, task Task) error

// Result is the broker-side copy of a completed task's prediction, kept
// alongside the task state so status queries can serve a payload even when
// the durable row is absent.
type Result struct {
	Label        string  `json:"label"`
	Score        float64 `json:"score"`
	ModelVersion string  `json:"model_version"`
}

// Queue is the contract the orchestrator submits work through.
type Queue interface {
	// Enqueue hands a task to the execution substrate. An error means the
	// work was not accepted (broker unreachable), never that it ran and
	// failed.
	Enqueue(ctx context.Context, task Task) error

	// TaskState reports the broker-native state for a task ID, or
	// ErrUnknownTask if the broker has never seen it.
	TaskState(ctx context.Context, taskID string) (string, error)

	// SetTaskResult records the prediction for a finished task next to its
	// state. TaskResult's second return value is false when no result was
	// recorded (or it has expired).
	SetTaskResult(ctx context.Context, taskID string, result Result) error
	TaskResult(ctx context.Context, taskID string) (Result, bool, error)

	Ping(ctx context.Context) error
}
