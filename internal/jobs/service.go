// Package jobs is the orchestration core: idempotent submission, the
// per-attempt execution handler, and status resolution across the durable
// store and the broker's own bookkeeping.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/Jacobjfiske/inferflow/internal/inference"
	"github.com/Jacobjfiske/inferflow/internal/metrics"
	"github.com/Jacobjfiske/inferflow/internal/queue"
	"github.com/Jacobjfiske/inferflow/internal/store"
	"github.com/Jacobjfiske/inferflow/pkg/models"
	"github.com/google/uuid"
)

// ErrEnqueue wraps failures to hand work to the executor. The job row is
// already marked failed by the time callers see it.
var ErrEnqueue = errors.New("enqueue failed")

// Service orchestrates the job lifecycle.
type Service struct {
	store    store.Store
	queue    queue.Queue
	scorer   inference.Scorer
	counters *metrics.Counters

	defaultModel string
	maxRetries   int
	timeout      time.Duration
}

// NewService creates the orchestrator. maxRetries and timeout must match
// the executor's retry policy and soft deadline.
func NewService(st store.Store, q queue.Queue, scorer inference.Scorer,
	counters *metrics.Counters, defaultModel string, maxRetries int, timeout time.Duration) *Service {
	return &Service{
		store:        st,
		queue:        q,
		scorer:       scorer,
		counters:     counters,
		defaultModel: defaultModel,
		maxRetries:   maxRetries,
		timeout:      timeout,
	}
}

// Submit creates a job record and dispatches it for execution. When
// idempotencyKey matches an existing job the prior job is returned
// unchanged and nothing is dispatched, making submission safe under client
// retries.
func (s *Service) Submit(ctx context.Context, text, modelVersion string, idempotencyKey *string) (*models.Job, error) {
	if modelVersion == "" {
		modelVersion = s.defaultModel
	}

	if idempotencyKey != nil && *idempotencyKey != "" {
		existing, err := s.store.GetJobByIdempotencyKey(ctx, *idempotencyKey)
		if err == nil {
			return existing, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("lookup idempotency key: %w", err)
		}
	} else {
		idempotencyKey = nil
	}

	job := &models.Job{
		JobID:          uuid.NewString(),
		IdempotencyKey: idempotencyKey,
		InputText:      text,
		ModelVersion:   modelVersion,
		Status:         models.JobStatusQueued,
	}

	created, err := s.store.CreateJob(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if created.JobID != job.JobID {
		// Lost a concurrent race on the idempotency key; the winner already
		// dispatched the work.
		return created, nil
	}

	task := queue.Task{ID: created.JobID, InputText: text, ModelVersion: modelVersion}
	if err := s.queue.Enqueue(ctx, task); err != nil {
		if updateErr := s.store.UpdateFailed(ctx, created.JobID, fmt.Sprintf("enqueue failed: %v", err), 0); updateErr != nil {
			slog.Error("record enqueue failure", "job_id", created.JobID, "error", updateErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrEnqueue, err)
	}

	s.counters.IncSubmitted()
	slog.Info("job_queued", "job_id", created.JobID, "status", models.JobStatusQueued)

	return created, nil
}

// Handle executes one attempt of a task inside the executor's worker
// context. Store writes on the failure paths use a context detached from
// the attempt deadline so a timed-out attempt still gets recorded.
func (s *Service) Handle(ctx context.Context, task queue.Task) error {
	record := context.WithoutCancel(ctx)

	if err := s.store.UpdateStarted(record, task.ID, task.RetryCount); err != nil {
		slog.Error("record start", "job_id", task.ID, "error", err)
	}
	slog.Info("inference_started", "job_id", task.ID, "status", models.JobStatusStarted, "retry_count", task.RetryCount)

	pred, err := s.scorer.Score(ctx, task.InputText)
	if err != nil {
		return s.recordFailure(record, task, err)
	}

	score := math.Round(pred.Score*10000) / 10000
	if err := s.store.UpdateSucceeded(record, task.ID, pred.Label, score); err != nil {
		slog.Error("record success", "job_id", task.ID, "error", err)
	}
	result := queue.Result{Label: pred.Label, Score: score, ModelVersion: task.ModelVersion}
	if err := s.queue.SetTaskResult(record, task.ID, result); err != nil {
		slog.Error("record broker result", "job_id", task.ID, "error", err)
	}
	s.counters.IncSucceeded()
	slog.Info("inference_succeeded", "job_id", task.ID, "status", models.JobStatusSucceeded)

	return nil
}

// Abandon records a terminal failure for a task the executor could not keep
// alive, typically because scheduling its retry failed. Without it the row
// would stay started forever while the broker already reports failure.
func (s *Service) Abandon(ctx context.Context, task queue.Task, cause error) {
	msg := fmt.Sprintf("retry scheduling failed: %v", cause)
	if err := s.store.UpdateFailed(ctx, task.ID, msg, task.RetryCount); err != nil {
		slog.Error("record abandoned task", "job_id", task.ID, "error", err)
	}
	s.counters.IncFailed()
	slog.Error("inference_failed", "job_id", task.ID, "status", models.JobStatusFailed, "error", cause)
}

func (s *Service) recordFailure(ctx context.Context, task queue.Task, cause error) error {
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		msg := fmt.Sprintf("inference timeout after %s", s.timeout)
		if err := s.store.UpdateFailed(ctx, task.ID, msg, task.RetryCount); err != nil {
			slog.Error("record timeout", "job_id", task.ID, "error", err)
		}
		s.counters.IncFailed()
		slog.Error("inference_timeout", "job_id", task.ID, "status", models.JobStatusFailed)

	case errors.Is(cause, queue.ErrTransient):
		// The executor retries transient faults; only the final exhausted
		// attempt is recorded as failed. Earlier attempts leave the row in
		// started so the client sees a live retry, not a false terminal.
		if task.RetryCount < s.maxRetries {
			return cause
		}
		if err := s.store.UpdateFailed(ctx, task.ID, cause.Error(), task.RetryCount); err != nil {
			slog.Error("record failure", "job_id", task.ID, "error", err)
		}
		s.counters.IncFailed()
		slog.Error("inference_failed", "job_id", task.ID, "status", models.JobStatusFailed, "retry_count", task.RetryCount)

	default:
		if err := s.store.UpdateFailed(ctx, task.ID, cause.Error(), task.RetryCount); err != nil {
			slog.Error("record failure", "job_id", task.ID, "error", err)
		}
		s.counters.IncFailed()
		slog.Error("inference_failed", "job_id", task.ID, "status", models.JobStatusFailed, "error", cause)
	}

	return cause
}
