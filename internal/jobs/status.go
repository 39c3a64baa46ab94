package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Jacobjfiske/inferflow/internal/queue"
	"github.com/Jacobjfiske/inferflow/internal/store"
	"github.com/Jacobjfiske/inferflow/pkg/models"
)

// StatusView is the client-facing status of a job. When built from the
// broker fallback only JobID and Status are populated.
type StatusView struct {
	JobID      string      `json:"job_id"`
	Status     string      `json:"status"`
	Result     *ResultView `json:"result,omitempty"`
	Error      *string     `json:"error,omitempty"`
	RetryCount *int        `json:"retry_count,omitempty"`
	CreatedAt  *time.Time  `json:"created_at,omitempty"`
	UpdatedAt  *time.Time  `json:"updated_at,omitempty"`
}

// ResultView is the inference result, present only once both label and
// score are set.
type ResultView struct {
	Label        string  `json:"label"`
	Score        float64 `json:"score"`
	ModelVersion string  `json:"model_version"`
}

// Status resolves a job's client-visible status. The durable row wins; when
// it is absent (store lag, bootstrap windows) the broker's own bookkeeping
// is consulted. An ID neither source knows yields status "unknown", never
// an error.
func (s *Service) Status(ctx context.Context, jobID string) (*StatusView, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err == nil {
		return viewFromJob(job), nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("get job: %w", err)
	}

	state, err := s.queue.TaskState(ctx, jobID)
	if err != nil {
		if errors.Is(err, queue.ErrUnknownTask) {
			return &StatusView{JobID: jobID, Status: models.JobStatusUnknown}, nil
		}
		return nil, fmt.Errorf("get task state: %w", err)
	}

	view := &StatusView{JobID: jobID, Status: mapBrokerState(state)}
	if state == queue.StateSuccess {
		result, ok, err := s.queue.TaskResult(ctx, jobID)
		if err != nil {
			return nil, fmt.Errorf("get task result: %w", err)
		}
		if ok {
			view.Result = &ResultView{
				Label:        result.Label,
				Score:        result.Score,
				ModelVersion: result.ModelVersion,
			}
		}
	}
	return view, nil
}

func viewFromJob(job *models.Job) *StatusView {
	view := &StatusView{
		JobID:      job.JobID,
		Status:     job.Status,
		Error:      job.Error,
		RetryCount: &job.RetryCount,
		CreatedAt:  &job.CreatedAt,
		UpdatedAt:  &job.UpdatedAt,
	}
	if job.ResultLabel != nil && job.ResultScore != nil {
		view.Result = &ResultView{
			Label:        *job.ResultLabel,
			Score:        *job.ResultScore,
			ModelVersion: job.ModelVersion,
		}
	}
	return view
}

// mapBrokerState translates broker-native states into the job status
// vocabulary. Non-final states the broker invents pass through lowercased.
func mapBrokerState(state string) string {
	switch state {
	case queue.StatePending:
		return models.JobStatusQueued
	case queue.StateStarted:
		return models.JobStatusStarted
	case queue.StateSuccess:
		return models.JobStatusSucceeded
	case queue.StateFailure:
		return models.JobStatusFailed
	default:
		return strings.ToLower(state)
	}
}
