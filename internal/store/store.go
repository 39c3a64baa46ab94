package store

import (
	"context"
	"errors"

	"github.com/Jacobjfiske/inferflow/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface for job records. All database
// operations go through here.
//
// Lifecycle updates (UpdateStarted, UpdateSucceeded, UpdateFailed) are
// last-writer-wins and must be idempotent no-ops when the row no longer
// exists, so a delayed write after external deletion never errors.
type Store interface {
	Ping(ctx context.Context) error

	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	GetJobByIdempotencyKey(ctx context.Context, key string) (*models.Job, error)

	// CreateJob inserts a new job row with status queued. When the insert
	// collides on the idempotency key (a concurrent duplicate submission),
	// the pre-existing row for that key is returned instead of the error.
	CreateJob(ctx context.Context, job *models.Job) (*models.Job, error)

	UpdateStarted(ctx context.Context, jobID string, retryCount int) error
	UpdateSucceeded(ctx context.Context, jobID string, label string, score float64) error
	UpdateFailed(ctx context.Context, jobID string, errMsg string, retryCount int) error
}
