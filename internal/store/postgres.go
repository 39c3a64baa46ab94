package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Jacobjfiske/inferflow/pkg/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const jobColumns = `job_id, idempotency_key, input_text, model_version, status,
	 result_label, result_score, error, retry_count, created_at, updated_at`

func scanJob(row pgx.Row) (*models.Job, error) {
	var j models.Job
	err := row.Scan(&j.JobID, &j.IdempotencyKey, &j.InputText, &j.ModelVersion, &j.Status,
		&j.ResultLabel, &j.ResultScore, &j.Error, &j.RetryCount, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE job_id = $1`, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) GetJobByIdempotencyKey(ctx context.Context, key string) (*models.Job, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE idempotency_key = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job by idempotency key: %w", err)
	}
	return j, nil
}

// CreateJob inserts a job row with status queued. Two concurrent submissions
// carrying the same idempotency key race on the unique index; the loser
// resolves the conflict by returning the winner's row rather than an error.
func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) (*models.Job, error) {
	now := time.Now().UTC()
	created, err := scanJob(s.pool.QueryRow(ctx,
		`INSERT INTO jobs (job_id, idempotency_key, input_text, model_version, status, retry_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
		 RETURNING `+jobColumns,
		job.JobID, job.IdempotencyKey, job.InputText, job.ModelVersion, models.JobStatusQueued, now))
	if err != nil {
		if isDuplicateKeyError(err) {
			if job.IdempotencyKey != nil {
				existing, lookupErr := s.GetJobByIdempotencyKey(ctx, *job.IdempotencyKey)
				if lookupErr == nil {
					return existing, nil
				}
			}
			return nil, fmt.Errorf("create job: %w", ErrDuplicateKey)
		}
		return nil, fmt.Errorf("create job: %w", err)
	}
	return created, nil
}

func (s *PostgresStore) UpdateStarted(ctx context.Context, jobID string, retryCount int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, retry_count = $3, updated_at = $4 WHERE job_id = $1`,
		jobID, models.JobStatusStarted, retryCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update job started: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSucceeded(ctx context.Context, jobID string, label string, score float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, result_label = $3, result_score = $4, error = NULL, updated_at = $5
		 WHERE job_id = $1`,
		jobID, models.JobStatusSucceeded, label, score, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update job succeeded: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateFailed(ctx context.Context, jobID string, errMsg string, retryCount int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, error = $3, retry_count = $4, updated_at = $5 WHERE job_id = $1`,
		jobID, models.JobStatusFailed, errMsg, retryCount, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update job failed: %w", err)
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
