package models

import "time"

const (
	JobStatusQueued    = "queued"
	JobStatusStarted   = "started"
	JobStatusSucceeded = "succeeded"
	JobStatusFailed    = "failed"

	// JobStatusUnknown is the status reported for a job ID that neither the
	// record store nor the broker has any knowledge of.
	JobStatusUnknown = "unknown"
)

// Job is the durable record of one inference request. The API returns a
// job_id on POST /v1/inference; the client polls GET /v1/jobs/{job_id}
// until status is succeeded or failed.
type Job struct {
	JobID          string     `db:"job_id"          json:"job_id"`
	IdempotencyKey *string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	InputText      string     `db:"input_text"      json:"input_text"`
	ModelVersion   string     `db:"model_version"   json:"model_version"`
	Status         string     `db:"status"          json:"status"`
	ResultLabel    *string    `db:"result_label"    json:"result_label,omitempty"`
	ResultScore    *float64   `db:"result_score"    json:"result_score,omitempty"`
	Error          *string    `db:"error"           json:"error,omitempty"`
	RetryCount     int        `db:"retry_count"     json:"retry_count"`
	CreatedAt      time.Time  `db:"created_at"      json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"      json:"updated_at"`
}

// Prediction is the output of the scoring function.
type Prediction struct {
	Label string
	Score float64
}
