package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Jacobjfiske/inferflow/internal/api/response"
	"github.com/Jacobjfiske/inferflow/internal/jobs"
	"github.com/Jacobjfiske/inferflow/pkg/models"
)

// maxInputTextLen bounds submissions; anything larger is rejected up front
// rather than queued and failed.
const maxInputTextLen = 5000

// Submitter defines the interface the handler depends on.
type Submitter interface {
	Submit(ctx context.Context, text, modelVersion string, idempotencyKey *string) (*models.Job, error)
}

// NewSubmitHandler returns an http.HandlerFunc for POST /v1/inference.
func NewSubmitHandler(svc Submitter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Text         string `json:"text"`
			ModelVersion string `json:"model_version"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if strings.TrimSpace(req.Text) == "" {
			response.Error(w, http.StatusUnprocessableEntity, "INVALID_REQUEST", "text must not be empty", nil)
			return
		}
		if len(req.Text) > maxInputTextLen {
			response.Error(w, http.StatusUnprocessableEntity, "INVALID_REQUEST",
				"text exceeds the maximum length of 5000 characters", nil)
			return
		}

		var idempotencyKey *string
		if key := r.Header.Get("Idempotency-Key"); key != "" {
			idempotencyKey = &key
		}

		job, err := svc.Submit(r.Context(), req.Text, req.ModelVersion, idempotencyKey)
		if err != nil {
			if errors.Is(err, jobs.ErrEnqueue) {
				response.Error(w, http.StatusBadGateway, "QUEUE_UNAVAILABLE",
					"The job could not be dispatched for execution", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.Accepted(w, submitResponse{
			JobID:          job.JobID,
			Status:         job.Status,
			IdempotencyKey: job.IdempotencyKey,
		})
	}
}

type submitResponse struct {
	JobID          string  `json:"job_id"`
	Status         string  `json:"status"`
	IdempotencyKey *string `json:"idempotency_key,omitempty"`
}
