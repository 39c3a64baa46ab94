package handler

import (
	"context"
	"net/http"

	"github.com/Jacobjfiske/inferflow/internal/api/response"
	"github.com/Jacobjfiske/inferflow/internal/jobs"
	"github.com/go-chi/chi/v5"
)

// StatusProvider defines the interface the handler depends on.
type StatusProvider interface {
	Status(ctx context.Context, jobID string) (*jobs.StatusView, error)
}

// NewJobStatusHandler returns an http.HandlerFunc for GET /v1/jobs/{jobID}.
// Unrecognized IDs resolve to status "unknown" with 200, never 404; the
// client cannot distinguish a typo from a record the system has not
// persisted yet, and polling loops should not treat either as fatal.
func NewJobStatusHandler(svc StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		if jobID == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "job ID is required", nil)
			return
		}

		view, err := svc.Status(r.Context(), jobID)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"An unexpected error occurred", nil)
			return
		}

		response.JSON(w, view)
	}
}
