package api

import (
	"net/http"

	mw "github.com/Jacobjfiske/inferflow/internal/api/middleware"
	"github.com/Jacobjfiske/inferflow/internal/api/response"
	"github.com/go-chi/chi/v5"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler  http.HandlerFunc
	ReadyHandler   http.HandlerFunc
	MetricsHandler http.HandlerFunc
	SubmitHandler  http.HandlerFunc
	JobHandler     http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/health", orNotImplemented(deps.HealthHandler))
	r.Get("/ready", orNotImplemented(deps.ReadyHandler))
	r.Get("/metrics", orNotImplemented(deps.MetricsHandler))

	r.Post("/v1/inference", orNotImplemented(deps.SubmitHandler))
	r.Get("/v1/jobs/{jobID}", orNotImplemented(deps.JobHandler))

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
