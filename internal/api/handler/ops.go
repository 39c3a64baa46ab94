package handler

import (
	"context"
	"net/http"

	"github.com/Jacobjfiske/inferflow/internal/api/response"
	"github.com/Jacobjfiske/inferflow/internal/metrics"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewHealthHandler returns an http.HandlerFunc for GET /health. It is a
// liveness probe and never touches backing services.
func NewHealthHandler(serviceName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, map[string]any{
			"status":  "ok",
			"service": serviceName,
		})
	}
}

// NewReadyHandler returns an http.HandlerFunc for GET /ready, checking
// database and broker connectivity.
func NewReadyHandler(db, broker Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"broker":   "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := broker.Ping(r.Context()); err != nil {
			checks["broker"] = "degraded"
		}

		if checks["database"] != "ok" || checks["broker"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}

// NewMetricsHandler returns an http.HandlerFunc for GET /metrics exposing
// the process-local job counters.
func NewMetricsHandler(counters *metrics.Counters) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, counters.Snapshot())
	}
}
