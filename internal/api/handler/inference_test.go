package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Jacobjfiske/inferflow/internal/jobs"
	"github.com/Jacobjfiske/inferflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock Submitter ---

type mockSubmitter struct {
	fn func(ctx context.Context, text, modelVersion string, idempotencyKey *string) (*models.Job, error)

	gotText  string
	gotModel string
	gotKey   *string
}

func (m *mockSubmitter) Submit(ctx context.Context, text, modelVersion string, idempotencyKey *string) (*models.Job, error) {
	m.gotText = text
	m.gotModel = modelVersion
	m.gotKey = idempotencyKey
	return m.fn(ctx, text, modelVersion, idempotencyKey)
}

func acceptingSubmitter() *mockSubmitter {
	return &mockSubmitter{fn: func(_ context.Context, _, _ string, key *string) (*models.Job, error) {
		return &models.Job{
			JobID:          "job-123",
			IdempotencyKey: key,
			Status:         models.JobStatusQueued,
		}, nil
	}}
}

func submitReq(t *testing.T, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(http.MethodPost, "/v1/inference", bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error.Code
}

func TestSubmitHandler_Accepted(t *testing.T) {
	svc := acceptingSubmitter()
	h := NewSubmitHandler(svc)

	rec := httptest.NewRecorder()
	h(rec, submitReq(t, map[string]string{"text": "free prize, click now", "model_version": "v2"}))

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "job-123", resp.JobID)
	assert.Equal(t, models.JobStatusQueued, resp.Status)
	assert.Equal(t, "free prize, click now", svc.gotText)
	assert.Equal(t, "v2", svc.gotModel)
	assert.Nil(t, svc.gotKey)
}

func TestSubmitHandler_IdempotencyKeyHeader(t *testing.T) {
	svc := acceptingSubmitter()
	h := NewSubmitHandler(svc)

	req := submitReq(t, map[string]string{"text": "hello"})
	req.Header.Set("Idempotency-Key", "client-key-1")

	rec := httptest.NewRecorder()
	h(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, svc.gotKey)
	assert.Equal(t, "client-key-1", *svc.gotKey)

	var resp struct {
		IdempotencyKey *string `json:"idempotency_key"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.IdempotencyKey)
	assert.Equal(t, "client-key-1", *resp.IdempotencyKey)
}

func TestSubmitHandler_InvalidJSON(t *testing.T) {
	h := NewSubmitHandler(acceptingSubmitter())

	req := httptest.NewRequest(http.MethodPost, "/v1/inference", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
}

func TestSubmitHandler_EmptyText(t *testing.T) {
	svc := acceptingSubmitter()
	h := NewSubmitHandler(svc)

	rec := httptest.NewRecorder()
	h(rec, submitReq(t, map[string]string{"text": "   "}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
	assert.Empty(t, svc.gotText)
}

func TestSubmitHandler_TextTooLong(t *testing.T) {
	h := NewSubmitHandler(acceptingSubmitter())

	rec := httptest.NewRecorder()
	h(rec, submitReq(t, map[string]string{"text": strings.Repeat("a", maxInputTextLen+1)}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
}

func TestSubmitHandler_EnqueueFailure(t *testing.T) {
	svc := &mockSubmitter{fn: func(_ context.Context, _, _ string, _ *string) (*models.Job, error) {
		return nil, jobs.ErrEnqueue
	}}
	h := NewSubmitHandler(svc)

	rec := httptest.NewRecorder()
	h(rec, submitReq(t, map[string]string{"text": "hello"}))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "QUEUE_UNAVAILABLE", errorCode(t, rec))
}

func TestSubmitHandler_InternalError(t *testing.T) {
	svc := &mockSubmitter{fn: func(_ context.Context, _, _ string, _ *string) (*models.Job, error) {
		return nil, errors.New("db down")
	}}
	h := NewSubmitHandler(svc)

	rec := httptest.NewRecorder()
	h(rec, submitReq(t, map[string]string{"text": "hello"}))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rec))
}
