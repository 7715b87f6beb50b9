package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/taskqueue/internal/model"
	"github.com/ashita-ai/taskqueue/internal/ratelimit"
	"github.com/ashita-ai/taskqueue/internal/testutil"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen, "caller-supplied IDs are propagated")
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := requestIDMiddleware(recoveryMiddleware(testutil.TestLogger(),
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body model.APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Status)
	assert.Equal(t, model.ErrCodeGeneral, body.ErrorCode)
	assert.NotEmpty(t, body.RequestID)
}

func TestStatusWriter_FirstCodeWins(t *testing.T) {
	rec := httptest.NewRecorder()
	w := &statusWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	w.WriteHeader(http.StatusTeapot)
	w.WriteHeader(http.StatusInternalServerError)
	assert.Equal(t, http.StatusTeapot, w.statusCode)
}

func TestWriteServiceError_Mapping(t *testing.T) {
	h := NewHandlers(HandlersDeps{Logger: testutil.TestLogger()})
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("%w: task 4", model.ErrNotFound), model.ErrCodeNotFound},
		{fmt.Errorf("%w: task type %q", model.ErrNoWorkAvailable, "scrape"), model.ErrCodeNotFound},
		{fmt.Errorf("%w: missing status", model.ErrConfig), model.ErrCodeNotFound},
		{fmt.Errorf("%w: %q", model.ErrUnknownType, "nope"), model.ErrCodeGeneral},
		{fmt.Errorf("%w: bad", model.ErrInvalidInput), model.ErrCodeGeneral},
		{fmt.Errorf("tasks: claim: connection refused"), model.ErrCodeGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, http.StatusOK, rec.Code, "business failures are served with 200")
			var body model.APIError
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.ErrorCode)
			assert.Equal(t, tt.err.Error(), body.ErrorMessage)
		})
	}
}

func TestClaimRateLimit(t *testing.T) {
	// rate=1 token/sec, burst=2: two rapid claims pass, the third is rejected.
	limiter := ratelimit.NewMemoryLimiter(1, 2)
	defer func() { _ = limiter.Close() }()

	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := ratelimit.Middleware(limiter, ratelimit.AgentKeyFunc, nil)(inner)

	for i := range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks/claim?task_type=a&agent_id=w1", nil))
		if i < 2 {
			assert.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i+1)
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	}

	// A different agent has its own bucket.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks/claim?task_type=a&agent_id=w2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
