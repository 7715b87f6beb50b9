package taskqueue

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockServer creates an httptest server that mimics the task queue API.
func mockServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range handlers {
		mux.HandleFunc(pattern, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ok(data any) map[string]any {
	return map[string]any{"status": true, "data": data}
}

func failure(code int, msg string) map[string]any {
	return map[string]any{"status": false, "error_code": code, "error_message": msg, "request_id": "req-1"}
}

func newTestClient(t *testing.T, serverURL string) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: serverURL, AgentID: "worker-1", Timeout: 5 * time.Second})
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestEnqueue(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"PUT /tasks": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "scrape", q.Get("task_type"))
			assert.Equal(t, `{"a":1}`, q.Get("query"))
			assert.Equal(t, "ops@example.com", q.Get("requested_by_user"))
			assert.False(t, q.Has("notes"))
			writeJSON(w, http.StatusOK, map[string]any{
				"status": true, "message": "Task enqueued",
				"data": EnqueueResult{ID: 7, ParameterChecksum: "abc", Revision: "1_abc"},
			})
		},
	})
	c := newTestClient(t, srv.URL)

	res, err := c.Enqueue(context.Background(), EnqueueRequest{
		TaskType: "scrape", Query: `{"a":1}`, RequestedByUser: "ops@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.ID)
	assert.Equal(t, "1_abc", res.Revision)
}

func TestBusinessFailureOn200(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"PUT /tasks": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, failure(CodeGeneral, `unknown task type: "nope"`))
		},
	})
	c := newTestClient(t, srv.URL)

	_, err := c.Enqueue(context.Background(), EnqueueRequest{TaskType: "nope"})
	require.Error(t, err)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusOK, apiErr.HTTPStatus)
	assert.Equal(t, CodeGeneral, apiErr.Code)
	assert.Equal(t, "req-1", apiErr.RequestID)
	assert.False(t, IsNotFound(err))
}

func TestClaimAndNoWork(t *testing.T) {
	var calls atomic.Int32
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /tasks/claim": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "worker-1", r.URL.Query().Get("agent_id"))
			if calls.Add(1) == 1 {
				writeJSON(w, http.StatusOK, failure(CodeNotFound, `no unclaimed task found: task type "scrape"`))
				return
			}
			writeJSON(w, http.StatusOK, ok(Task{ID: 3, Query: "{}"}))
		},
	})
	c := newTestClient(t, srv.URL)

	_, err := c.Claim(context.Background(), "scrape")
	assert.True(t, IsNoWorkAvailable(err))
	assert.True(t, IsNotFound(err))

	task, err := c.Claim(context.Background(), "scrape")
	require.NoError(t, err)
	assert.Equal(t, int64(3), task.ID)
}

func TestClaimRequiresAgentID(t *testing.T) {
	c, err := NewClient(Config{BaseURL: "http://localhost:1"})
	require.NoError(t, err)
	_, err = c.Claim(context.Background(), "scrape")
	assert.Error(t, err)
}

func TestPoll(t *testing.T) {
	var calls atomic.Int32
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /tasks/claim": func(w http.ResponseWriter, _ *http.Request) {
			switch calls.Add(1) {
			case 1:
				writeJSON(w, http.StatusOK, failure(CodeNotFound, "no unclaimed task found"))
			case 2:
				writeJSON(w, http.StatusTooManyRequests, failure(CodeGeneral, "rate limit exceeded"))
			default:
				writeJSON(w, http.StatusOK, ok(Task{ID: 11}))
			}
		},
	})
	c := newTestClient(t, srv.URL)

	task, err := c.Poll(context.Background(), "scrape", 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, int64(11), task.ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestPollStopsOnContext(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /tasks/claim": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, failure(CodeNotFound, "no unclaimed task found"))
		},
	})
	c := newTestClient(t, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Poll(ctx, "scrape", 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPollReturnsOtherErrors(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"POST /tasks/claim": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, failure(CodeGeneral, `unknown task type: "x"`))
		},
	})
	c := newTestClient(t, srv.URL)

	_, err := c.Poll(context.Background(), "x", time.Millisecond)
	require.Error(t, err)
	assert.False(t, IsNoWorkAvailable(err))
}

func TestCompleteAndReportProgress(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"PUT /tasks/complete": func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			assert.Equal(t, "5", q.Get("task_id"))
			assert.Equal(t, "true", q.Get("success"))
			assert.Equal(t, "s3://out", q.Get("object_storage_key_for_results"))
			writeJSON(w, http.StatusOK, map[string]any{"status": true, "message": "Task status updated"})
		},
		"PUT /tasks/metrics/{id}": func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("id") != "5" {
				writeJSON(w, http.StatusNotFound, failure(CodeNotFound, "not found: task 9"))
				return
			}
			body, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"done":3}`, string(body))
			writeJSON(w, http.StatusOK, map[string]any{"status": true})
		},
	})
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.Complete(ctx, CompleteRequest{TaskID: 5, Success: true, ResultKey: "s3://out"}))
	require.NoError(t, c.ReportProgress(ctx, 5, map[string]any{"done": 3}))

	err := c.ReportProgress(ctx, 9, map[string]any{})
	assert.True(t, IsNotFound(err))
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.HTTPStatus)
}

func TestListingEndpoints(t *testing.T) {
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /tasks": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "claimed", r.URL.Query().Get("task_status"))
			writeJSON(w, http.StatusOK, []TaskSummary{{Task: Task{ID: 1}, TaskType: "scrape", TaskStatus: StatusClaimed}})
		},
		"GET /JobStatus": func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, []TaskSummary{})
		},
		"GET /DatasetDiscovery": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "1_abc", r.URL.Query().Get("revision"))
			writeJSON(w, http.StatusOK, []Discovery{{
				Task:        TaskSummary{Task: Task{ID: 1}},
				TextContent: []Document{{DocumentID: "d1", Content: "hello"}},
			}})
		},
	})
	c := newTestClient(t, srv.URL)
	ctx := context.Background()

	listed, err := c.List(ctx, &ListFilter{TaskStatus: StatusClaimed})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "scrape", listed[0].TaskType)

	found, err := c.FindByQuery(ctx, "scrape", `{"a":1}`)
	require.NoError(t, err)
	assert.Empty(t, found)

	disc, err := c.Discover(ctx, "1_abc")
	require.NoError(t, err)
	require.Len(t, disc, 1)
	assert.Equal(t, "hello", disc[0].TextContent[0].Content)
}

func TestHealth(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	srv := mockServer(t, map[string]http.HandlerFunc{
		"GET /health": func(w http.ResponseWriter, _ *http.Request) {
			if healthy.Load() {
				writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: "1.0", Store: "sqlite"})
				return
			}
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unhealthy"})
		},
	})
	c := newTestClient(t, srv.URL)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sqlite", h.Store)

	healthy.Store(false)
	h, err = c.Health(context.Background())
	require.Error(t, err)
	require.NotNil(t, h)
	assert.Equal(t, "unhealthy", h.Status)
}
