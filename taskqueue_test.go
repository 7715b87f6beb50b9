package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/taskqueue/internal/model"
	"github.com/ashita-ai/taskqueue/internal/testutil"
)

var appSeq atomic.Int64

type staticDocs struct{}

func (staticDocs) FetchDocuments(_ context.Context, kind DocumentKind, taskID int64) []Document {
	if kind != DocumentKindText {
		return nil
	}
	return []Document{{
		ID:       fmt.Sprintf("doc-%d", taskID),
		Metadata: map[string]any{"kind": string(kind)},
		Content:  "body",
	}}
}

func newTestApp(t *testing.T, opts ...Option) *App {
	t.Helper()
	t.Chdir(t.TempDir())
	dsn := fmt.Sprintf("file:taskqueue_app_%d?mode=memory&cache=shared", appSeq.Add(1))
	base := []Option{
		WithSQLitePath(dsn),
		WithPort(0),
		WithTaskTypes("scrape"),
		WithLogger(testutil.TestLogger()),
		WithVersion("test"),
	}
	app, err := New(context.Background(), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app
}

func TestNewWiresSQLiteStore(t *testing.T) {
	app := newTestApp(t)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health model.HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "sqlite", health.Store)
	assert.Equal(t, "test", health.Version)

	q := url.Values{"task_type": {"scrape"}, "query": {`{"a":1}`}, "requested_by_user": {"ops@example.com"}}
	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/tasks?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Status bool                `json:"status"`
		Data   model.EnqueueResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	assert.True(t, resp.Status, "seeded task type must be accepted")

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDocumentSourceOption(t *testing.T) {
	app := newTestApp(t, WithDocumentSource(staticDocs{}))

	q := url.Values{"task_type": {"scrape"}, "query": {`{"a":1}`}, "requested_by_user": {"ops@example.com"}}
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/tasks?"+q.Encode(), nil))
	var resp struct {
		Data model.EnqueueResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/DatasetDiscovery?revision="+url.QueryEscape(resp.Data.Revision), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var out []model.Discovery
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	require.Len(t, out, 1)
	assert.Empty(t, out[0].OriginalContent)
	require.Len(t, out[0].TextContent, 1)
	assert.Equal(t, fmt.Sprintf("doc-%d", resp.Data.ID), out[0].TextContent[0].DocumentID)
	assert.Equal(t, "body", out[0].TextContent[0].Content)
}

func TestExtraRoutesAndMiddleware(t *testing.T) {
	var order []string
	app := newTestApp(t,
		WithExtraRoutes(func(mux *http.ServeMux) {
			mux.HandleFunc("GET /custom", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusAccepted)
			})
		}),
		WithMiddleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, "first")
				next.ServeHTTP(w, r)
			})
		}),
		WithMiddleware(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, "second")
				w.Header().Set("X-Custom", "1")
				next.ServeHTTP(w, r)
			})
		}),
	)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/custom", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("X-Custom"))
	assert.Equal(t, []string{"first", "second"}, order)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"), "extra routes share the built-in chain")
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Chdir(t.TempDir())
	dsn := fmt.Sprintf("file:taskqueue_app_%d?mode=memory&cache=shared", appSeq.Add(1))
	app, err := New(context.Background(),
		WithSQLitePath(dsn), WithPort(0), WithLogger(testutil.TestLogger()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("TASKQUEUE_LOG_FORMAT", "xml")
	_, err := New(context.Background(), WithSQLitePath("file:bad?mode=memory"), WithLogger(testutil.TestLogger()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TASKQUEUE_LOG_FORMAT")
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger("debug", "text")
	require.NoError(t, err)
	assert.True(t, logger.Enabled(context.Background(), -4))

	_, err = NewLogger("chatty", "json")
	assert.Error(t, err)
}

func TestShutdownStopsPollerBeforeClosingStore(t *testing.T) {
	app := newTestApp(t)

	// The caller's context stays live, as when the listener fails on its own.
	app.startPoller(context.Background())
	require.NotNil(t, app.pollerDone)

	require.NoError(t, app.Shutdown(context.Background()))
	select {
	case <-app.pollerDone:
	default:
		t.Fatal("metrics poller still running after Shutdown")
	}
}

func TestRunStopsPollerWhenServerFails(t *testing.T) {
	busy, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer func() { _ = busy.Close() }()
	port := busy.Addr().(*net.TCPAddr).Port

	app := newTestApp(t, WithPort(port))
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(context.Background()) }()

	select {
	case err := <-errCh:
		require.Error(t, err, "port is taken")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after the listener failed")
	}
	select {
	case <-app.pollerDone:
	default:
		t.Fatal("metrics poller still running after Run returned")
	}
}

type chanHook struct{ events chan TaskEvent }

func (h chanHook) OnTaskEnqueued(_ context.Context, ev TaskEvent) error {
	h.events <- ev
	return nil
}

func (h chanHook) OnTaskClaimed(_ context.Context, ev TaskEvent) error {
	h.events <- ev
	return nil
}

func (h chanHook) OnTaskFinished(_ context.Context, ev TaskEvent) error {
	h.events <- ev
	return nil
}

func TestEventHookOption(t *testing.T) {
	hook := chanHook{events: make(chan TaskEvent, 4)}
	app := newTestApp(t, WithEventHook(hook))

	q := url.Values{"task_type": {"scrape"}, "query": {`{"a":1}`}, "requested_by_user": {"ops@example.com"}}
	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/tasks?"+q.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case ev := <-hook.events:
		assert.Equal(t, "unclaimed", ev.Status)
		assert.Equal(t, "scrape", ev.TaskType)
		assert.NotZero(t, ev.TaskID)
	case <-time.After(5 * time.Second):
		t.Fatal("hook not called for an HTTP enqueue")
	}
}
