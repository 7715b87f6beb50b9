package mcp

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/taskqueue/internal/ctxutil"
	"github.com/ashita-ai/taskqueue/internal/model"
	"github.com/ashita-ai/taskqueue/internal/service/tasks"
	"github.com/ashita-ai/taskqueue/internal/testutil"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	store := testutil.NewSQLiteStore(t)
	_, err := store.EnsureTaskType(ctx, "scrape")
	require.NoError(t, err)
	reg, err := tasks.LoadStatusRegistry(ctx, store, testutil.TestLogger())
	require.NoError(t, err)
	svc := tasks.New(store, reg, nil, testutil.TestLogger())
	return New(svc, testutil.TestLogger(), "test")
}

func callTool(t *testing.T, handler func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error), args map[string]any) *mcplib.CallToolResult {
	t.Helper()
	var req mcplib.CallToolRequest
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func resultText(t *testing.T, res *mcplib.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcplib.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func decodeResult(t *testing.T, res *mcplib.CallToolResult, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), v))
}

func TestToolLifecycle(t *testing.T) {
	s := newTestServer(t)

	res := callTool(t, s.handleEnqueue, map[string]any{
		"task_type":         "scrape",
		"query":             `{"url":"https://example.com"}`,
		"requested_by_user": "ops@example.com",
	})
	require.False(t, res.IsError, resultText(t, res))
	var enq model.EnqueueResult
	decodeResult(t, res, &enq)
	assert.NotZero(t, enq.ID)
	assert.Len(t, enq.ParameterChecksum, 32)

	res = callTool(t, s.handleClaim, map[string]any{"task_type": "scrape", "agent_id": "worker-1"})
	require.False(t, res.IsError, resultText(t, res))
	var claimed model.Task
	decodeResult(t, res, &claimed)
	assert.Equal(t, enq.ID, claimed.ID)
	require.NotNil(t, claimed.ClaimedByAgent)
	assert.Equal(t, "worker-1", *claimed.ClaimedByAgent)

	res = callTool(t, s.handleReportProgress, map[string]any{
		"task_id": float64(enq.ID),
		"metrics": map[string]any{"done": 3.0},
	})
	require.False(t, res.IsError, resultText(t, res))

	res = callTool(t, s.handleComplete, map[string]any{
		"task_id":                        float64(enq.ID),
		"success":                        true,
		"object_storage_key_for_results": "s3://bucket/out",
	})
	require.False(t, res.IsError, resultText(t, res))
	var done map[string]any
	decodeResult(t, res, &done)
	assert.Equal(t, "completed", done["task_status"])
}

func TestClaimEmptyQueue(t *testing.T) {
	s := newTestServer(t)

	res := callTool(t, s.handleClaim, map[string]any{"task_type": "scrape", "agent_id": "worker-1"})
	require.True(t, res.IsError)
	var apiErr model.APIError
	decodeResult(t, res, &apiErr)
	assert.Equal(t, model.ErrCodeNotFound, apiErr.ErrorCode)
	assert.Contains(t, apiErr.ErrorMessage, "no unclaimed task found")
}

func TestCompleteRequiresResultKey(t *testing.T) {
	s := newTestServer(t)

	res := callTool(t, s.handleComplete, map[string]any{"task_id": float64(1), "success": true})
	require.True(t, res.IsError)
	var apiErr model.APIError
	decodeResult(t, res, &apiErr)
	assert.Equal(t, model.ErrCodeGeneral, apiErr.ErrorCode)
	assert.Contains(t, apiErr.ErrorMessage, "object_storage_key_for_results cannot be empty")
}

func TestCompleteRejectsFractionalID(t *testing.T) {
	s := newTestServer(t)

	res := callTool(t, s.handleComplete, map[string]any{"task_id": 1.5, "success": false})
	require.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "task_id must be an integer")
}

func TestReportProgressUnknownTask(t *testing.T) {
	s := newTestServer(t)

	res := callTool(t, s.handleReportProgress, map[string]any{
		"task_id": float64(999),
		"metrics": map[string]any{"a": 1.0},
	})
	require.True(t, res.IsError)
	var apiErr model.APIError
	decodeResult(t, res, &apiErr)
	assert.Equal(t, model.ErrCodeNotFound, apiErr.ErrorCode)
}

func TestListAndFind(t *testing.T) {
	s := newTestServer(t)
	for _, q := range []string{`{"a":1,"b":2}`, `{"a":9}`} {
		res := callTool(t, s.handleEnqueue, map[string]any{
			"task_type": "scrape", "query": q, "requested_by_user": "ops@example.com",
		})
		require.False(t, res.IsError, resultText(t, res))
	}

	res := callTool(t, s.handleList, map[string]any{"task_status": "unclaimed"})
	require.False(t, res.IsError, resultText(t, res))
	var listed struct {
		Tasks []map[string]any `json:"tasks"`
		Total int              `json:"total"`
	}
	decodeResult(t, res, &listed)
	assert.Equal(t, 2, listed.Total)
	_, hasQuery := listed.Tasks[0]["query"]
	assert.False(t, hasQuery, "compact tasks omit the query payload")

	res = callTool(t, s.handleFind, map[string]any{"task_type": "scrape", "query": `{"B": 2, "A": 1}`})
	require.False(t, res.IsError, resultText(t, res))
	decodeResult(t, res, &listed)
	assert.Equal(t, 1, listed.Total, "key order and case do not change the checksum")

	res = callTool(t, s.handleList, map[string]any{"task_status": "paused"})
	require.True(t, res.IsError)
}

func TestEnqueueRemindsToFindFirst(t *testing.T) {
	s := newTestServer(t)
	enqueue := func(query string) *mcplib.CallToolResult {
		res := callTool(t, s.handleEnqueue, map[string]any{
			"task_type": "scrape", "query": query, "requested_by_user": "ops@example.com",
		})
		require.False(t, res.IsError, resultText(t, res))
		return res
	}

	res := enqueue(`{"url":"https://a.example"}`)
	require.Len(t, res.Content, 2)
	assert.Contains(t, res.Content[1].(mcplib.TextContent).Text, "taskqueue_find")

	res = callTool(t, s.handleFind, map[string]any{"task_type": "scrape", "query": `{"URL":"https://b.example"}`})
	require.False(t, res.IsError, resultText(t, res))

	res = enqueue(`{"url":"https://b.example"}`)
	assert.Len(t, res.Content, 1, "an equivalent query was looked up first")
	var enq model.EnqueueResult
	decodeResult(t, res, &enq)
	assert.NotZero(t, enq.ID)
}

func TestTypesResource(t *testing.T) {
	s := newTestServer(t)

	contents, err := s.handleTypes(context.Background(), mcplib.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	text := contents[0].(mcplib.TextResourceContents).Text
	assert.Contains(t, text, `"scrape"`)
	assert.Contains(t, text, `"unclaimed"`)
}

func TestTaskResource(t *testing.T) {
	s := newTestServer(t)
	res := callTool(t, s.handleEnqueue, map[string]any{
		"task_type": "scrape", "query": "{}", "requested_by_user": "ops@example.com",
	})
	var enq model.EnqueueResult
	decodeResult(t, res, &enq)

	var req mcplib.ReadResourceRequest
	req.Params.URI = "taskqueue://tasks/" + strconv.FormatInt(enq.ID, 10)
	contents, err := s.handleTask(context.Background(), req)
	require.NoError(t, err)
	var summary model.TaskSummary
	require.NoError(t, json.Unmarshal([]byte(contents[0].(mcplib.TextResourceContents).Text), &summary))
	assert.Equal(t, enq.ID, summary.ID)
	assert.Equal(t, "scrape", summary.TaskType)

	req.Params.URI = "taskqueue://tasks/424242"
	_, err = s.handleTask(context.Background(), req)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestParseTaskURI(t *testing.T) {
	tests := []struct {
		uri       string
		want      int64
		errSubstr string
	}{
		{uri: "taskqueue://tasks/7", want: 7},
		{uri: "taskqueue://tasks/123456789", want: 123456789},
		{uri: "taskqueue://tasks/", errSubstr: "invalid task URI"},
		{uri: "taskqueue://tasks/7/extra", errSubstr: "invalid task URI"},
		{uri: "taskqueue://types", errSubstr: "invalid task URI"},
		{uri: "taskqueue://tasks/abc", errSubstr: "invalid task id"},
		{uri: "taskqueue://tasks/-1", errSubstr: "invalid task id"},
		{uri: "", errSubstr: "invalid task URI"},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			id, err := parseTaskURI(tt.uri)
			if tt.errSubstr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errSubstr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestWorkerLoopPrompt(t *testing.T) {
	s := newTestServer(t)

	var req mcplib.GetPromptRequest
	req.Params.Arguments = map[string]string{"task_type": "scrape", "agent_id": "w-9"}
	res, err := s.handleWorkerLoopPrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Messages, 1)
	text := res.Messages[0].Content.(mcplib.TextContent).Text
	assert.Contains(t, text, `taskqueue_claim with task_type="scrape" and agent_id="w-9"`)

	req.Params.Arguments = map[string]string{"task_type": "scrape"}
	_, err = s.handleWorkerLoopPrompt(context.Background(), req)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abc...", truncate("abcdef", 3))
	assert.Equal(t, "héé...", truncate("hééllo", 3), "cuts on rune boundaries")
}

func TestServiceErrorEchoesRequestID(t *testing.T) {
	s := newTestServer(t)

	ctx := ctxutil.WithRequestID(context.Background(), "req-7")
	var req mcplib.CallToolRequest
	req.Params.Arguments = map[string]any{"task_type": "nope", "agent_id": "w"}
	res, err := s.handleClaim(ctx, req)
	require.NoError(t, err)
	require.True(t, res.IsError)

	var apiErr model.APIError
	decodeResult(t, res, &apiErr)
	assert.Equal(t, "req-7", apiErr.RequestID)
	assert.Equal(t, model.ErrCodeGeneral, apiErr.ErrorCode)
}
