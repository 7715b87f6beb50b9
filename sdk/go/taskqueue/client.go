package taskqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the server (e.g. "http://localhost:8080").
	BaseURL string

	// AgentID identifies this worker on Claim. Submit-only clients may
	// leave it empty.
	AgentID string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with Timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the task queue API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	agentID string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("taskqueue: BaseURL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		agentID: cfg.AgentID,
		client:  httpClient,
	}, nil
}

// Enqueue submits a new task.
func (c *Client) Enqueue(ctx context.Context, req EnqueueRequest) (*EnqueueResult, error) {
	params := url.Values{
		"task_type":         {req.TaskType},
		"query":             {req.Query},
		"requested_by_user": {req.RequestedByUser},
	}
	if req.Notes != "" {
		params.Set("notes", req.Notes)
	}
	var res EnqueueResult
	if err := c.do(ctx, http.MethodPut, "/tasks", params, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Claim takes the oldest unclaimed task of taskType for this client's
// agent. An empty queue is reported as an error for which
// IsNoWorkAvailable is true.
func (c *Client) Claim(ctx context.Context, taskType string) (*Task, error) {
	if c.agentID == "" {
		return nil, fmt.Errorf("taskqueue: AgentID is required to claim")
	}
	params := url.Values{"task_type": {taskType}, "agent_id": {c.agentID}}
	var task Task
	if err := c.do(ctx, http.MethodPost, "/tasks/claim", params, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// Poll claims a task of taskType, waiting interval between attempts while
// the queue is empty. It returns when a task is claimed, on any other
// error, or when ctx is done.
func (c *Client) Poll(ctx context.Context, taskType string, interval time.Duration) (*Task, error) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
		task, err := c.Claim(ctx, taskType)
		if err == nil {
			return task, nil
		}
		if !IsNoWorkAvailable(err) && !IsRateLimited(err) {
			return nil, err
		}
		timer.Reset(interval)
	}
}

// Complete records the outcome of a task.
func (c *Client) Complete(ctx context.Context, req CompleteRequest) error {
	params := url.Values{
		"task_id": {strconv.FormatInt(req.TaskID, 10)},
		"success": {strconv.FormatBool(req.Success)},
	}
	if req.ResultKey != "" {
		params.Set("object_storage_key_for_results", req.ResultKey)
	}
	if req.Message != "" {
		params.Set("message", req.Message)
	}
	return c.do(ctx, http.MethodPut, "/tasks/complete", params, nil, nil)
}

// ReportProgress replaces the progress metrics of a task.
func (c *Client) ReportProgress(ctx context.Context, taskID int64, metrics map[string]any) error {
	if metrics == nil {
		metrics = map[string]any{}
	}
	body, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("taskqueue: marshal metrics: %w", err)
	}
	return c.do(ctx, http.MethodPut, "/tasks/metrics/"+strconv.FormatInt(taskID, 10), nil, body, nil)
}

// List returns tasks matching f. A nil filter lists every task.
func (c *Client) List(ctx context.Context, f *ListFilter) ([]TaskSummary, error) {
	var out []TaskSummary
	if err := c.do(ctx, http.MethodGet, "/tasks", f.values(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status is List through the validated status endpoint.
func (c *Client) Status(ctx context.Context, f *ListFilter) ([]TaskSummary, error) {
	var out []TaskSummary
	if err := c.do(ctx, http.MethodGet, "/tasks/status", f.values(), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FindByQuery returns the tasks of taskType whose query has the same
// canonical checksum as query.
func (c *Client) FindByQuery(ctx context.Context, taskType, query string) ([]TaskSummary, error) {
	params := url.Values{"task_type": {taskType}, "query": {query}}
	var out []TaskSummary
	if err := c.do(ctx, http.MethodGet, "/JobStatus", params, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Discover returns the tasks with the given revision and their documents.
func (c *Client) Discover(ctx context.Context, revision string) ([]Discovery, error) {
	var out []Discovery
	if err := c.do(ctx, http.MethodGet, "/DatasetDiscovery", url.Values{"revision": {revision}}, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health reports server and store health. An unhealthy server returns
// the response along with an error.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out)
	if err != nil && out.Status == "" {
		return nil, err
	}
	return &out, err
}

func (f *ListFilter) values() url.Values {
	params := url.Values{}
	if f == nil {
		return params
	}
	if f.TaskType != "" {
		params.Set("task_type", f.TaskType)
	}
	if f.TaskStatus != "" {
		params.Set("task_status", f.TaskStatus)
	}
	if f.TaskID != 0 {
		params.Set("task_id", strconv.FormatInt(f.TaskID, 10))
	}
	return params
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// envelope covers both the success and the failure shapes. Status stays
// raw because health responses use a string status.
type envelope struct {
	Status       json.RawMessage `json:"status"`
	Message      string          `json:"message"`
	Data         json.RawMessage `json:"data"`
	ErrorCode    int             `json:"error_code"`
	ErrorMessage string          `json:"error_message"`
	RequestID    string          `json:"request_id"`
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body []byte, dest any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("taskqueue: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("taskqueue: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("taskqueue: read response body: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	// Listing endpoints answer with a bare array.
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if resp.StatusCode >= 400 {
			return &Error{HTTPStatus: resp.StatusCode, Code: CodeGeneral, Message: string(trimmed)}
		}
		if dest == nil {
			return nil
		}
		return json.Unmarshal(trimmed, dest)
	}

	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &Error{HTTPStatus: resp.StatusCode, Code: CodeGeneral, Message: http.StatusText(resp.StatusCode)}
		}
		return fmt.Errorf("taskqueue: decode response: %w", err)
	}

	status := string(env.Status)
	switch {
	case env.ErrorMessage != "" || status == "false":
		code := env.ErrorCode
		if code == 0 {
			code = CodeGeneral
		}
		return &Error{HTTPStatus: resp.StatusCode, Code: code, Message: env.ErrorMessage, RequestID: env.RequestID}
	case status == "true":
		if dest == nil || len(env.Data) == 0 {
			return nil
		}
		return json.Unmarshal(env.Data, dest)
	}

	// Health and echo answer with an unwrapped object.
	if dest != nil {
		if err := json.Unmarshal(trimmed, dest); err != nil {
			return fmt.Errorf("taskqueue: decode response: %w", err)
		}
	}
	if resp.StatusCode >= 400 {
		return &Error{HTTPStatus: resp.StatusCode, Code: CodeGeneral, Message: http.StatusText(resp.StatusCode)}
	}
	return nil
}
