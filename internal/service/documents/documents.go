// Package documents retrieves the artifacts a task produced from the
// external document service.
//
// Retrieval never fails the caller: an unreachable listing yields no
// documents, missing metadata yields an empty object and unreadable content
// yields a placeholder string. Failures are logged and counted.
package documents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/ashita-ai/taskqueue/internal/model"
	"github.com/ashita-ai/taskqueue/internal/telemetry"
)

// Defaults applied by NewClient for zero values.
const (
	DefaultTimeout     = 10 * time.Second
	DefaultConcurrency = 4
	maxContentBytes    = 16 << 20
)

// Client talks to the document service over HTTP.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	concurrency int
	logger      *slog.Logger

	tracer   trace.Tracer
	failures metric.Int64Counter
}

// NewClient creates a client for the document service at baseURL.
// Each request is bounded by timeout; at most concurrency document requests
// run at once per listing.
func NewClient(baseURL string, timeout time.Duration, concurrency int, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	failures, _ := telemetry.Meter("taskqueue/documents").Int64Counter("taskqueue.documents.failures",
		metric.WithDescription("Document service requests that degraded to placeholder content"),
	)
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		concurrency: concurrency,
		logger:      logger,
		tracer:      telemetry.Tracer("taskqueue/documents"),
		failures:    failures,
	}
}

// FetchDocuments lists the documents of kind produced by taskID and
// retrieves the metadata and content of each.
func (c *Client) FetchDocuments(ctx context.Context, kind model.DocumentKind, taskID int64) []model.Document {
	ctx, span := c.tracer.Start(ctx, "documents.Fetch", trace.WithAttributes(
		attribute.String("taskqueue.document_kind", string(kind)),
		attribute.Int64("taskqueue.task_id", taskID),
	))
	defer span.End()

	ids, err := c.listDocuments(ctx, kind, taskID)
	if err != nil {
		c.degraded(ctx, kind, "list", err, "task_id", taskID)
		return []model.Document{}
	}
	span.SetAttributes(attribute.Int("taskqueue.document_count", len(ids)))

	docs := make([]model.Document, len(ids))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			docs[i] = model.Document{
				DocumentID: id,
				Metadata:   c.fetchMetadata(ctx, kind, id),
				Content:    c.fetchContent(ctx, kind, id),
			}
			return nil
		})
	}
	_ = g.Wait()
	return docs
}

func (c *Client) listDocuments(ctx context.Context, kind model.DocumentKind, taskID int64) ([]string, error) {
	q := url.Values{"start_date": {""}, "end_date": {""}}
	body, err := c.get(ctx, fmt.Sprintf("/%s-document/task/%d/docs/", kind, taskID), q)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("documents: decode listing: %w", err)
	}
	ids := make([]string, 0, len(resp.Data))
	for _, raw := range resp.Data {
		ids = append(ids, rawID(raw))
	}
	return ids, nil
}

// rawID renders a JSON string or number id as plain text.
func rawID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

func (c *Client) fetchMetadata(ctx context.Context, kind model.DocumentKind, id string) map[string]any {
	body, err := c.get(ctx, fmt.Sprintf("/%s-document/metadata/%s", kind, url.PathEscape(id)), nil)
	if err != nil {
		c.degraded(ctx, kind, "metadata", err, "document_id", id)
		return map[string]any{}
	}
	var resp struct {
		Data struct {
			FileMetadata map[string]any `json:"file_metadata"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Data.FileMetadata == nil {
		return map[string]any{}
	}
	return resp.Data.FileMetadata
}

func (c *Client) fetchContent(ctx context.Context, kind model.DocumentKind, id string) string {
	q := url.Values{"start_date": {""}, "end_date": {""}}
	body, err := c.get(ctx, fmt.Sprintf("/%s-document/content/%s", kind, url.PathEscape(id)), q)
	if err != nil {
		c.degraded(ctx, kind, "content", err, "document_id", id)
		return model.ContentUnavailable(id)
	}
	return parseContent(body)
}

// parseContent interprets a content response body. JSON objects carry the
// body in "content" guarded by a "status" field, which only blocks it when
// absent or the string "false"; anything that is not JSON is the content
// itself.
func parseContent(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		var other any
		if json.Unmarshal(body, &other) != nil {
			return string(body)
		}
		return model.ContentStatusFalse
	}
	status, ok := obj["status"]
	if !ok || status == "false" {
		return model.ContentStatusFalse
	}
	switch content := obj["content"].(type) {
	case nil:
		return ""
	case string:
		return content
	default:
		raw, _ := json.Marshal(content)
		return string(raw)
	}
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", model.ErrUpstreamUnavailable, err)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", model.ErrUpstreamUnavailable, resp.StatusCode, string(body))
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxContentBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", model.ErrUpstreamUnavailable, err)
	}
	return body, nil
}

func (c *Client) degraded(ctx context.Context, kind model.DocumentKind, op string, err error, args ...any) {
	c.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("op", op),
	))
	c.logger.Warn("documents: request degraded",
		append([]any{"kind", kind, "op", op, "error", err}, args...)...)
}

// Noop is a DocumentSource for deployments without a document service.
type Noop struct{}

// FetchDocuments always returns no documents.
func (Noop) FetchDocuments(context.Context, model.DocumentKind, int64) []model.Document {
	return []model.Document{}
}
