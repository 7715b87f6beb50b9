package taskqueue

import (
	"context"
	"net/http"
)

// DocumentSource retrieves the documents a task produced, for dataset
// discovery. When provided via WithDocumentSource it replaces the HTTP
// document service client. Implementations must not fail: a document that
// cannot be read is returned with placeholder content.
type DocumentSource interface {
	FetchDocuments(ctx context.Context, kind DocumentKind, taskID int64) []Document
}

// EventHook receives asynchronous notifications of task lifecycle
// transitions, from both the HTTP API and the MCP tools. Multiple hooks may
// be registered via multiple WithEventHook calls. Methods run in a
// goroutine with a 10s deadline; failures are logged and never fail the
// originating request.
type EventHook interface {
	OnTaskEnqueued(ctx context.Context, ev TaskEvent) error
	OnTaskClaimed(ctx context.Context, ev TaskEvent) error
	OnTaskFinished(ctx context.Context, ev TaskEvent) error
}

// RouteRegistrar registers additional routes on the shared HTTP mux.
// Extra routes share the request ID, tracing, logging and recovery chain
// with the built-in routes.
type RouteRegistrar func(mux *http.ServeMux)

// Middleware wraps the root HTTP handler. Applied outermost, so it sees
// all requests including /health.
type Middleware func(http.Handler) http.Handler
