// Package mcp implements the Model Context Protocol server for the task queue.
//
// The MCP server exposes the queue operations of the HTTP API as MCP tools
// so MCP-compatible agents can pull work, report progress and record
// outcomes without speaking the REST routes. Every tool delegates to the
// same tasks.Service as the HTTP handlers.
package mcp

import (
	"context"
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/ashita-ai/taskqueue/internal/ctxutil"
	"github.com/ashita-ai/taskqueue/internal/model"
	"github.com/ashita-ai/taskqueue/internal/service/tasks"
)

// Server wraps the MCP server with the task queue service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	svc       *tasks.Service
	logger    *slog.Logger
	finds     *findTracker
}

// New creates and configures a new MCP server with all resources, tools
// and prompts.
func New(svc *tasks.Service, logger *slog.Logger, version string) *Server {
	s := &Server{
		svc:    svc,
		logger: logger,
		finds:  newFindTracker(findWindow),
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"taskqueue",
		version,
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithInstructions(serverInstructions),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

const serverInstructions = `This server coordinates a shared task queue.

Producers call taskqueue_find first to see whether an equivalent request
already exists, then enqueue tasks with taskqueue_enqueue. Workers call taskqueue_claim
with their task type and agent id, report progress with
taskqueue_report_progress while working, and finish with taskqueue_complete.
A claim that finds no work is not a failure: wait and try again later.`

// jsonResult marshals v into a text tool result.
func jsonResult(v any) *mcplib.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(model.ErrCodeGeneral, "failed to encode result: "+err.Error())
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

// errorResult reports a failure with the same envelope the HTTP API uses.
func errorResult(code int, msg string) *mcplib.CallToolResult {
	return errorResultWithID(code, msg, "")
}

func errorResultWithID(code int, msg, requestID string) *mcplib.CallToolResult {
	data, _ := json.Marshal(model.APIError{
		Status:       false,
		ErrorCode:    code,
		ErrorMessage: msg,
		RequestID:    requestID,
	})
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
		IsError: true,
	}
}

// serviceError converts a service error into a tool error, logging
// anything that is not an expected request failure. The request ID of the
// enclosing HTTP request is echoed when there is one.
func (s *Server) serviceError(ctx context.Context, tool string, err error) *mcplib.CallToolResult {
	reqID := ctxutil.RequestIDFromContext(ctx)
	if !model.IsBusiness(err) {
		s.logger.Error("mcp: tool failed", "tool", tool, "error", err, "request_id", reqID)
	}
	return errorResultWithID(model.ErrorCode(err), err.Error(), reqID)
}
