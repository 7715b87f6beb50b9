package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/taskqueue/internal/model"
	"github.com/ashita-ai/taskqueue/internal/service/tasks"
)

const (
	typesURI        = "taskqueue://types"
	taskURIPrefix   = "taskqueue://tasks/"
	taskURITemplate = taskURIPrefix + "{id}"
)

func (s *Server) registerResources() {
	// taskqueue://types: registered task types and the status set.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			typesURI,
			"Task Types",
			mcplib.WithResourceDescription("Registered task types and the task status lifecycle"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleTypes,
	)

	// taskqueue://tasks/{id}: one task with its type and status names.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			taskURITemplate,
			"Task",
			mcplib.WithTemplateDescription("A single task with its current status and progress metrics"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleTask,
	)
}

func (s *Server) handleTypes(ctx context.Context, _ mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	types, err := s.svc.TaskTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: task types: %w", err)
	}

	data, err := json.MarshalIndent(map[string]any{
		"task_types":    types,
		"task_statuses": model.AllTaskStatuses,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal task types: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      typesURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleTask(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	id, err := parseTaskURI(uri)
	if err != nil {
		return nil, err
	}

	out, err := s.svc.Status(ctx, tasks.ListFilter{TaskID: &id})
	if err != nil {
		return nil, fmt.Errorf("mcp: task %d: %w", id, err)
	}

	data, err := json.MarshalIndent(out[0], "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal task: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// parseTaskURI extracts the task id from taskqueue://tasks/{id}.
func parseTaskURI(uri string) (int64, error) {
	raw, ok := strings.CutPrefix(uri, taskURIPrefix)
	if !ok || raw == "" || strings.Contains(raw, "/") {
		return 0, fmt.Errorf("mcp: invalid task URI: %s", uri)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("mcp: invalid task id in URI: %s", uri)
	}
	return id, nil
}
