package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/ashita-ai/taskqueue/internal/checksum"
	"github.com/ashita-ai/taskqueue/internal/model"
	"github.com/ashita-ai/taskqueue/internal/service/tasks"
)

func (s *Server) registerTools() {
	// taskqueue_enqueue: submit new work.
	s.mcpServer.AddTool(
		mcplib.NewTool("taskqueue_enqueue",
			mcplib.WithDescription(`Add a task to the queue.

The query is an opaque JSON payload describing the work. Its parameter
checksum ignores key order, case, whitespace and the dateStart/dateEnd
fields, so the returned parameter_checksum can be used with
taskqueue_find to see whether the same request was made before.

Returns the new task id, its parameter_checksum and its revision.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("task_type",
				mcplib.Description("Registered task type name"),
				mcplib.Required(),
			),
			mcplib.WithString("query",
				mcplib.Description("Task parameters, normally a JSON document"),
				mcplib.Required(),
			),
			mcplib.WithString("requested_by_user",
				mcplib.Description("Email address of the requester"),
				mcplib.Required(),
			),
			mcplib.WithString("notes",
				mcplib.Description("Free-form notes stored with the task"),
			),
		),
		s.handleEnqueue,
	)

	// taskqueue_claim: take the oldest unclaimed task of a type.
	s.mcpServer.AddTool(
		mcplib.NewTool("taskqueue_claim",
			mcplib.WithDescription(`Claim the oldest unclaimed task of a type.

Concurrent claims never receive the same task. When the queue is empty the
result is an error with error_code 404; wait and call again.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("task_type",
				mcplib.Description("Task type to pull work for"),
				mcplib.Required(),
			),
			mcplib.WithString("agent_id",
				mcplib.Description("Identifier of the claiming worker"),
				mcplib.Required(),
			),
		),
		s.handleClaim,
	)

	// taskqueue_complete: record the outcome of a task.
	s.mcpServer.AddTool(
		mcplib.NewTool("taskqueue_complete",
			mcplib.WithDescription(`Record the outcome of a task.

success=true requires object_storage_key_for_results, the location of the
produced artifacts. success=false marks the task failed; message should say
why.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("task_id",
				mcplib.Description("Id of the task"),
				mcplib.Required(),
			),
			mcplib.WithBoolean("success",
				mcplib.Description("Whether the task succeeded"),
				mcplib.Required(),
			),
			mcplib.WithString("object_storage_key_for_results",
				mcplib.Description("Where the results were stored. Required when success is true."),
			),
			mcplib.WithString("message",
				mcplib.Description("Outcome message"),
			),
		),
		s.handleComplete,
	)

	// taskqueue_report_progress: replace the progress metrics of a task.
	s.mcpServer.AddTool(
		mcplib.NewTool("taskqueue_report_progress",
			mcplib.WithDescription(`Replace the progress metrics of a task with the given object.

Metrics are free-form. Each call overwrites the previous object entirely.`),
			mcplib.WithDestructiveHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithNumber("task_id",
				mcplib.Description("Id of the task"),
				mcplib.Required(),
			),
			mcplib.WithObject("metrics",
				mcplib.Description("Progress metrics object"),
				mcplib.Required(),
			),
		),
		s.handleReportProgress,
	)

	// taskqueue_list: filter tasks by type, status or id.
	s.mcpServer.AddTool(
		mcplib.NewTool("taskqueue_list",
			mcplib.WithDescription(`List tasks, optionally filtered by type, status and id.

Statuses are unclaimed, claimed, completed and failed. Results are ordered
by id and compacted: the query payload is omitted and long messages are
truncated.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("task_type",
				mcplib.Description("Only tasks of this type"),
			),
			mcplib.WithString("task_status",
				mcplib.Description("Only tasks in this status"),
				mcplib.Enum(statusNames()...),
			),
			mcplib.WithNumber("task_id",
				mcplib.Description("Only the task with this id"),
			),
		),
		s.handleList,
	)

	// taskqueue_find: look up tasks by parameter checksum.
	s.mcpServer.AddTool(
		mcplib.NewTool("taskqueue_find",
			mcplib.WithDescription(`Find tasks of a type whose parameters are equivalent to query.

Use this before enqueueing to avoid submitting the same request twice.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("task_type",
				mcplib.Description("Task type name"),
				mcplib.Required(),
			),
			mcplib.WithString("query",
				mcplib.Description("Task parameters to compare"),
				mcplib.Required(),
			),
		),
		s.handleFind,
	)
}

func statusNames() []string {
	out := make([]string, 0, len(model.AllTaskStatuses))
	for _, st := range model.AllTaskStatuses {
		out = append(out, string(st))
	}
	return out
}

func (s *Server) handleEnqueue(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	req := model.EnqueueRequest{
		TaskType:        request.GetString("task_type", ""),
		Query:           request.GetString("query", ""),
		RequestedByUser: request.GetString("requested_by_user", ""),
	}
	if notes := request.GetString("notes", ""); notes != "" {
		req.Notes = &notes
	}

	task, err := s.svc.Enqueue(ctx, req)
	if err != nil {
		return s.serviceError(ctx, "taskqueue_enqueue", err), nil
	}
	res := jsonResult(model.EnqueueResult{
		ID:                task.ID,
		ParameterChecksum: task.ParameterChecksum,
		Revision:          task.Revision,
	})
	// Advisory only: the task is already enqueued.
	if !s.finds.WasLookedUp(req.TaskType, task.ParameterChecksum) {
		res.Content = append(res.Content, mcplib.TextContent{
			Type: "text",
			Text: fmt.Sprintf("NOTE: taskqueue_find was not called for this query and task_type=%q before enqueueing. "+
				"An equivalent task may already exist; call taskqueue_find first to reuse its results.", req.TaskType),
		})
	}
	return res, nil
}

func (s *Server) handleClaim(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	task, err := s.svc.Claim(ctx,
		request.GetString("task_type", ""),
		request.GetString("agent_id", ""),
	)
	if err != nil {
		return s.serviceError(ctx, "taskqueue_claim", err), nil
	}
	return jsonResult(task), nil
}

func (s *Server) handleComplete(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	taskID, err := requiredTaskID(request)
	if err != nil {
		return errorResult(model.ErrCodeGeneral, err.Error()), nil
	}
	success, err := request.RequireBool("success")
	if err != nil {
		return errorResult(model.ErrCodeGeneral, err.Error()), nil
	}

	req := model.CompleteRequest{TaskID: taskID, Success: success}
	if key := request.GetString("object_storage_key_for_results", ""); key != "" {
		req.ObjectStorageKeyForResults = &key
	}
	if msg := request.GetString("message", ""); msg != "" {
		req.Message = &msg
	}

	task, err := s.svc.Complete(ctx, req)
	if err != nil {
		return s.serviceError(ctx, "taskqueue_complete", err), nil
	}
	return jsonResult(map[string]any{
		"task_id":     task.ID,
		"task_status": statusOf(s.svc, task),
	}), nil
}

func (s *Server) handleReportProgress(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	taskID, err := requiredTaskID(request)
	if err != nil {
		return errorResult(model.ErrCodeGeneral, err.Error()), nil
	}
	metrics, ok := request.GetArguments()["metrics"].(map[string]any)
	if !ok {
		return errorResult(model.ErrCodeGeneral, "metrics must be an object"), nil
	}

	if err := s.svc.UpdateProgress(ctx, taskID, metrics); err != nil {
		return s.serviceError(ctx, "taskqueue_report_progress", err), nil
	}
	return jsonResult(map[string]any{"task_id": taskID, "status": "updated"}), nil
}

func (s *Server) handleList(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	var f tasks.ListFilter
	if v := request.GetString("task_type", ""); v != "" {
		f.TaskType = &v
	}
	if v := request.GetString("task_status", ""); v != "" {
		f.TaskStatus = &v
	}
	if _, ok := request.GetArguments()["task_id"]; ok {
		id, err := requiredTaskID(request)
		if err != nil {
			return errorResult(model.ErrCodeGeneral, err.Error()), nil
		}
		f.TaskID = &id
	}

	out, err := s.svc.List(ctx, f)
	if err != nil {
		return s.serviceError(ctx, "taskqueue_list", err), nil
	}
	return jsonResult(map[string]any{
		"tasks": compactTasks(out),
		"total": len(out),
	}), nil
}

func (s *Server) handleFind(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	taskType := request.GetString("task_type", "")
	query := request.GetString("query", "")
	out, err := s.svc.FindByQuery(ctx, taskType, query)
	if err != nil {
		return s.serviceError(ctx, "taskqueue_find", err), nil
	}
	s.finds.Record(taskType, checksum.FromQuery(query))
	return jsonResult(map[string]any{
		"tasks": compactTasks(out),
		"total": len(out),
	}), nil
}

// requiredTaskID reads task_id, which JSON delivers as a float64.
func requiredTaskID(request mcplib.CallToolRequest) (int64, error) {
	v, err := request.RequireFloat("task_id")
	if err != nil {
		return 0, err
	}
	id := int64(v)
	if float64(id) != v {
		return 0, fmt.Errorf("task_id must be an integer")
	}
	return id, nil
}

func statusOf(svc *tasks.Service, t model.Task) model.TaskStatus {
	st, _ := svc.Statuses().Status(t.TaskStatusID)
	return st
}
