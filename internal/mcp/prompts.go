package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// worker-loop: the claim/progress/complete cycle for one task type.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("worker-loop",
			mcplib.WithPromptDescription("Work through the queue for one task type"),
			mcplib.WithArgument("task_type",
				mcplib.ArgumentDescription("The task type to work on"),
				mcplib.RequiredArgument(),
			),
			mcplib.WithArgument("agent_id",
				mcplib.ArgumentDescription("Your worker identifier"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleWorkerLoopPrompt,
	)

	// submit-task: check for an equivalent request, then enqueue.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("submit-task",
			mcplib.WithPromptDescription("Submit a task without duplicating an earlier equivalent request"),
			mcplib.WithArgument("task_type",
				mcplib.ArgumentDescription("The task type to submit"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleSubmitTaskPrompt,
	)
}

func (s *Server) handleWorkerLoopPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	taskType := request.Params.Arguments["task_type"]
	agentID := request.Params.Arguments["agent_id"]
	if taskType == "" || agentID == "" {
		return nil, fmt.Errorf("task_type and agent_id arguments are required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Process %s tasks as %s", taskType, agentID),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`You are worker %[2]q processing tasks of type %[1]q.

1. CALL taskqueue_claim with task_type=%[1]q and agent_id=%[2]q.
   If the result has error_code 404 the queue is empty. Stop here.

2. READ the claimed task's query. It holds the task parameters.

3. While working, CALL taskqueue_report_progress with the task id and a
   metrics object (for example {"processed": 10, "total": 40}). Each call
   replaces the previous metrics.

4. FINISH with taskqueue_complete:
   - on success: success=true and object_storage_key_for_results set to
     where you stored the output
   - on failure: success=false and a message explaining what went wrong

5. Go back to step 1.`, taskType, agentID),
				},
			},
		},
	}, nil
}

func (s *Server) handleSubmitTaskPrompt(_ context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	taskType := request.Params.Arguments["task_type"]
	if taskType == "" {
		return nil, fmt.Errorf("task_type argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: fmt.Sprintf("Submit a %s task", taskType),
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Before submitting a %[1]s task:

1. CALL taskqueue_find with task_type=%[1]q and your query. Equivalent
   queries match even when key order, letter case or whitespace differ.

2. If a task comes back that is unclaimed, claimed or completed, reuse it
   instead of submitting again. Its revision identifies its results.

3. Otherwise CALL taskqueue_enqueue with task_type=%[1]q, the query and
   requested_by_user set to the requester's email address.`, taskType),
				},
			},
		},
	}, nil
}
