package mcp

import (
	"github.com/ashita-ai/taskqueue/internal/model"
)

const maxCompactMessage = 200

// compactTask returns a minimal representation of a task for MCP list
// responses. Drops the query payload, the requester address and the
// progress metrics, which agents fetch per task through the task resource.
func compactTask(t model.TaskSummary) map[string]any {
	m := map[string]any{
		"id":                 t.ID,
		"task_type":          t.TaskType,
		"task_status":        t.TaskStatus,
		"parameter_checksum": t.ParameterChecksum,
		"revision":           t.Revision,
		"created_at":         t.CreatedAt,
	}
	if t.ClaimedByAgent != nil {
		m["claimed_by_agent"] = *t.ClaimedByAgent
	}
	if t.ObjectStorageKeyForResults != nil {
		m["object_storage_key_for_results"] = *t.ObjectStorageKeyForResults
	}
	if t.Message != nil && *t.Message != "" {
		m["message"] = truncate(*t.Message, maxCompactMessage)
	}
	if len(t.JobProgressMetrics) > 0 {
		m["has_progress"] = true
	}
	return m
}

func compactTasks(ts []model.TaskSummary) []map[string]any {
	out := make([]map[string]any, 0, len(ts))
	for _, t := range ts {
		out = append(out, compactTask(t))
	}
	return out
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
