package taskqueue

import "time"

// Task statuses.
const (
	StatusUnclaimed = "unclaimed"
	StatusClaimed   = "claimed"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Task is a unit of work as returned by Claim.
type Task struct {
	ID                         int64          `json:"id"`
	TaskTypeID                 int            `json:"task_type_id"`
	TaskStatusID               int            `json:"task_status_id"`
	Query                      string         `json:"query"`
	RequestedByUser            string         `json:"requested_by_user"`
	Notes                      *string        `json:"notes,omitempty"`
	ParameterChecksum          string         `json:"parameter_checksum"`
	Revision                   string         `json:"revision"`
	ClaimedByAgent             *string        `json:"claimed_by_agent,omitempty"`
	ClaimedTime                *time.Time     `json:"claimed_time,omitempty"`
	CompletedTime              *time.Time     `json:"completed_time,omitempty"`
	FailedTime                 *time.Time     `json:"failed_time,omitempty"`
	ObjectStorageKeyForResults *string        `json:"object_storage_key_for_results,omitempty"`
	Message                    *string        `json:"message,omitempty"`
	JobProgressMetrics         map[string]any `json:"job_progress_metrics"`
	CreatedAt                  time.Time      `json:"created_at"`
}

// TaskSummary is a task with its type and status names, as returned by
// the listing endpoints.
type TaskSummary struct {
	Task
	TaskType   string `json:"task_type"`
	TaskStatus string `json:"task_status"`
}

// EnqueueRequest describes a new task.
type EnqueueRequest struct {
	TaskType        string
	Query           string
	RequestedByUser string
	Notes           string
}

// EnqueueResult identifies a newly enqueued task.
type EnqueueResult struct {
	ID                int64  `json:"id"`
	ParameterChecksum string `json:"parameter_checksum"`
	Revision          string `json:"revision"`
}

// CompleteRequest records the outcome of a claimed task. ResultKey is
// required when Success is true.
type CompleteRequest struct {
	TaskID    int64
	Success   bool
	ResultKey string
	Message   string
}

// ListFilter narrows List and Status. Zero values are ignored.
type ListFilter struct {
	TaskType   string
	TaskStatus string
	TaskID     int64
}

// Document is an artifact a task produced.
type Document struct {
	DocumentID string         `json:"document_id"`
	Metadata   map[string]any `json:"metadata"`
	Content    string         `json:"content"`
}

// Discovery pairs a task with its documents.
type Discovery struct {
	Task            TaskSummary `json:"task"`
	OriginalContent []Document  `json:"original_content"`
	TextContent     []Document  `json:"text_content"`
}

// HealthResponse is returned by Health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Store   string `json:"store,omitempty"`
	Uptime  int64  `json:"uptime_seconds,omitempty"`
}
