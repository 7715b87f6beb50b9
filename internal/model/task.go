// Package model defines the core domain types for the task queue.
//
// Types map directly onto the task_type, task_status and task_queue tables
// and onto the JSON shapes served by the HTTP and MCP boundaries.
package model

import (
	"fmt"
	"time"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusUnclaimed TaskStatus = "unclaimed"
	TaskStatusClaimed   TaskStatus = "claimed"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// AllTaskStatuses lists the fixed status set in lifecycle order.
var AllTaskStatuses = []TaskStatus{
	TaskStatusUnclaimed,
	TaskStatusClaimed,
	TaskStatusCompleted,
	TaskStatusFailed,
}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusUnclaimed, TaskStatusClaimed, TaskStatusCompleted, TaskStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s ends the lifecycle.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// TaskType is a named category of work. Seeded administratively.
type TaskType struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TaskStatusRow is a row of the task_status reference table.
type TaskStatusRow struct {
	ID   int        `json:"id"`
	Name TaskStatus `json:"name"`
}

// StatusRegistry maps status names to their surrogate ids and back.
// It is built once at startup and never mutated afterwards, so it is safe
// for concurrent use without locking.
type StatusRegistry struct {
	byName map[TaskStatus]int
	byID   map[int]TaskStatus
}

// NewStatusRegistry builds a registry from the task_status rows.
// Rows with names outside the fixed status set are ignored.
func NewStatusRegistry(rows []TaskStatusRow) *StatusRegistry {
	r := &StatusRegistry{
		byName: make(map[TaskStatus]int, len(rows)),
		byID:   make(map[int]TaskStatus, len(rows)),
	}
	for _, row := range rows {
		if !row.Name.Valid() {
			continue
		}
		r.byName[row.Name] = row.ID
		r.byID[row.ID] = row.Name
	}
	return r
}

// ID returns the surrogate id for status s.
func (r *StatusRegistry) ID(s TaskStatus) (int, bool) {
	id, ok := r.byName[s]
	return id, ok
}

// MustID is like ID but wraps ErrConfig when the status was never seeded.
func (r *StatusRegistry) MustID(s TaskStatus) (int, error) {
	id, ok := r.byName[s]
	if !ok {
		return 0, fmt.Errorf("%w: task status %q is not seeded", ErrConfig, s)
	}
	return id, nil
}

// Status returns the status for a surrogate id.
func (r *StatusRegistry) Status(id int) (TaskStatus, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// Complete reports whether every status in the fixed set is present.
func (r *StatusRegistry) Complete() bool {
	for _, s := range AllTaskStatuses {
		if _, ok := r.byName[s]; !ok {
			return false
		}
	}
	return true
}

// Metrics is the free-form progress object reported by agents.
// Replaced wholesale on every update.
type Metrics map[string]any

// Task is a single unit of work tracked by the queue.
type Task struct {
	ID                         int64      `json:"id"`
	TaskTypeID                 int        `json:"task_type_id"`
	TaskStatusID               int        `json:"task_status_id"`
	Query                      string     `json:"query"`
	RequestedByUser            string     `json:"requested_by_user"`
	Notes                      *string    `json:"notes"`
	ParameterChecksum          string     `json:"parameter_checksum"`
	Revision                   string     `json:"revision"`
	ClaimedByAgent             *string    `json:"claimed_by_agent"`
	ClaimedTime                *time.Time `json:"claimed_time"`
	CompletedTime              *time.Time `json:"completed_time"`
	FailedTime                 *time.Time `json:"failed_time"`
	ObjectStorageKeyForResults *string    `json:"object_storage_key_for_results"`
	Message                    *string    `json:"message"`
	JobProgressMetrics         Metrics    `json:"job_progress_metrics"`
	CreatedAt                  time.Time  `json:"created_at"`
}

// NewTask holds the fields fixed at enqueue time.
type NewTask struct {
	TaskTypeID        int
	TaskStatusID      int
	Query             string
	RequestedByUser   string
	Notes             *string
	ParameterChecksum string
	Revision          string
	CreatedAt         time.Time
}

// ClaimParams selects the task a claim may take.
type ClaimParams struct {
	TaskTypeID      int
	UnclaimedStatus int
	ClaimedStatus   int
	AgentID         string
	ClaimedAt       time.Time
}

// CompleteParams describes a terminal transition.
type CompleteParams struct {
	TaskID       int64
	StatusID     int
	Success      bool
	ResultKey    *string
	Message      *string
	TransitionAt time.Time
}

// TaskFilter narrows a task listing. Nil fields are unconstrained.
type TaskFilter struct {
	TaskTypeID   *int
	TaskStatusID *int
	ID           *int64
	Checksum     *string
	Revision     *string
}

// TaskSummary is the listing shape served to clients: the task row plus
// the resolved type and status names.
type TaskSummary struct {
	Task
	TaskType   string     `json:"task_type"`
	TaskStatus TaskStatus `json:"task_status"`
}

// TaskCount is the number of tasks with a given type and status.
type TaskCount struct {
	TaskType   string
	TaskStatus TaskStatus
	Count      int64
}

// TaskEvent describes one lifecycle transition of a task, as delivered to
// event hooks.
type TaskEvent struct {
	TaskID   int64
	TaskType string
	Revision string
	// AgentID is set for claims.
	AgentID string
	// Status is the status the task moved into.
	Status TaskStatus
	At     time.Time
}
