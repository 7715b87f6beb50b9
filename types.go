package taskqueue

import "time"

// DocumentKind selects a document family of the document service.
type DocumentKind string

const (
	DocumentKindOriginal DocumentKind = "original"
	DocumentKindText     DocumentKind = "text"
)

// Document is the public representation of a retrieved task artifact.
// No internal package imports, so it is safe to implement against from
// outside the module.
type Document struct {
	ID       string
	Metadata map[string]any
	Content  string
}

// TaskEvent describes one task lifecycle transition.
type TaskEvent struct {
	TaskID   int64
	TaskType string
	Revision string
	// AgentID is the claiming agent; empty except on claims.
	AgentID string
	// Status is the status entered: "unclaimed" on enqueue, "claimed",
	// "completed" or "failed".
	Status string
	At     time.Time
}
