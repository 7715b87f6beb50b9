package model

import "fmt"

// DocumentKind selects one of the document service's families.
type DocumentKind string

const (
	DocumentKindOriginal DocumentKind = "original"
	DocumentKindText     DocumentKind = "text"
)

// Placeholder contents used when the document service cannot supply a body.
const (
	ContentStatusFalse = "Status is false in JSON content"
)

// ContentUnavailable is the placeholder for a document whose content request failed.
func ContentUnavailable(documentID string) string {
	return fmt.Sprintf("Failed to fetch content for Document ID %s", documentID)
}

// Document is a retrieved artifact produced by a task.
type Document struct {
	DocumentID string         `json:"document_id"`
	Metadata   map[string]any `json:"metadata"`
	Content    string         `json:"content"`
}

// Discovery pairs a task with the documents it produced.
type Discovery struct {
	Task            TaskSummary `json:"task"`
	OriginalContent []Document  `json:"original_content"`
	TextContent     []Document  `json:"text_content"`
}
