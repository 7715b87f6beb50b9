package model

import (
	"fmt"
	"regexp"
)

// Field length limits, matching the column sizes of the task_queue table.
const (
	MaxRequestedByLen = 256
	MaxAgentIDLen     = 256
	MaxResultKeyLen   = 256
	MaxNotesLen       = 2048
	MaxMessageLen     = 2048
	MaxQueryLen       = 64 * 1024 // 64 KB
)

// emailPattern matches requester addresses. Top-level domains of two to four
// letters only.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,4}$`)

// ValidateEmail reports whether addr looks like a requester email address.
func ValidateEmail(addr string) error {
	if !emailPattern.MatchString(addr) {
		return fmt.Errorf("%w: malformed requester email", ErrInvalidInput)
	}
	return nil
}

// EnqueueRequest carries the caller-supplied fields of a new task.
type EnqueueRequest struct {
	TaskType        string  `json:"task_type"`
	Query           string  `json:"query"`
	RequestedByUser string  `json:"requested_by_user"`
	Notes           *string `json:"notes,omitempty"`
}

// Validate checks the request before any store access.
func (r EnqueueRequest) Validate() error {
	if err := ValidateEmail(r.RequestedByUser); err != nil {
		return err
	}
	if len(r.RequestedByUser) > MaxRequestedByLen {
		return fmt.Errorf("%w: requested_by_user exceeds maximum length of %d characters", ErrInvalidInput, MaxRequestedByLen)
	}
	if r.Query == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	if len(r.Query) > MaxQueryLen {
		return fmt.Errorf("%w: query exceeds maximum length of %d bytes", ErrInvalidInput, MaxQueryLen)
	}
	if r.Notes != nil && len(*r.Notes) > MaxNotesLen {
		return fmt.Errorf("%w: notes exceeds maximum length of %d characters", ErrInvalidInput, MaxNotesLen)
	}
	return nil
}

// CompleteRequest reports the outcome of a claimed task.
type CompleteRequest struct {
	TaskID                     int64   `json:"task_id"`
	Success                    bool    `json:"success"`
	ObjectStorageKeyForResults *string `json:"object_storage_key_for_results,omitempty"`
	Message                    *string `json:"message,omitempty"`
}

// Validate enforces that a successful completion names where its results live.
func (r CompleteRequest) Validate() error {
	if r.Success && (r.ObjectStorageKeyForResults == nil || *r.ObjectStorageKeyForResults == "") {
		return fmt.Errorf("%w: object_storage_key_for_results cannot be empty", ErrInvalidInput)
	}
	if r.ObjectStorageKeyForResults != nil && len(*r.ObjectStorageKeyForResults) > MaxResultKeyLen {
		return fmt.Errorf("%w: object_storage_key_for_results exceeds maximum length of %d characters", ErrInvalidInput, MaxResultKeyLen)
	}
	if r.Message != nil && len(*r.Message) > MaxMessageLen {
		return fmt.Errorf("%w: message exceeds maximum length of %d characters", ErrInvalidInput, MaxMessageLen)
	}
	return nil
}

// EnqueueResult is returned to the submitter of a new task.
type EnqueueResult struct {
	ID                int64  `json:"id"`
	ParameterChecksum string `json:"parameter_checksum"`
	Revision          string `json:"revision"`
}

// APIResponse is the success envelope for every HTTP response.
type APIResponse struct {
	Status  bool   `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// APIError is the failure envelope. Business failures are served with
// HTTP 200 and carry the error code in the body.
type APIError struct {
	Status       bool   `json:"status"`
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
	RequestID    string `json:"request_id,omitempty"`
}

// Error codes carried in APIError.ErrorCode.
const (
	ErrCodeGeneral  = 500
	ErrCodeNotFound = 404
)

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Store   string `json:"store,omitempty"`
	Uptime  int64  `json:"uptime_seconds,omitempty"`
}
