// Package taskqueue provides a Go client for the task queue HTTP API, for
// both task submitters and worker agents.
package taskqueue

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes carried in the server's failure envelope.
const (
	CodeGeneral  = 500
	CodeNotFound = 404
)

// Error is a failure reported by the server. Business failures arrive with
// HTTP 200, so HTTPStatus and Code are tracked separately.
type Error struct {
	HTTPStatus int
	Code       int
	Message    string
	RequestID  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("taskqueue: %d (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}

// IsNotFound returns true if the server reported NOT_FOUND. An empty queue
// on Claim is also NOT_FOUND; use IsNoWorkAvailable to tell them apart.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeNotFound
	}
	return false
}

// IsNoWorkAvailable returns true if a claim found no unclaimed task.
func IsNoWorkAvailable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeNotFound && strings.Contains(e.Message, "no unclaimed task found")
	}
	return false
}

// IsRateLimited returns true if the error is a 429 (Too Many Requests).
func IsRateLimited(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus == 429
	}
	return false
}

// IsInvalidInput returns true if the server rejected the request
// parameters before reaching the queue (HTTP 422).
func IsInvalidInput(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus == 422
	}
	return false
}
