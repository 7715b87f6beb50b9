package model

import "errors"

// Sentinel errors shared by the service layer and the API boundaries.
// Callers wrap them with context and match them with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnknownType         = errors.New("unknown task type")
	ErrUnknownStatus       = errors.New("unknown task status")
	ErrNotFound            = errors.New("not found")
	ErrConfig              = errors.New("configuration error")
	ErrNoWorkAvailable     = errors.New("no unclaimed task found")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ErrorCode classifies err for the failure envelope. Missing rows, an empty
// queue and an unseeded status table are NOT_FOUND; everything else is
// GENERAL.
func ErrorCode(err error) int {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrNoWorkAvailable),
		errors.Is(err, ErrConfig):
		return ErrCodeNotFound
	default:
		return ErrCodeGeneral
	}
}

// IsBusiness reports whether err is one of the expected request failures
// rather than an internal fault.
func IsBusiness(err error) bool {
	for _, s := range []error{ErrInvalidInput, ErrUnknownType, ErrUnknownStatus, ErrNotFound, ErrNoWorkAvailable} {
		if errors.Is(err, s) {
			return true
		}
	}
	return false
}
