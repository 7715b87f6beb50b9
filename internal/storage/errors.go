package storage

import "errors"

// ErrNotFound is returned when a requested entity does not exist, and by
// ClaimTask when no unclaimed task of the requested type is left.
var ErrNotFound = errors.New("storage: not found")
