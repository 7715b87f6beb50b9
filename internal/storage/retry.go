package storage

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Claim retry policy. SKIP LOCKED keeps contention low, so conflicts are
// rare and a short schedule suffices.
const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 10 * time.Millisecond
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// isConflict reports whether err is a transaction conflict that is safe to
// run again.
func isConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}

// WithRetry runs fn until it succeeds, fails with a non-conflict error, or
// has been retried maxRetries times. The wait doubles after each attempt
// and carries up to one extra delay of jitter.
func WithRetry(ctx context.Context, maxRetries int, delay time.Duration, fn func() error) error {
	err := fn()
	for retries := 0; err != nil && isConflict(err) && retries < maxRetries; retries++ {
		wait := delay + time.Duration(rand.Int64N(int64(delay))) //nolint:gosec // jitter only
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		delay *= 2
		err = fn()
	}
	return err
}
