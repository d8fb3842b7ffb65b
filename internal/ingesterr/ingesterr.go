// Package ingesterr defines the ingestion error taxonomy: a handful of
// typed, wrappable errors that the job store and fetcher branch on via
// errors.As to decide retry-with-backoff vs fail-fast.
package ingesterr

import (
	"errors"
	"fmt"
	"strings"
)

// RateLimitedError signals the upstream rejected a call for exceeding its
// rate limit. Retryable; the Governor also backs off on this.
type RateLimitedError struct {
	Msg string
}

func (e *RateLimitedError) Error() string { return "rate limited: " + e.Msg }

// IsRateLimited reports whether msg looks like an upstream rate-limit
// rejection. The upstream signals this in prose, not a status contract,
// so message content is all there is to go on.
func IsRateLimited(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many")
}

// UpstreamTransientError wraps a network or 5xx failure calling upstream.
// Retryable.
type UpstreamTransientError struct {
	Err error
}

func (e *UpstreamTransientError) Error() string { return fmt.Sprintf("upstream transient: %v", e.Err) }
func (e *UpstreamTransientError) Unwrap() error { return e.Err }

// UpstreamMalformedError wraps an upstream response that failed to parse.
// Not retryable in spirit, but the Job Store still applies backoff until
// max_attempts — an operator must inspect last_error to fix it.
type UpstreamMalformedError struct {
	Err error
}

func (e *UpstreamMalformedError) Error() string { return fmt.Sprintf("upstream malformed: %v", e.Err) }
func (e *UpstreamMalformedError) Unwrap() error { return e.Err }

// PartitionMissingError wraps an insert failure caused by a missing
// monthly partition on the raw fills table. Retryable; an operator must
// create the partition; it is never auto-created.
type PartitionMissingError struct {
	Err error
}

func (e *PartitionMissingError) Error() string { return fmt.Sprintf("partition missing: %v", e.Err) }
func (e *PartitionMissingError) Unwrap() error { return e.Err }

// ConstraintViolationError wraps a CHECK/FK violation. Not retryable —
// the Job Store should fail the job fast regardless of remaining
// attempts, since retrying cannot succeed.
type ConstraintViolationError struct {
	Err error
}

func (e *ConstraintViolationError) Error() string {
	return fmt.Sprintf("constraint violation: %v", e.Err)
}
func (e *ConstraintViolationError) Unwrap() error { return e.Err }

// DatabaseTransientError wraps a connection-level failure. Retryable;
// the cursor must be left untouched.
type DatabaseTransientError struct {
	Err error
}

func (e *DatabaseTransientError) Error() string { return fmt.Sprintf("database transient: %v", e.Err) }
func (e *DatabaseTransientError) Unwrap() error { return e.Err }

// IsFatal reports whether err should fail a job immediately regardless of
// attempts remaining (no amount of retrying would help).
func IsFatal(err error) bool {
	var cv *ConstraintViolationError
	return errors.As(err, &cv)
}
