// Package errors defines the error taxonomy of the job system. Domain
// errors returned by workers are opaque and never appear here.
package errors

import (
	"github.com/pingcap/errors"
)

// Errors raised by the scheduler. Callers match them with errors.Cause.
var (
	// ErrCycleDetected is returned when a job kind keeps retrying past the
	// configured cycle ceiling without any progress.
	ErrCycleDetected = errors.New("cycle detected")
	// ErrAbortRequested is returned by Execute when the run was aborted by
	// a fail-fast failure, an explicit cancellation or the timeout.
	ErrAbortRequested = errors.New("abort requested")
	// ErrCannotWaitAfterTimeout guards WaitForOtherJobs once the run timed out.
	ErrCannotWaitAfterTimeout = errors.New("cannot wait for other jobs after timeout")

	ErrWorkerAlreadyRegistered = errors.New("worker already registered for job type")
	ErrWorkerNotFound          = errors.New("no worker registered for job type")
	ErrWorkerPanic             = errors.New("worker panicked")
	ErrAlreadyExecuting        = errors.New("scheduler is already executing")

	ErrInvalidConfig = errors.New("invalid config")
)

// IsAbort tells whether err is, or wraps, ErrAbortRequested.
func IsAbort(err error) bool {
	return errors.Cause(err) == ErrAbortRequested
}
