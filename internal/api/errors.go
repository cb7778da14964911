package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error is a non-2xx platform response. Body holds a bounded snippet of the
// raw response for internal diagnostics; it must never reach user-facing
// output, which is produced exclusively from sanitized messages.
type Error struct {
	Status   int
	Method   string
	Endpoint string
	Body     string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s returned %d", e.Method, e.Endpoint, e.Status)
}

// Retryable reports whether a later attempt could succeed. Client errors are
// caller bugs, except 429 which signals throttling.
func (e *Error) Retryable() bool {
	if e.Status == http.StatusTooManyRequests {
		return true
	}
	return e.Status < 400 || e.Status >= 500
}

// TimeoutError is a single call that exceeded its deadline, as opposed to a
// transport failure or a remote rejection.
type TimeoutError struct {
	Method   string
	Endpoint string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s exceeded %v deadline", e.Method, e.Endpoint, e.Timeout)
}

// PollTimeoutError is a poll loop that ran out of attempts with the remote
// entity in neither a success nor a failure state.
type PollTimeoutError struct {
	Operation string
	Attempts  int
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("%s not finished after %d status checks", e.Operation, e.Attempts)
}

// RemoteFailureError is a polled entity that reached a terminal failure
// state. Status is one of the known enum values and is safe to log.
type RemoteFailureError struct {
	Entity string
	ID     string
	Status string
}

func (e *RemoteFailureError) Error() string {
	return fmt.Sprintf("%s %s reached status %s", e.Entity, e.ID, e.Status)
}

// Retryable classifies any failure for the retry engine. Platform responses
// carry their own classification; a terminal remote state can never resolve
// by retrying; everything else (timeouts, transport errors) is transient.
func Retryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var remote *RemoteFailureError
	return !errors.As(err, &remote)
}
