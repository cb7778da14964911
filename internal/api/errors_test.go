package api

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestRetryable_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{409, false},
		{422, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
	}
	for _, tt := range tests {
		err := &Error{Status: tt.status, Method: "GET", Endpoint: "/api/v1/jobs/j-1"}
		if got := Retryable(err); got != tt.want {
			t.Errorf("Retryable(status %d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRetryable_WrappedError(t *testing.T) {
	err := fmt.Errorf("create job: %w", &Error{Status: 404, Method: "POST", Endpoint: "/api/v1/jobs"})
	if Retryable(err) {
		t.Errorf("wrapped 404 classified retryable")
	}
}

func TestRetryable_TimeoutAndTransport(t *testing.T) {
	if !Retryable(&TimeoutError{Method: "GET", Endpoint: "/api/v1/jobs/j-1"}) {
		t.Errorf("timeout classified non-retryable")
	}
	if !Retryable(errors.New("connection reset by peer")) {
		t.Errorf("transport error classified non-retryable")
	}
}

func TestRetryable_RemoteFailure(t *testing.T) {
	err := &RemoteFailureError{Entity: "generation job", ID: "j-1", Status: "Failed"}
	if Retryable(err) {
		t.Errorf("terminal remote failure classified retryable")
	}
}

func TestError_MessageOmitsBody(t *testing.T) {
	err := &Error{Status: 500, Method: "POST", Endpoint: "/api/v1/jobs", Body: `{"secret":"tok-abc"}`}
	if strings.Contains(err.Error(), "tok-abc") {
		t.Errorf("Error() leaked response body: %q", err.Error())
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("Error() missing status: %q", err.Error())
	}
}

func TestPollTimeoutError_NamesAttempts(t *testing.T) {
	err := &PollTimeoutError{Operation: "generation", Attempts: 120}
	if !strings.Contains(err.Error(), "120") {
		t.Errorf("PollTimeoutError message %q does not name the attempt count", err.Error())
	}
}
