package api

import (
	"context"
	"errors"
	"testing"
	"time"
)

func jobSequence(statuses ...JobStatus) func(context.Context) (Job, error) {
	i := 0
	return func(ctx context.Context) (Job, error) {
		s := statuses[i]
		if i < len(statuses)-1 {
			i++
		}
		return Job{ID: "j-1", Status: s}, nil
	}
}

func jobPoller(poll func(context.Context) (Job, error)) Poller[Job] {
	return Poller[Job]{
		Name:    "readiness",
		Poll:    poll,
		Success: func(j Job) bool { return j.Status == JobReadyToGenerate },
		Failure: func(j Job) error {
			if j.Status == JobFailed {
				return &RemoteFailureError{Entity: "generation job", ID: j.ID, Status: string(j.Status)}
			}
			return nil
		},
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestPoller_ReturnsOnSuccess(t *testing.T) {
	p := jobPoller(jobSequence(JobPending, JobPending, JobReadyToGenerate))
	job, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Status != JobReadyToGenerate {
		t.Errorf("status = %s", job.Status)
	}
}

func TestPoller_FailureStateReturnsRemoteFailure(t *testing.T) {
	p := jobPoller(jobSequence(JobFailed))
	calls := 0
	inner := p.Poll
	p.Poll = func(ctx context.Context) (Job, error) {
		calls++
		return inner(ctx)
	}
	_, err := p.Run(context.Background())
	var remote *RemoteFailureError
	if !errors.As(err, &remote) {
		t.Fatalf("err = %v, want *RemoteFailureError", err)
	}
	if remote.Status != "Failed" {
		t.Errorf("Status = %q", remote.Status)
	}
	if calls != 1 {
		t.Errorf("polls = %d, want 1 for an immediately failed job", calls)
	}
}

func TestPoller_SuccessCheckedBeforeFailure(t *testing.T) {
	// A snapshot that satisfies both predicates must count as success.
	p := Poller[Job]{
		Name:            "both",
		Poll:            jobSequence(JobReadyToGenerate),
		Success:         func(j Job) bool { return true },
		Failure:         func(j Job) error { return errors.New("failure predicate must not fire") },
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestPoller_ExhaustionYieldsPollTimeout(t *testing.T) {
	calls := 0
	p := jobPoller(func(ctx context.Context) (Job, error) {
		calls++
		return Job{ID: "j-1", Status: JobGenerating}, nil
	})
	_, err := p.Run(context.Background())
	var pt *PollTimeoutError
	if !errors.As(err, &pt) {
		t.Fatalf("err = %v, want *PollTimeoutError", err)
	}
	if calls != p.MaxAttempts {
		t.Errorf("polls = %d, want exactly MaxAttempts = %d", calls, p.MaxAttempts)
	}
	if pt.Attempts != p.MaxAttempts {
		t.Errorf("Attempts = %d, want %d", pt.Attempts, p.MaxAttempts)
	}
}

func TestPoller_ObserverSeesEveryPoll(t *testing.T) {
	var attempts []int
	var statuses []JobStatus
	p := jobPoller(jobSequence(JobPending, JobGenerating, JobReadyToGenerate))
	p.Observe = func(j Job, attempt int) {
		attempts = append(attempts, attempt)
		statuses = append(statuses, j.Status)
	}
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(attempts) != 3 || attempts[0] != 1 || attempts[2] != 3 {
		t.Errorf("attempts = %v, want [1 2 3]", attempts)
	}
	if statuses[2] != JobReadyToGenerate {
		t.Errorf("observer missed the final snapshot: %v", statuses)
	}
}

func TestPoller_PollErrorAborts(t *testing.T) {
	calls := 0
	p := jobPoller(func(ctx context.Context) (Job, error) {
		calls++
		return Job{}, &Error{Status: 503, Method: "GET", Endpoint: "/api/v1/jobs/j-1"}
	})
	_, err := p.Run(context.Background())
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want the poll error", err)
	}
	if calls != 1 {
		t.Errorf("polls = %d, want 1", calls)
	}
}

func TestPoller_IntervalGrowthFloorsElapsed(t *testing.T) {
	p := jobPoller(jobSequence(JobPending, JobPending, JobPending, JobReadyToGenerate))
	p.InitialInterval = 20 * time.Millisecond
	p.MaxInterval = time.Second
	start := time.Now()
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// sleeps of 20ms, 30ms and 45ms precede the fourth poll
	if elapsed := time.Since(start); elapsed < 95*time.Millisecond {
		t.Errorf("elapsed = %v, want >= 95ms for 1.5x interval growth", elapsed)
	}
}

func TestPoller_IntervalCappedAtMax(t *testing.T) {
	p := jobPoller(jobSequence(JobPending, JobPending, JobPending, JobPending, JobReadyToGenerate))
	p.InitialInterval = 10 * time.Millisecond
	p.MaxInterval = 15 * time.Millisecond
	start := time.Now()
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// sleeps are 10ms then 15ms capped thereafter: 10+15+15+15
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("elapsed = %v, interval cap not applied", elapsed)
	}
}

func TestPoller_CancellationStopsPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	p := jobPoller(func(ctx context.Context) (Job, error) {
		calls++
		return Job{ID: "j-1", Status: JobGenerating}, nil
	})
	p.InitialInterval = 10 * time.Second
	p.MaxInterval = 10 * time.Second
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := p.Run(ctx)
	if err == nil {
		t.Fatal("Run succeeded after cancellation")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("cancellation leaked into the sleep, took %v", elapsed)
	}
	if calls != 1 {
		t.Errorf("polls after cancellation: %d", calls)
	}
}
