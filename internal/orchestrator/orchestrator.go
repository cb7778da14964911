// Package orchestrator drives one application build from prompt to live URL
// and reports its progress as an event stream.
//
// A run walks the platform's job lifecycle in order: create the job, wait
// for the build plan, trigger generation, wait for the generated
// application, publish it, wait for the publication, then resolve the live
// address. Mutating calls are retried; status waits poll with growing
// intervals. Consumers receive events lazily over an unbuffered channel and
// abandon a run by cancelling its context.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/appforgehq/appforge/internal/api"
	"github.com/appforgehq/appforge/internal/logging"
)

const (
	// MinPromptRunes and MaxPromptRunes bound the prompt length, in runes.
	MinPromptRunes = 10
	MaxPromptRunes = 500

	// progressEvery throttles poll chatter: one progress event per this
	// many status checks.
	progressEvery = 5

	managedSuffix = ".appforge.dev"
	liveSuffix    = ".appforge.app"
)

type EventKind string

const (
	EventProgress EventKind = "progress"
	EventResult   EventKind = "result"
	EventFailure  EventKind = "failure"
)

// Event is one element of a run's output sequence. The sequence is zero or
// more progress events followed by exactly one result or failure, after
// which the channel closes. A run abandoned through its context closes the
// channel without a terminal event.
type Event struct {
	Kind    EventKind
	Message string
	// URL and AppKey identify the published application, set on result
	// events.
	URL    string
	AppKey string
	// Err is the typed cause of a failure event. Message already carries
	// its sanitized form.
	Err error
}

// TokenSource yields a current bearer token, refreshing when needed.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Platform is the slice of the management API a run needs.
type Platform interface {
	CreateJob(ctx context.Context, token, prompt string) (string, error)
	JobStatus(ctx context.Context, token, jobID string) (api.Job, error)
	TriggerGeneration(ctx context.Context, token, jobID string) error
	CreatePublication(ctx context.Context, token, appKey string) (string, error)
	PublicationStatus(ctx context.Context, token, key string) (api.Publication, error)
	ApplicationDetails(ctx context.Context, token, appKey string) (api.AppDetails, error)
}

// PollTuning sizes one polling stage.
type PollTuning struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Options tunes a run's retry and polling behavior. Zero-value fields take
// the production defaults: job readiness polls 2s growing to 10s for up to
// 60 attempts, generation and publication poll 3s growing to 30s for up to
// 120 attempts.
type Options struct {
	Retry        api.RetryOptions
	ReadyPoll    PollTuning
	GeneratePoll PollTuning
	PublishPoll  PollTuning
}

func (o Options) withDefaults() Options {
	if o.ReadyPoll == (PollTuning{}) {
		o.ReadyPoll = PollTuning{MaxAttempts: 60, InitialInterval: 2 * time.Second, MaxInterval: 10 * time.Second}
	}
	if o.GeneratePoll == (PollTuning{}) {
		o.GeneratePoll = PollTuning{MaxAttempts: 120, InitialInterval: 3 * time.Second, MaxInterval: 30 * time.Second}
	}
	if o.PublishPoll == (PollTuning{}) {
		o.PublishPoll = PollTuning{MaxAttempts: 120, InitialInterval: 3 * time.Second, MaxInterval: 30 * time.Second}
	}
	return o
}

// Orchestrator runs application builds. Safe for concurrent use; runs are
// independent apart from the shared token source.
type Orchestrator struct {
	platform Platform
	tokens   TokenSource
	host     string
	log      *slog.Logger
	opts     Options
}

// New builds an Orchestrator for the tenant management host.
func New(platform Platform, tokens TokenSource, host string, log *slog.Logger, opts Options) *Orchestrator {
	return &Orchestrator{
		platform: platform,
		tokens:   tokens,
		host:     host,
		log:      log.With("component", "orchestrator"),
		opts:     opts.withDefaults(),
	}
}

// Run starts a build for prompt and returns its event stream. The channel
// is unbuffered: the run advances only as fast as the consumer reads.
func (o *Orchestrator) Run(ctx context.Context, prompt string) <-chan Event {
	events := make(chan Event)
	log := o.log.With(slog.String("run", logging.NewCorrelationID()))
	go func() {
		defer close(events)
		url, appKey, err := o.run(ctx, log, prompt, events)
		if ctx.Err() != nil {
			log.Info("run abandoned")
			return
		}
		if err != nil {
			log.Warn("run failed", slog.Any("error", err))
			o.emit(ctx, events, Event{Kind: EventFailure, Message: Sanitize(err), Err: err})
			return
		}
		log.Info("run finished", slog.String("url", url))
		o.emit(ctx, events, Event{Kind: EventResult, Message: "application is live", URL: url, AppKey: appKey})
	}()
	return events
}

func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, prompt string, events chan<- Event) (string, string, error) {
	if err := ValidatePrompt(prompt); err != nil {
		return "", "", err
	}

	token, err := o.tokens.Token(ctx)
	if err != nil {
		return "", "", err
	}
	jobID, err := api.WithRetry(ctx, log, "create job", func(ctx context.Context) (string, error) {
		return o.platform.CreateJob(ctx, token, prompt)
	}, o.opts.Retry)
	if err != nil {
		return "", "", err
	}
	log.Info("job created", slog.String("job", jobID))
	o.progress(ctx, events, "job accepted, waiting for the build plan")

	if _, err := o.awaitJob(ctx, events, jobID, o.opts.ReadyPoll, "job readiness",
		api.JobReadyToGenerate, "still waiting for the build plan"); err != nil {
		return "", "", err
	}
	o.progress(ctx, events, "build plan ready, generating the application")

	token, err = o.tokens.Token(ctx)
	if err != nil {
		return "", "", err
	}
	err = api.WithRetryNoResult(ctx, log, "trigger generation", func(ctx context.Context) error {
		return o.platform.TriggerGeneration(ctx, token, jobID)
	}, o.opts.Retry)
	if err != nil {
		return "", "", err
	}

	job, err := o.awaitJob(ctx, events, jobID, o.opts.GeneratePoll, "job generation",
		api.JobDone, "still generating the application")
	if err != nil {
		return "", "", err
	}
	if job.AppSpec == nil || job.AppSpec.AppKey == "" {
		return "", "", fmt.Errorf("job %s completed without an application key", jobID)
	}
	appKey := job.AppSpec.AppKey
	log.Info("generation finished", slog.String("app", appKey))
	o.progress(ctx, events, "application generated, publishing")

	token, err = o.tokens.Token(ctx)
	if err != nil {
		return "", "", err
	}
	pubKey, err := api.WithRetry(ctx, log, "create publication", func(ctx context.Context) (string, error) {
		return o.platform.CreatePublication(ctx, token, appKey)
	}, o.opts.Retry)
	if err != nil {
		return "", "", err
	}

	if err := o.awaitPublication(ctx, events, pubKey); err != nil {
		return "", "", err
	}
	o.progress(ctx, events, "published, resolving the application address")

	token, err = o.tokens.Token(ctx)
	if err != nil {
		return "", "", err
	}
	det, err := o.platform.ApplicationDetails(ctx, token, appKey)
	if err != nil {
		return "", "", err
	}
	if det.URLPath == "" {
		return "", "", fmt.Errorf("application %s has no url path", appKey)
	}
	return liveURL(o.host, det.URLPath), appKey, nil
}

// awaitJob polls the job until it reaches want. A Failed status is terminal
// regardless of the wanted one.
func (o *Orchestrator) awaitJob(ctx context.Context, events chan<- Event, jobID string, tune PollTuning, name string, want api.JobStatus, waitMsg string) (api.Job, error) {
	return api.Poller[api.Job]{
		Name: name,
		Poll: func(ctx context.Context) (api.Job, error) {
			token, err := o.tokens.Token(ctx)
			if err != nil {
				return api.Job{}, err
			}
			return o.platform.JobStatus(ctx, token, jobID)
		},
		Success: func(j api.Job) bool { return j.Status == want },
		Failure: func(j api.Job) error {
			if j.Status == api.JobFailed {
				return &api.RemoteFailureError{Entity: "job", ID: jobID, Status: string(j.Status)}
			}
			return nil
		},
		Observe: func(_ api.Job, attempt int) {
			if attempt%progressEvery == 0 {
				o.progress(ctx, events, waitMsg)
			}
		},
		MaxAttempts:     tune.MaxAttempts,
		InitialInterval: tune.InitialInterval,
		MaxInterval:     tune.MaxInterval,
	}.Run(ctx)
}

func (o *Orchestrator) awaitPublication(ctx context.Context, events chan<- Event, key string) error {
	_, err := api.Poller[api.Publication]{
		Name: "publication",
		Poll: func(ctx context.Context) (api.Publication, error) {
			token, err := o.tokens.Token(ctx)
			if err != nil {
				return api.Publication{}, err
			}
			return o.platform.PublicationStatus(ctx, token, key)
		},
		Success: func(p api.Publication) bool { return p.Status == api.PublicationFinished },
		Failure: func(p api.Publication) error {
			if p.Status == api.PublicationFailed {
				return &api.RemoteFailureError{Entity: "publication", ID: key, Status: string(p.Status)}
			}
			return nil
		},
		Observe: func(_ api.Publication, attempt int) {
			if attempt%progressEvery == 0 {
				o.progress(ctx, events, "still publishing the application")
			}
		},
		MaxAttempts:     o.opts.PublishPoll.MaxAttempts,
		InitialInterval: o.opts.PublishPoll.InitialInterval,
		MaxInterval:     o.opts.PublishPoll.MaxInterval,
	}.Run(ctx)
	return err
}

func (o *Orchestrator) progress(ctx context.Context, events chan<- Event, msg string) {
	o.emit(ctx, events, Event{Kind: EventProgress, Message: msg})
}

// emit delivers ev unless the consumer has cancelled the run.
func (o *Orchestrator) emit(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// ValidatePrompt bounds the prompt to 10 through 500 runes inclusive.
func ValidatePrompt(prompt string) error {
	switch n := utf8.RuneCountInString(prompt); {
	case n < MinPromptRunes:
		return &ValidationError{Field: "prompt", Reason: fmt.Sprintf("must be at least %d characters", MinPromptRunes)}
	case n > MaxPromptRunes:
		return &ValidationError{Field: "prompt", Reason: fmt.Sprintf("must be at most %d characters", MaxPromptRunes)}
	}
	return nil
}

// liveURL maps the tenant management host to its live counterpart and
// appends the application path.
func liveURL(host, urlPath string) string {
	if strings.HasSuffix(host, managedSuffix) {
		host = strings.TrimSuffix(host, managedSuffix) + liveSuffix
	}
	if !strings.HasPrefix(urlPath, "/") {
		urlPath = "/" + urlPath
	}
	return "https://" + host + urlPath
}
