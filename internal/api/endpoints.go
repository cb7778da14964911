package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

const basePath = "/api/v1"

// CreateJob submits a new generation job and returns its id.
func (c *Client) CreateJob(ctx context.Context, token, prompt string) (string, error) {
	body := createJobRequest{
		Prompt:              prompt,
		Files:               []string{},
		IgnoreTenantContext: true,
	}
	var resp createJobResponse
	err := c.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    basePath + "/jobs",
		Token:   token,
		Body:    body,
		Timeout: MutateTimeout,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.JobID == "" {
		return "", fmt.Errorf("job creation response carried no job id")
	}
	return resp.JobID, nil
}

// JobStatus fetches the current snapshot of a generation job.
func (c *Client) JobStatus(ctx context.Context, token, jobID string) (Job, error) {
	var job Job
	err := c.Do(ctx, Request{
		Method:  http.MethodGet,
		Path:    basePath + "/jobs/" + url.PathEscape(jobID),
		Token:   token,
		Timeout: ReadTimeout,
	}, &job)
	return job, err
}

// TriggerGeneration starts the build phase of a ready job.
func (c *Client) TriggerGeneration(ctx context.Context, token, jobID string) error {
	return c.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    basePath + "/jobs/" + url.PathEscape(jobID) + "/generate",
		Token:   token,
		Timeout: MutateTimeout,
	}, nil)
}

// CreatePublication starts deploying the generated application and returns
// the publication key.
func (c *Client) CreatePublication(ctx context.Context, token, appKey string) (string, error) {
	body := createPublicationRequest{
		ApplicationKey:      appKey,
		ApplicationRevision: 1,
		DownloadURL:         nil,
	}
	var resp createPublicationResponse
	err := c.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    basePath + "/publications",
		Token:   token,
		Body:    body,
		Timeout: MutateTimeout,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.PublicationKey == "" {
		return "", fmt.Errorf("publication response carried no publication key")
	}
	return resp.PublicationKey, nil
}

// PublicationStatus fetches the current snapshot of a publication.
func (c *Client) PublicationStatus(ctx context.Context, token, key string) (Publication, error) {
	var pub Publication
	err := c.Do(ctx, Request{
		Method:  http.MethodGet,
		Path:    basePath + "/publications/" + url.PathEscape(key),
		Token:   token,
		Timeout: ReadTimeout,
	}, &pub)
	return pub, err
}

// ApplicationDetails fetches the published application's details, including
// the path component of its live URL.
func (c *Client) ApplicationDetails(ctx context.Context, token, appKey string) (AppDetails, error) {
	var det AppDetails
	err := c.Do(ctx, Request{
		Method:  http.MethodGet,
		Path:    basePath + "/applications/" + url.PathEscape(appKey),
		Token:   token,
		Timeout: ReadTimeout,
	}, &det)
	return det, err
}
