// Package api is the client for the platform's app generation REST API:
// job creation and generation, publication, and application details, plus
// the retry and poll machinery every orchestration step runs through.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// ReadTimeout bounds status reads, MutateTimeout bounds calls that
	// change remote state.
	ReadTimeout    = 15 * time.Second
	MutateTimeout  = 30 * time.Second
	maxBodySnippet = 2048
)

// Client issues authenticated JSON calls against one tenant host.
type Client struct {
	base  string
	httpc *http.Client
	log   *slog.Logger
}

// NewClient builds a client for the tenant management host, e.g.
// "acme.appforge.dev".
func NewClient(host string, log *slog.Logger) *Client {
	return &Client{
		base:  "https://" + host,
		httpc: &http.Client{},
		log:   log.With("component", "api"),
	}
}

// Request describes one call. A zero Timeout means ReadTimeout.
type Request struct {
	Method  string
	Path    string
	Token   string
	Body    any
	Timeout time.Duration
}

// Do performs req and decodes a JSON response into out when out is non-nil.
// A missed deadline comes back as *TimeoutError, a non-2xx status as *Error.
// Failed calls are logged with status, endpoint and method only; bodies stay
// out of the logs because they can carry tokens and identity payloads.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = ReadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if req.Body != nil {
		buf, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("encode %s %s body: %w", req.Method, req.Path, err)
		}
		body = bytes.NewReader(buf)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, c.base+req.Path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", req.Method, req.Path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.log.Warn("request deadline exceeded",
				slog.String("method", req.Method),
				slog.String("endpoint", req.Path),
				slog.Duration("timeout", timeout))
			return &TimeoutError{Method: req.Method, Endpoint: req.Path, Timeout: timeout}
		}
		return fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := readSnippet(resp.Body, maxBodySnippet)
		c.log.Warn("request failed",
			slog.String("method", req.Method),
			slog.String("endpoint", req.Path),
			slog.Int("status", resp.StatusCode))
		return &Error{Status: resp.StatusCode, Method: req.Method, Endpoint: req.Path, Body: snippet}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			// body-less success, e.g. a trigger acknowledged with 202
			return nil
		}
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.Path, err)
	}
	return nil
}

func readSnippet(r io.Reader, limit int) string {
	b, err := io.ReadAll(io.LimitReader(r, int64(limit)))
	if err != nil {
		return ""
	}
	return string(b)
}
