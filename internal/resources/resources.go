// Package resources implements MCP resource handlers.
//
// Resources provide read-only data that the host can consume for
// context. They use URI-based addressing (appforge://...) following MCP
// conventions.
package resources

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/appforgehq/appforge/internal/history"
	"github.com/mark3labs/mcp-go/mcp"
)

// recentRunLimit caps the recent-runs listing.
const recentRunLimit = 20

// Handler serves run-history resources. The store may be nil when the
// history database could not be opened; reads then return an error
// payload instead of data.
type Handler struct {
	store *history.Store
}

// NewHandler creates a resource Handler. store may be nil.
func NewHandler(store *history.Store) *Handler {
	return &Handler{store: store}
}

// RecentRunsResource returns the MCP resource definition for the
// recent-runs listing.
func (h *Handler) RecentRunsResource() mcp.Resource {
	return mcp.NewResource(
		"appforge://runs/recent",
		"Recent Application Builds",
		mcp.WithResourceDescription("The most recent build runs with state, live URL, and failure reason"),
		mcp.WithMIMEType("application/json"),
	)
}

// HandleRecentRuns returns the latest runs as JSON.
func (h *Handler) HandleRecentRuns(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if h.store == nil {
		return errorResource(req.Params.URI, "run history is disabled"), nil
	}

	runs, err := h.store.RecentRuns(recentRunLimit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}

	data, err := json.MarshalIndent(runs, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling runs: %w", err)
	}
	return jsonResource(req.Params.URI, data), nil
}

// RunResource returns the MCP resource template for a single run.
func (h *Handler) RunResource() mcp.ResourceTemplate {
	return mcp.NewResourceTemplate(
		"appforge://runs/{id}",
		"Application Build Run",
		mcp.WithTemplateDescription("One recorded build run, addressed by its id"),
		mcp.WithTemplateMIMEType("application/json"),
	)
}

// HandleRun returns one run as JSON. The id is the last URI segment.
func (h *Handler) HandleRun(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	if h.store == nil {
		return errorResource(req.Params.URI, "run history is disabled"), nil
	}

	id := strings.TrimPrefix(req.Params.URI, "appforge://runs/")
	run, err := h.store.GetRun(id)
	if err != nil {
		return errorResource(req.Params.URI, err.Error()), nil
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling run: %w", err)
	}
	return jsonResource(req.Params.URI, data), nil
}

func jsonResource(uri string, data []byte) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}
}

// errorResource returns a resource with an error message.
func errorResource(uri, message string) []mcp.ResourceContents {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "text/plain",
			Text:     fmt.Sprintf("Error: %s", message),
		},
	}
}
