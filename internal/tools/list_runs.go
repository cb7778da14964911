package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/appforgehq/appforge/internal/history"
	"github.com/mark3labs/mcp-go/mcp"
)

const defaultRunLimit = 10

// ListRunsTool renders recent application builds from the history store.
type ListRunsTool struct {
	history *history.Store
}

// NewListRunsTool creates a ListRunsTool. hist may be nil when the
// history database could not be opened.
func NewListRunsTool(hist *history.Store) *ListRunsTool {
	return &ListRunsTool{history: hist}
}

// Definition returns the MCP tool definition for list_runs.
func (t *ListRunsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_runs",
		mcp.WithDescription(
			"List recent application builds: when they started, whether they "+
				"succeeded, and the live URL of each published application.",
		),
		mcp.WithNumber("limit",
			mcp.Description("Max runs to return (default: 10)"),
		),
	)
}

// Handle processes the list_runs tool call.
func (t *ListRunsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if t.history == nil {
		return mcp.NewToolResultError("run history is disabled: the history database could not be opened at startup"), nil
	}

	runs, err := t.history.RecentRuns(intArg(req, "limit", defaultRunLimit))
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("No runs recorded yet. Use create_app to build your first application."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Recent Runs (%d)\n\n", len(runs))
	b.WriteString("| ID | Started | State | Prompt | Outcome |\n")
	b.WriteString("|----|---------|-------|--------|---------|\n")
	for _, r := range runs {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			r.ID, r.StartedAt, r.State, tableCell(r.Prompt, 60), tableCell(runOutcome(r), 80))
	}
	if stats, err := t.history.Stats(); err == nil && stats.Total > len(runs) {
		fmt.Fprintf(&b, "\n%d runs recorded in total: %d succeeded, %d failed, %d running.\n",
			stats.Total, stats.Succeeded, stats.Failed, stats.Running)
	}
	b.WriteString("\nRead the appforge://runs/{id} resource for the full record of a run.\n")
	return mcp.NewToolResultText(b.String()), nil
}

// runOutcome is the user-facing outcome column: the live URL when the
// run succeeded, the failure reason when it failed.
func runOutcome(r history.Run) string {
	switch r.State {
	case history.RunSucceeded:
		return r.URL
	case history.RunFailed:
		return r.Error
	default:
		return "in progress"
	}
}
