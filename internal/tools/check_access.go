package tools

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/appforgehq/appforge/internal/orchestrator"
	"github.com/mark3labs/mcp-go/mcp"
)

// TokenSource yields a current platform bearer token.
// Implemented by auth.Cache.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// CheckAccessTool verifies that the configured credentials can sign in
// to the platform. It acquires a token and reports the verdict without
// creating anything.
type CheckAccessTool struct {
	tokens TokenSource
	host   string
	log    *slog.Logger
}

// NewCheckAccessTool creates a CheckAccessTool for the tenant host.
func NewCheckAccessTool(tokens TokenSource, host string, log *slog.Logger) *CheckAccessTool {
	return &CheckAccessTool{tokens: tokens, host: host, log: log}
}

// Definition returns the MCP tool definition for check_access.
func (t *CheckAccessTool) Definition() mcp.Tool {
	return mcp.NewTool("check_access",
		mcp.WithDescription(
			"Verify that the configured credentials can sign in to the platform. "+
				"Acquires an access token and reports the result; creates nothing. "+
				"Use this before create_app when setting up a new environment.",
		),
	)
}

// Handle processes the check_access tool call.
func (t *CheckAccessTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := t.tokens.Token(ctx); err != nil {
		t.log.Warn("access check failed", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("Access check failed: %s", orchestrator.Sanitize(err))), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf(
		"# ✅ Access Verified\n\nSigned in to **%s**. The create_app tool is ready to use.",
		t.host,
	)), nil
}
