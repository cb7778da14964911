package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/appforgehq/appforge/internal/history"
	"github.com/appforgehq/appforge/internal/orchestrator"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Runner starts an application build and streams its events.
// Implemented by orchestrator.Orchestrator.
type Runner interface {
	Run(ctx context.Context, prompt string) <-chan orchestrator.Event
}

// CreateAppTool generates and publishes an application from a prompt.
//
// Progress events are forwarded to the client as notifications while the
// run advances; the final result carries the live URL. The history store
// is optional: when nil, runs are not recorded but the tool works
// normally.
type CreateAppTool struct {
	runner  Runner
	history *history.Store
	log     *slog.Logger
}

// NewCreateAppTool creates a CreateAppTool. hist may be nil.
func NewCreateAppTool(runner Runner, hist *history.Store, log *slog.Logger) *CreateAppTool {
	return &CreateAppTool{runner: runner, history: hist, log: log}
}

// Definition returns the MCP tool definition for create_app.
func (t *CreateAppTool) Definition() mcp.Tool {
	return mcp.NewTool("create_app",
		mcp.WithDescription(
			"Generate and publish a web application from a plain-language description. "+
				"Streams progress while the platform builds and returns the live URL once "+
				"the application is published. A run can take several minutes.",
		),
		mcp.WithString("prompt",
			mcp.Required(),
			mcp.Description("What the application should do, in plain language (10-500 characters)"),
		),
	)
}

// Handle processes the create_app tool call. It blocks until the run
// reaches a terminal state or the request context is cancelled.
func (t *CreateAppTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	prompt := req.GetString("prompt", "")
	if strings.TrimSpace(prompt) == "" {
		return mcp.NewToolResultError("'prompt' is required: describe the application you want to build"), nil
	}
	if err := orchestrator.ValidatePrompt(prompt); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	runID := t.recordStart(prompt)

	var (
		steps    []string
		terminal orchestrator.Event
		done     bool
	)
	for ev := range t.runner.Run(ctx, prompt) {
		switch ev.Kind {
		case orchestrator.EventProgress:
			steps = append(steps, ev.Message)
			t.notify(ctx, ev.Message)
		case orchestrator.EventResult, orchestrator.EventFailure:
			terminal, done = ev, true
		}
	}

	// A channel that closes without a terminal event means the run was
	// abandoned through its context.
	if !done {
		t.recordFinish(runID, history.RunFailed, "", "", "run cancelled")
		return mcp.NewToolResultError("the run was cancelled before completing"), nil
	}

	if terminal.Kind == orchestrator.EventFailure {
		t.recordFinish(runID, history.RunFailed, "", "", terminal.Message)
		return mcp.NewToolResultError(fmt.Sprintf("App creation failed: %s", terminal.Message)), nil
	}

	t.recordFinish(runID, history.RunSucceeded, terminal.AppKey, terminal.URL, "")
	return mcp.NewToolResultText(createAppResponse(terminal.URL, runID, steps)), nil
}

// notify forwards a progress message to the connected client. Outside a
// live MCP session there is no server in the context and the message is
// skipped.
func (t *CreateAppTool) notify(ctx context.Context, message string) {
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return
	}
	err := srv.SendNotificationToClient(ctx, "notifications/message", map[string]any{
		"level": "info",
		"data":  message,
	})
	if err != nil {
		t.log.Debug("progress notification not delivered", slog.Any("error", err))
	}
}

// recordStart opens a history record for the run. History is best
// effort: failures are logged, never propagated.
func (t *CreateAppTool) recordStart(prompt string) string {
	if t.history == nil {
		return ""
	}
	id, err := t.history.StartRun(prompt)
	if err != nil {
		t.log.Warn("run not recorded in history", slog.Any("error", err))
		return ""
	}
	return id
}

func (t *CreateAppTool) recordFinish(id string, state history.RunState, appKey, url, errMsg string) {
	if t.history == nil || id == "" {
		return
	}
	if err := t.history.FinishRun(id, state, appKey, url, errMsg); err != nil {
		t.log.Warn("run not updated in history", slog.Any("error", err))
	}
}

func createAppResponse(url, runID string, steps []string) string {
	var b strings.Builder
	b.WriteString("# 🚀 Application Published\n\n")
	fmt.Fprintf(&b, "**Live URL**: %s\n", url)
	if runID != "" {
		fmt.Fprintf(&b, "**Run**: %s\n", runID)
	}
	if len(steps) > 0 {
		b.WriteString("\n## Build Steps\n\n")
		for _, s := range steps {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	b.WriteString("\nOpen the live URL in a browser to use the application.\n")
	return b.String()
}
