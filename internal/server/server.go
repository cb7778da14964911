// Package server wires all MCP components and creates the server instance.
//
// This is the composition root: it builds the auth chain, the API client,
// and the orchestrator, and injects them into the tools, prompts, and
// resources. No business logic lives here, only wiring.
package server

import (
	"fmt"
	"log/slog"

	"github.com/appforgehq/appforge/internal/api"
	"github.com/appforgehq/appforge/internal/auth"
	"github.com/appforgehq/appforge/internal/config"
	"github.com/appforgehq/appforge/internal/history"
	"github.com/appforgehq/appforge/internal/orchestrator"
	"github.com/appforgehq/appforge/internal/prompts"
	"github.com/appforgehq/appforge/internal/resources"
	"github.com/appforgehq/appforge/internal/tools"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates and configures the MCP server with all tools, prompts, and
// resources registered.
//
// The returned cleanup function closes the history store's database
// connection and must be called on shutdown (typically via defer). It is
// always non-nil and safe to call even if history init failed.
func New(cfg *config.Config, log *slog.Logger) (*server.MCPServer, func(), error) {
	if err := cfg.ValidateCredentials(); err != nil {
		return nil, noop, fmt.Errorf("checking configuration: %w", err)
	}

	// --- Create shared dependencies ---

	orch, tokens := buildPlatform(cfg, log)

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"appforge",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Open the run history ---
	//
	// History is an independent subsystem: if it fails to open, the
	// build tools keep working and the history surfaces report it as
	// disabled.

	hist, cleanup := openHistory(cfg, log)

	// --- Register tools ---

	createApp := tools.NewCreateAppTool(orch, hist, log)
	s.AddTool(createApp.Definition(), createApp.Handle)

	checkAccess := tools.NewCheckAccessTool(tokens, cfg.Host, log)
	s.AddTool(checkAccess.Definition(), checkAccess.Handle)

	listRuns := tools.NewListRunsTool(hist)
	s.AddTool(listRuns.Definition(), listRuns.Handle)

	// --- Register prompts ---

	createPrompt := prompts.NewCreateAppPrompt()
	s.AddPrompt(createPrompt.Definition(), createPrompt.Handle)

	// --- Register resources ---

	res := resources.NewHandler(hist)
	s.AddResource(res.RecentRunsResource(), res.HandleRecentRuns)
	s.AddResourceTemplate(res.RunResource(), res.HandleRun)

	return s, cleanup, nil
}

// buildPlatform assembles the auth chain, the API client, and the
// orchestrator shared by both transports.
func buildPlatform(cfg *config.Config, log *slog.Logger) (*orchestrator.Orchestrator, *auth.Cache) {
	exchange := auth.NewExchange(auth.Config{
		IdentityHost:     cfg.IdentityHost,
		LoginHost:        cfg.LoginHost,
		Username:         cfg.Username,
		Password:         cfg.Password,
		TokenTTLFallback: cfg.TokenTTLFallback,
	}, log)
	tokens := auth.NewCache(exchange, cfg.TokenBuffer)
	client := api.NewClient(cfg.Host, log)
	return orchestrator.New(client, tokens, cfg.Host, log, orchestrator.Options{}), tokens
}

// keepRuns bounds the history database: older runs are pruned at startup.
const keepRuns = 500

// openHistory opens the run store, degrading to a nil store when the
// database is unavailable. The returned cleanup is always non-nil.
func openHistory(cfg *config.Config, log *slog.Logger) (*history.Store, func()) {
	histCfg := history.DefaultConfig()
	if cfg.HistoryPath != "" {
		histCfg.DataDir = cfg.HistoryPath
	}
	hist, err := history.New(histCfg)
	if err != nil {
		log.Warn("run history disabled", slog.Any("error", err))
		return nil, noop
	}
	if err := hist.Prune(keepRuns); err != nil {
		log.Warn("pruning run history", slog.Any("error", err))
	}
	return hist, func() {
		if err := hist.Close(); err != nil {
			log.Warn("history store close", slog.Any("error", err))
		}
	}
}

// noop is the default cleanup when history hasn't been opened.
func noop() {}

// serverInstructions returns the instructions that tell the AI how to
// use the server effectively.
func serverInstructions() string {
	return `You have access to appforge, an MCP server that builds and publishes
web applications from plain-language descriptions.

## Tools

- create_app: generates AND publishes an application from a prompt. One
  call covers the whole build; it streams progress notifications and
  returns the live URL when done. A run takes several minutes.
- check_access: verifies that the configured credentials can sign in.
  Creates nothing.
- list_runs: lists recent builds with their state and live URLs.

## Writing a good prompt for create_app

The prompt must be 10-500 characters. Cover three things:
1. What the application does (its core purpose)
2. Who uses it
3. The key features, in order of importance

Good: "A booking tool for a small gym: members reserve class slots,
trainers manage the weekly schedule, and the owner sees attendance."
Bad: "a gym app" (too vague, too short).

## Workflow

1. When the user describes an application idea, shape it into one clear
   description and confirm it with them before building.
2. Call create_app with the confirmed description. Relay the progress it
   reports; do not call it again while a run is in flight.
3. Share the live URL when the run finishes.
4. If the result reports an authentication problem, run check_access and
   help the user fix their credentials (APPFORGE_HOST, APPFORGE_USERNAME,
   APPFORGE_PASSWORD) before retrying.
5. Use list_runs or the appforge://runs/recent resource when the user
   asks what has been built before.

## Important

- create_app publishes to the tenant's live domain. Confirm the
  description with the user first; a run is not free to undo.
- Failures come back as short, user-safe messages. Read them to the user
  as-is and suggest the next step (retry, fix credentials, or simplify
  the prompt).`
}
