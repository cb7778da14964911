// Package prompts implements MCP prompt handlers.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package prompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// CreateAppPrompt handles the create-app MCP prompt.
// It guides the AI from a rough idea to a published application.
type CreateAppPrompt struct{}

// NewCreateAppPrompt creates a CreateAppPrompt.
func NewCreateAppPrompt() *CreateAppPrompt {
	return &CreateAppPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *CreateAppPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("create-app",
		mcp.WithPromptDescription(
			"Build and publish an application from an idea. "+
				"Guides you from a rough description to a live URL.",
		),
		mcp.WithArgument("idea",
			mcp.ArgumentDescription("A rough description of the application you want"),
		),
	)
}

// Handle processes the create-app prompt request.
func (p *CreateAppPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	idea := "(not provided yet)"
	if args := req.Params.Arguments; args != nil {
		if v, ok := args["idea"]; ok && v != "" {
			idea = v
		}
	}

	return &mcp.GetPromptResult{
		Description: "Build and publish an application",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(fmt.Sprintf(
					"I want to build and publish a web application. My idea so far: %s\n\n"+
						"Please:\n"+
						"1. If my idea is missing or vague, ask me what the application should do and who will use it\n"+
						"2. Turn the idea into one clear description of 10-500 characters covering the purpose, the users, and the key features\n"+
						"3. Show me the description and confirm it before building\n"+
						"4. Run `create_app` with the confirmed description and keep me updated on the progress it reports\n"+
						"5. When it finishes, give me the live URL and a one-line summary of what was built\n\n"+
						"If `create_app` fails with an authentication message, run `check_access` and help me fix the credentials first.",
					idea,
				)),
			},
		},
	}, nil
}
