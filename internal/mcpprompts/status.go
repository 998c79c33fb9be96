package mcpprompts

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// StatusPrompt handles the outreach-status MCP prompt.
// It instructs the AI to summarize recent contacts and pending reviews.
type StatusPrompt struct{}

// NewStatusPrompt creates a StatusPrompt.
func NewStatusPrompt() *StatusPrompt {
	return &StatusPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StatusPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("outreach-status",
		mcp.WithPromptDescription(
			"Summarize recent outreach work: which contacts were generated, "+
				"their latest quality scores and which records still await review.",
		),
	)
}

// Handle processes the outreach-status prompt request.
func (p *StatusPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	return &mcp.GetPromptResult{
		Description: "Outreach Status",
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.NewTextContent(
					"Please run `outreach_contacts` to list my recent contacts.\n\n" +
						"Then:\n" +
						"1. Show them in a compact table with their latest quality score\n" +
						"2. Point out contacts whose latest score is below 60\n" +
						"3. For those, run `outreach_history` and tell me which fields keep failing\n" +
						"4. Suggest which contact to review next",
				),
			},
		},
	}, nil
}
