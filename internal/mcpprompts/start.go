// Package mcpprompts implements MCP prompt handlers for the outreach workflow.
//
// MCP prompts are user-triggered workflows (like slash commands) that
// instruct the AI to execute a specific sequence. Unlike tools (which
// the AI calls), prompts are initiated by the user.
package mcpprompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// StartPrompt handles the outreach-start MCP prompt.
// It guides the AI through one generate-and-review iteration.
type StartPrompt struct{}

// NewStartPrompt creates a StartPrompt.
func NewStartPrompt() *StartPrompt {
	return &StartPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *StartPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("outreach-start",
		mcp.WithPromptDescription(
			"Research a target company and prepare the personalization fields of a cold email, "+
				"then walk through the review so the record can be improved.",
		),
		mcp.WithArgument("client_id",
			mcp.ArgumentDescription("Client context to write on behalf of"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("company",
			mcp.ArgumentDescription("Target company name"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("website",
			mcp.ArgumentDescription("Target company website (optional, improves accuracy)"),
		),
		mcp.WithArgument("contact_id",
			mcp.ArgumentDescription("Contact identifier. Default: the company name"),
		),
	)
}

// Handle processes the outreach-start prompt request.
func (p *StartPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	args := req.Params.Arguments
	clientID := argOr(args, "client_id", "")
	company := argOr(args, "company", "")
	website := argOr(args, "website", "")
	contactID := argOr(args, "contact_id", company)

	websiteHint := ""
	if website != "" {
		websiteHint = fmt.Sprintf(", website=%q", website)
	}

	text := fmt.Sprintf(
		"Prepare a personalized cold email for %s on behalf of client %q.\n\n"+
			"1. Call `outreach_generate` with contact_id=%q, client_id=%q, company=%q%s.\n"+
			"2. Present the fields as a table. Flag every degraded field (level 2 or 3): "+
			"those values are inferred or generic and must not be presented as facts.\n"+
			"3. Draft the email using only fields at level 0 or 1 as factual claims.\n"+
			"4. Ask me to rate the record (perfect, good, average, bad) and list the issues.\n"+
			"5. Send my review with `outreach_feedback` and show me the improvement proposal.",
		company, clientID, contactID, clientID, company, websiteHint,
	)

	return &mcp.GetPromptResult{
		Description: "Outreach generation for " + company,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(text),
			},
		},
	}, nil
}

func argOr(args map[string]string, key, def string) string {
	if args == nil {
		return def
	}
	if v, ok := args[key]; ok && v != "" {
		return v
	}
	return def
}
