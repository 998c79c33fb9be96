package mcpprompts

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// ReviewPrompt handles the outreach-review MCP prompt.
// It guides a structured review of one generated record.
type ReviewPrompt struct{}

// NewReviewPrompt creates a ReviewPrompt.
func NewReviewPrompt() *ReviewPrompt {
	return &ReviewPrompt{}
}

// Definition returns the MCP prompt definition for registration.
func (p *ReviewPrompt) Definition() mcp.Prompt {
	return mcp.NewPrompt("outreach-review",
		mcp.WithPromptDescription(
			"Review a generated record field by field and turn the review into an improvement proposal.",
		),
		mcp.WithArgument("record_id",
			mcp.ArgumentDescription("Id of the record to review"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("contact_id",
			mcp.ArgumentDescription("Contact the record belongs to"),
		),
	)
}

// Handle processes the outreach-review prompt request.
func (p *ReviewPrompt) Handle(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	recordID := argOr(req.Params.Arguments, "record_id", "")
	if recordID == "" {
		return nil, fmt.Errorf("record_id is required")
	}
	contactID := argOr(req.Params.Arguments, "contact_id", "")

	lookup := "Use the record as shown earlier in this conversation."
	if contactID != "" {
		lookup = fmt.Sprintf("Call `outreach_history` with contact_id=%q to see the record and its earlier iterations.", contactID)
	}

	text := fmt.Sprintf(
		"I want to review record %s.\n\n"+
			"%s\n\n"+
			"Then ask me, one field at a time, whether the value is correct. Name issues with the field they concern "+
			"(for example 'persona incorrect' or 'signal is outdated') so they can be attributed.\n\n"+
			"When I am done, call `outreach_feedback` with record_id=%q, my overall rating and one issue per line. "+
			"Show the proposal grouped by field and explain each root cause in one sentence. "+
			"Do not change anything yourself: the proposal is for me to apply.",
		recordID, lookup, recordID,
	)

	return &mcp.GetPromptResult{
		Description: "Review of " + recordID,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.NewTextContent(text),
			},
		},
	}, nil
}
