// Package server wires the MCP surface: tools, prompts and resources
// over the components built by package app.
//
// No business logic lives here, only registration.
package server

import (
	"github.com/Tegath/kaleads/internal/app"
	"github.com/Tegath/kaleads/internal/mcpprompts"
	"github.com/Tegath/kaleads/internal/resources"
	"github.com/Tegath/kaleads/internal/tools"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// New creates the MCP server with every tool, prompt and resource
// registered against a.
func New(a *app.App) *server.MCPServer {
	s := server.NewMCPServer(
		"kaleads",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	// --- Register tools ---

	generateTool := tools.NewGenerateTool(a.Orchestrator)
	s.AddTool(generateTool.Definition(), generateTool.Handle)

	resolveTool := tools.NewResolveFieldTool(a.Orchestrator)
	s.AddTool(resolveTool.Definition(), resolveTool.Handle)

	feedbackTool := tools.NewFeedbackTool(a)
	s.AddTool(feedbackTool.Definition(), feedbackTool.Handle)

	historyTool := tools.NewHistoryTool(a)
	s.AddTool(historyTool.Definition(), historyTool.Handle)

	compareTool := tools.NewCompareTool(a)
	s.AddTool(compareTool.Definition(), compareTool.Handle)

	contactsTool := tools.NewContactsTool(a.Ledger)
	s.AddTool(contactsTool.Definition(), contactsTool.Handle)

	// --- Register prompts ---

	startPrompt := mcpprompts.NewStartPrompt()
	s.AddPrompt(startPrompt.Definition(), startPrompt.Handle)

	reviewPrompt := mcpprompts.NewReviewPrompt()
	s.AddPrompt(reviewPrompt.Definition(), reviewPrompt.Handle)

	statusPrompt := mcpprompts.NewStatusPrompt()
	s.AddPrompt(statusPrompt.Definition(), statusPrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(a.Orchestrator.Resolvers(), a.Ledger)
	s.AddResource(resourceHandler.ResolversResource(), resourceHandler.HandleResolvers)
	s.AddResource(resourceHandler.ContactsResource(), resourceHandler.HandleContacts)

	return s
}

// serverInstructions returns the system instructions that tell the AI
// how to use kaleads effectively.
func serverInstructions() string {
	return `You have access to kaleads, an outreach research MCP server.

## WHAT IT DOES

kaleads fills the personalization fields of a cold email for one target
company, on behalf of one client: industry, competitor, persona,
pain_point, signal, tech_stack and proof. Every field is resolved by a
fallback cascade:

- level 0: direct evidence (web search, the company's own pages, the client's case studies)
- level 1: indirect evidence
- level 2: model inference without direct evidence
- level 3: a generic value that is always safe to send

Each value comes with a confidence from 5 (level 0) down to 1 (level 3)
and the trace of every tier that was tried.

## HOW TO USE IT

1. ` + "`outreach_generate`" + ` with contact_id, client_id and company.
   Present the fields as a table and flag every field at level 2 or 3.
   NEVER present a level 2 or 3 value as a verified fact in the email.
2. Ask the user to review the record. Issues should name the field they
   concern ("persona incorrect", "signal is outdated").
3. ` + "`outreach_feedback`" + ` with the record id, the rating and the issues.
   Show the proposal per field. The proposal is advisory: do not claim
   anything was changed.
4. After the operator adjusts the configuration, generate again and use
   ` + "`outreach_history`" + ` to show what improved.

Use ` + "`outreach_resolve_field`" + ` to debug a single field: it shows the
full trace and records nothing. ` + "`outreach_contacts`" + ` lists recent work.

## RULES

- A record without feedback is considered validated.
- Unknown clients are configuration errors: ask the user for the right
  client_id instead of guessing.
- Quality is a 0-100 score; below 60 the email should not be sent
  without manual edits.`
}
