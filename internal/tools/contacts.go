package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tegath/kaleads/internal/ledger"
	"github.com/mark3labs/mcp-go/mcp"
)

// ContactLister lists recently active contacts.
type ContactLister interface {
	RecentContacts(ctx context.Context, limit int) ([]ledger.ContactSummary, error)
}

// ContactsTool handles the outreach_contacts MCP tool.
type ContactsTool struct {
	lister ContactLister
}

// NewContactsTool creates a ContactsTool.
func NewContactsTool(l ContactLister) *ContactsTool {
	return &ContactsTool{lister: l}
}

// Definition returns the MCP tool definition for outreach_contacts.
func (t *ContactsTool) Definition() mcp.Tool {
	return mcp.NewTool("outreach_contacts",
		mcp.WithDescription("List the most recently active contacts with their iteration count and latest quality score."),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of contacts (default: 20)"),
		),
	)
}

// Handle processes the outreach_contacts tool call.
func (t *ContactsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := intArg(req, "limit", 20)
	if limit <= 0 {
		return mcp.NewToolResultError("'limit' must be positive"), nil
	}

	contacts, err := t.lister.RecentContacts(ctx, limit)
	if err != nil {
		return errorResult("list contacts", err), nil
	}
	if len(contacts) == 0 {
		return mcp.NewToolResultText("No contacts yet. Use outreach_generate to create the first record."), nil
	}

	var sb strings.Builder
	sb.WriteString("| Contact | Iterations | Entries | Last quality | Last record | Updated |\n|---|---|---|---|---|---|\n")
	for _, c := range contacts {
		fmt.Fprintf(&sb, "| %s | %d | %d | %d | %s | %s |\n",
			cell(c.ContactID), c.Iterations, c.Entries, c.LastScore, c.LastRecordID, c.UpdatedAt)
	}
	return mcp.NewToolResultText(sb.String()), nil
}
