package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tegath/kaleads/internal/app"
	"github.com/Tegath/kaleads/internal/ledger"
	"github.com/mark3labs/mcp-go/mcp"
)

// HistoryReader reads sessions and compares records.
type HistoryReader interface {
	History(ctx context.Context, contactID string) (*app.History, error)
	Compare(ctx context.Context, beforeID, afterID string) (ledger.Comparison, error)
}

// HistoryTool handles the outreach_history MCP tool.
type HistoryTool struct {
	reader HistoryReader
}

// NewHistoryTool creates a HistoryTool.
func NewHistoryTool(r HistoryReader) *HistoryTool {
	return &HistoryTool{reader: r}
}

// Definition returns the MCP tool definition for outreach_history.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("outreach_history",
		mcp.WithDescription(
			"Show the iteration history of one contact: every generated record with its quality score, "+
				"the rating it received, and how the last two iterations differ field by field.",
		),
		mcp.WithString("contact_id",
			mcp.Required(),
			mcp.Description("Contact identifier used with outreach_generate"),
		),
	)
}

// Handle processes the outreach_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contactID := strings.TrimSpace(req.GetString("contact_id", ""))
	if contactID == "" {
		return mcp.NewToolResultError("'contact_id' is required"), nil
	}

	h, err := t.reader.History(ctx, contactID)
	if err != nil {
		return errorResult("read history", err), nil
	}
	if len(h.Session.Entries) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No history for contact %q.", contactID)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# History of %s\n\n", contactID)
	sb.WriteString("| Iteration | Record | Quality | Rating | Issues |\n|---|---|---|---|---|\n")
	for i, e := range h.Session.Iterations() {
		rating, issues := "-", ""
		if e.Feedback != nil {
			rating = e.Feedback.Rating.String()
			issues = strings.Join(e.Feedback.Issues, "; ")
		}
		fmt.Fprintf(&sb, "| %d | %s | %d | %s | %s |\n", i+1, e.Record.ID, e.Record.QualityScore, rating, cell(issues))
	}
	if h.Terminal {
		sb.WriteString("\nThe latest record has no feedback: it is considered validated.\n")
	}
	if h.Comparison != nil {
		sb.WriteString("\n")
		formatComparison(&sb, *h.Comparison)
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// CompareTool handles the outreach_compare MCP tool.
type CompareTool struct {
	reader HistoryReader
}

// NewCompareTool creates a CompareTool.
func NewCompareTool(r HistoryReader) *CompareTool {
	return &CompareTool{reader: r}
}

// Definition returns the MCP tool definition for outreach_compare.
func (t *CompareTool) Definition() mcp.Tool {
	return mcp.NewTool("outreach_compare",
		mcp.WithDescription("Compare two generated records field by field: value, confidence and fallback level changes."),
		mcp.WithString("before_id",
			mcp.Required(),
			mcp.Description("Id of the earlier record"),
		),
		mcp.WithString("after_id",
			mcp.Required(),
			mcp.Description("Id of the later record"),
		),
	)
}

// Handle processes the outreach_compare tool call.
func (t *CompareTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	before := strings.TrimSpace(req.GetString("before_id", ""))
	after := strings.TrimSpace(req.GetString("after_id", ""))
	if before == "" || after == "" {
		return mcp.NewToolResultError("'before_id' and 'after_id' are required"), nil
	}

	c, err := t.reader.Compare(ctx, before, after)
	if err != nil {
		return errorResult("compare records", err), nil
	}
	var sb strings.Builder
	formatComparison(&sb, c)
	return mcp.NewToolResultText(sb.String()), nil
}

func formatComparison(sb *strings.Builder, c ledger.Comparison) {
	fmt.Fprintf(sb, "## %s → %s (quality %+d)\n\n", c.BeforeID, c.AfterID, c.QualityDelta)
	sb.WriteString("| Field | Before | After | Confidence | Level |\n|---|---|---|---|---|\n")
	for _, f := range c.Fields {
		fmt.Fprintf(sb, "| %s | %s | %s | %+d | %+d |\n", f.Field, cell(f.Before), cell(f.After), f.ConfidenceDelta, f.LevelDelta)
	}
	if improved := c.Improved(); len(improved) > 0 {
		fmt.Fprintf(sb, "\nImproved: %v\n", improved)
	}
	if regressed := c.Regressed(); len(regressed) > 0 {
		fmt.Fprintf(sb, "\nRegressed: %v\n", regressed)
	}
}
