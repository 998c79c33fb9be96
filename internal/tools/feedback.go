package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Tegath/kaleads/internal/app"
	"github.com/Tegath/kaleads/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
)

// Reviewer records feedback on a stored record and returns the proposal.
type Reviewer interface {
	Review(ctx context.Context, recordID string, entry *domain.FeedbackEntry) (*app.Review, error)
}

// FeedbackTool handles the outreach_feedback MCP tool.
type FeedbackTool struct {
	reviewer Reviewer
}

// NewFeedbackTool creates a FeedbackTool.
func NewFeedbackTool(r Reviewer) *FeedbackTool {
	return &FeedbackTool{reviewer: r}
}

// Definition returns the MCP tool definition for outreach_feedback.
func (t *FeedbackTool) Definition() mcp.Tool {
	return mcp.NewTool("outreach_feedback",
		mcp.WithDescription(
			"Record a human review of a generated record and get an improvement proposal per blamed resolver: "+
				"root cause read from the fallback trace, concrete suggestions and prompt section additions. "+
				"The proposal is advisory; nothing is changed automatically.",
		),
		mcp.WithString("record_id",
			mcp.Required(),
			mcp.Description("Id of the record returned by outreach_generate"),
		),
		mcp.WithString("rating",
			mcp.Required(),
			mcp.Description("Overall verdict: perfect, good, average or bad (or 1-4)"),
		),
		mcp.WithString("issues",
			mcp.Description("What is wrong, one issue per line (e.g. 'persona incorrect')"),
		),
		mcp.WithString("improvements",
			mcp.Description("Operator suggestions, one per line (e.g. 'target the head of support')"),
		),
	)
}

// Handle processes the outreach_feedback tool call.
func (t *FeedbackTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recordID := strings.TrimSpace(req.GetString("record_id", ""))
	if recordID == "" {
		return mcp.NewToolResultError("'record_id' is required"), nil
	}
	rating, err := domain.ParseRating(req.GetString("rating", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	entry, err := domain.NewFeedbackEntry(rating, listArg(req, "issues"), listArg(req, "improvements"))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	review, err := t.reviewer.Review(ctx, recordID, entry)
	if err != nil {
		return errorResult("record feedback", err), nil
	}
	return mcp.NewToolResultText(formatReview(review)), nil
}

func formatReview(r *app.Review) string {
	var sb strings.Builder
	p := r.Proposal
	fmt.Fprintf(&sb, "# Feedback recorded for %s (entry %d)\n\n", p.RecordID, r.Entry.Seq)

	if p.Empty() {
		sb.WriteString("Nothing to improve: the record is validated.\n")
		return sb.String()
	}

	for _, field := range proposalFields(p) {
		rp := p.Resolvers[field]
		fmt.Fprintf(&sb, "## %s\n\n", field)
		fmt.Fprintf(&sb, "**Root cause**: %s\n\n", rp.RootCause)
		if len(rp.Suggestions) > 0 {
			sb.WriteString("**Suggestions**:\n")
			for i, s := range rp.Suggestions {
				fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
			}
			sb.WriteString("\n")
		}
		if len(rp.PromptDeltas) > 0 {
			sb.WriteString("**Prompt additions**:\n")
			sections := make([]string, 0, len(rp.PromptDeltas))
			for s := range rp.PromptDeltas {
				sections = append(sections, s)
			}
			sort.Strings(sections)
			for _, s := range sections {
				fmt.Fprintf(&sb, "- _%s_: %s\n", s, rp.PromptDeltas[s])
			}
			sb.WriteString("\n")
		}
	}

	if len(p.Attributions) > 0 {
		sb.WriteString("## Attribution\n\n| Issue | Field | Score |\n|---|---|---|\n")
		for _, a := range p.Attributions {
			fmt.Fprintf(&sb, "| %s | %s | %.2f |\n", cell(a.Issue), a.Field, a.Score)
		}
		sb.WriteString("\n")
	}
	if len(p.Unattributed) > 0 {
		sb.WriteString("## Not attributed to any field\n\n")
		for _, u := range p.Unattributed {
			fmt.Fprintf(&sb, "- %s\n", u)
		}
	}
	return sb.String()
}

func proposalFields(p *domain.ImprovementProposal) []domain.FieldID {
	rank := map[domain.FieldID]int{}
	for i, f := range domain.FieldOrder {
		rank[f] = i
	}
	out := make([]domain.FieldID, 0, len(p.Resolvers))
	for f := range p.Resolvers {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return rank[out[i]] < rank[out[j]] })
	return out
}
