package tools

import (
	"context"
	"errors"
	"strings"

	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/orchestrator"
	"github.com/mark3labs/mcp-go/mcp"
)

// Generator produces and records a complete set of fields.
type Generator interface {
	GenerateFor(ctx context.Context, contactID, clientID string, company domain.CompanyDescriptor) (*domain.EmailGenerationRecord, error)
}

// GenerateTool handles the outreach_generate MCP tool.
type GenerateTool struct {
	gen Generator
}

// NewGenerateTool creates a GenerateTool.
func NewGenerateTool(gen Generator) *GenerateTool {
	return &GenerateTool{gen: gen}
}

// Definition returns the MCP tool definition for outreach_generate.
func (t *GenerateTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Resolve every personalization field of a cold email (industry, competitor, persona, pain point, " +
				"signal, tech stack, proof) for one target company, on behalf of one client. " +
				"Each field falls back from web evidence to inference to a generic value and reports its confidence. " +
				"The record is appended to the contact's session; pass its id to outreach_feedback after review.",
		),
		mcp.WithString("contact_id",
			mcp.Required(),
			mcp.Description("Stable identifier of the contact (e.g. an email address or CRM id)"),
		),
		mcp.WithString("client_id",
			mcp.Required(),
			mcp.Description("Identifier of the client context to write on behalf of (file name without .yaml)"),
		),
	}
	return mcp.NewTool("outreach_generate", append(opts, companyOptions()...)...)
}

// Handle processes the outreach_generate tool call.
func (t *GenerateTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contactID := strings.TrimSpace(req.GetString("contact_id", ""))
	clientID := strings.TrimSpace(req.GetString("client_id", ""))
	company := companyArg(req)

	if contactID == "" {
		return mcp.NewToolResultError("'contact_id' is required"), nil
	}
	if clientID == "" {
		return mcp.NewToolResultError("'client_id' is required"), nil
	}
	if company.Name == "" {
		return mcp.NewToolResultError("'company' is required"), nil
	}

	rec, err := t.gen.GenerateFor(ctx, contactID, clientID, company)
	if errors.Is(err, orchestrator.ErrLedger) && rec != nil {
		return mcp.NewToolResultText(formatRecord(rec) +
			"\nWARNING: the record could not be saved to the ledger; feedback on it cannot be recorded.\n"), nil
	}
	if err != nil {
		return errorResult("generate record", err), nil
	}
	return mcp.NewToolResultText(formatRecord(rec)), nil
}
