package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tegath/kaleads/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
)

// FieldResolver resolves a single field.
type FieldResolver interface {
	ResolveFieldFor(ctx context.Context, field domain.FieldID, clientID string, company domain.CompanyDescriptor) (domain.ResolvedField, error)
}

// ResolveFieldTool handles the outreach_resolve_field MCP tool.
type ResolveFieldTool struct {
	resolver FieldResolver
}

// NewResolveFieldTool creates a ResolveFieldTool.
func NewResolveFieldTool(r FieldResolver) *ResolveFieldTool {
	return &ResolveFieldTool{resolver: r}
}

// Definition returns the MCP tool definition for outreach_resolve_field.
func (t *ResolveFieldTool) Definition() mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(
			"Resolve one field for a target company and show the full fallback trace: which tiers ran, " +
				"how each ended and why the final value was accepted. Nothing is recorded. " +
				"Use it to debug a resolver after feedback.",
		),
		mcp.WithString("field",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Field to resolve: %s", fieldList())),
		),
		mcp.WithString("client_id",
			mcp.Description("Client context to resolve with (optional; some tiers need it)"),
		),
	}
	return mcp.NewTool("outreach_resolve_field", append(opts, companyOptions()...)...)
}

// Handle processes the outreach_resolve_field tool call.
func (t *ResolveFieldTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	field := domain.FieldID(strings.TrimSpace(req.GetString("field", "")))
	clientID := strings.TrimSpace(req.GetString("client_id", ""))
	company := companyArg(req)

	if err := domain.ValidateField(field); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if company.Name == "" {
		return mcp.NewToolResultError("'company' is required"), nil
	}

	f, err := t.resolver.ResolveFieldFor(ctx, field, clientID, company)
	if err != nil {
		return errorResult("resolve field", err), nil
	}

	var sb strings.Builder
	formatField(&sb, f)
	return mcp.NewToolResultText(sb.String()), nil
}

func fieldList() string {
	parts := make([]string, len(domain.FieldOrder))
	for i, f := range domain.FieldOrder {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}
