// Package tools implements the MCP tool handlers for outreach generation.
//
// Each tool is a struct holding its dependencies, injected through its
// constructor. Definition() returns the mcp.Tool schema and Handle()
// processes one call. User mistakes come back as tool errors, never as
// Go errors, so the host can show them and retry.
package tools

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Tegath/kaleads/internal/app"
	"github.com/Tegath/kaleads/internal/cascade"
	"github.com/Tegath/kaleads/internal/domain"
	"github.com/mark3labs/mcp-go/mcp"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// listArg reads a list argument. Hosts send either a JSON array of
// strings or one string with one item per line.
func listArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	switch v := req.GetArguments()[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	case string:
		out = strings.Split(v, "\n")
	}

	items := out[:0]
	for _, s := range out {
		s = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(s), "-*•"))
		if s != "" {
			items = append(items, s)
		}
	}
	return items
}

// companyArg reads the target company descriptor shared by several tools.
func companyArg(req mcp.CallToolRequest) domain.CompanyDescriptor {
	return domain.CompanyDescriptor{
		Name:     strings.TrimSpace(req.GetString("company", "")),
		Website:  strings.TrimSpace(req.GetString("website", "")),
		Industry: strings.TrimSpace(req.GetString("industry", "")),
		Contact:  strings.TrimSpace(req.GetString("contact_name", "")),
	}
}

// companyOptions are the schema options of companyArg.
func companyOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("company",
			mcp.Required(),
			mcp.Description("Target company name (e.g. 'Aircall')"),
		),
		mcp.WithString("website",
			mcp.Description("Target company website or domain (e.g. 'aircall.io'). Enables site inspection."),
		),
		mcp.WithString("industry",
			mcp.Description("Target industry, if already known"),
		),
		mcp.WithString("contact_name",
			mcp.Description("Name of the person the email is for"),
		),
	}
}

// errorResult turns a failed operation into a tool error.
func errorResult(action string, err error) *mcp.CallToolResult {
	var cfgErr *cascade.ConfigError
	switch {
	case errors.As(err, &cfgErr):
		return mcp.NewToolResultError(fmt.Sprintf("configuration error: %v", cfgErr))
	case app.IsUserError(err):
		return mcp.NewToolResultError(err.Error())
	default:
		return mcp.NewToolResultError(fmt.Sprintf("failed to %s: %v", action, err))
	}
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// formatField renders one resolved field with its attempt trace.
func formatField(sb *strings.Builder, f domain.ResolvedField) {
	fmt.Fprintf(sb, "## %s\n\n", f.Field)
	fmt.Fprintf(sb, "- **Value**: %s\n", f.Value)
	fmt.Fprintf(sb, "- **Confidence**: %d/5\n", f.Confidence)
	fmt.Fprintf(sb, "- **Source**: %s (level %d)\n", f.Source, f.FallbackLevel)
	if f.Reasoning != "" {
		fmt.Fprintf(sb, "- **Reasoning**: %s\n", f.Reasoning)
	}
	if len(f.Attempts) > 0 {
		sb.WriteString("\n| # | Strategy | Source | Outcome | Detail |\n|---|---|---|---|---|\n")
		for i, a := range f.Attempts {
			fmt.Fprintf(sb, "| %d | %s | %s | %s | %s |\n", i+1, cell(a.Strategy), a.Source, a.Outcome, cell(a.Detail))
		}
	}
}

// formatRecord renders a generation record as a markdown summary.
func formatRecord(rec *domain.EmailGenerationRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Record %s\n\n", rec.ID)
	fmt.Fprintf(&sb, "- **Contact**: %s\n", rec.ContactID)
	fmt.Fprintf(&sb, "- **Client**: %s\n", rec.ClientID)
	fmt.Fprintf(&sb, "- **Company**: %s\n", rec.Company.Name)
	fmt.Fprintf(&sb, "- **Quality**: %d/100\n", rec.QualityScore)
	fmt.Fprintf(&sb, "- **Generated in**: %s\n\n", rec.GenerationTime.Round(time.Millisecond))

	sb.WriteString("| Field | Value | Confidence | Source | Level |\n|---|---|---|---|---|\n")
	var degraded []string
	for _, id := range domain.FieldOrder {
		f, ok := rec.Fields[id]
		if !ok {
			continue
		}
		fmt.Fprintf(&sb, "| %s | %s | %d/5 | %s | L%d |\n", id, cell(f.Value), f.Confidence, f.Source, f.FallbackLevel)
		if f.Degraded() {
			degraded = append(degraded, string(id))
		}
	}
	if len(degraded) > 0 {
		fmt.Fprintf(&sb, "\nDegraded fields (review before sending): %s\n", strings.Join(degraded, ", "))
	}
	return sb.String()
}
