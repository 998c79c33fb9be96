package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/Tegath/kaleads/internal/app"
	"github.com/Tegath/kaleads/internal/clientctx"
	"github.com/Tegath/kaleads/internal/config"
	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/ledger"
	"github.com/Tegath/kaleads/internal/resolvers"
	"github.com/mark3labs/mcp-go/mcp"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

// newTestApp builds an App with no external services, an in-memory
// ledger and one client, "acme".
func newTestApp(t *testing.T) *app.App {
	t.Helper()
	acme := domain.ClientContext{
		ID:          "acme",
		Name:        "Acme Dialer",
		Competitors: []string{"Dialpad"},
		CaseStudies: []domain.CaseStudy{{Company: "Front", Industry: "SaaS", Result: "+32% connect rate"}},
	}
	a, cleanup, err := app.NewWith(context.Background(), config.Default(), nil, app.Overrides{
		Services: &resolvers.Services{},
		Clients:  clientctx.NewMemory(acme),
		Ledger:   ledger.NewMemory(),
	})
	if err != nil {
		t.Fatalf("failed to create test app: %v", err)
	}
	t.Cleanup(cleanup)
	return a
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func generate(t *testing.T, a *app.App, contact string) *domain.EmailGenerationRecord {
	t.Helper()
	rec, err := a.Orchestrator.GenerateFor(context.Background(), contact, "acme",
		domain.CompanyDescriptor{Name: "Aircall", Industry: "SaaS"})
	if err != nil {
		t.Fatalf("GenerateFor() error: %v", err)
	}
	return rec
}

func hasRequired(def mcp.Tool, name string) bool {
	for _, r := range def.InputSchema.Required {
		if r == name {
			return true
		}
	}
	return false
}

// ─── Definitions ─────────────────────────────────────────────────────────────

func TestDefinitions(t *testing.T) {
	a := newTestApp(t)
	tests := []struct {
		def      mcp.Tool
		name     string
		required []string
	}{
		{NewGenerateTool(a.Orchestrator).Definition(), "outreach_generate", []string{"contact_id", "client_id", "company"}},
		{NewResolveFieldTool(a.Orchestrator).Definition(), "outreach_resolve_field", []string{"field", "company"}},
		{NewFeedbackTool(a).Definition(), "outreach_feedback", []string{"record_id", "rating"}},
		{NewHistoryTool(a).Definition(), "outreach_history", []string{"contact_id"}},
		{NewCompareTool(a).Definition(), "outreach_compare", []string{"before_id", "after_id"}},
		{NewContactsTool(a.Ledger).Definition(), "outreach_contacts", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.def.Name != tt.name {
				t.Errorf("tool name = %q, want %q", tt.def.Name, tt.name)
			}
			for _, r := range tt.required {
				if _, ok := tt.def.InputSchema.Properties[r]; !ok {
					t.Errorf("missing %q parameter", r)
				}
				if !hasRequired(tt.def, r) {
					t.Errorf("%q should be required", r)
				}
			}
		})
	}
}

// ─── outreach_generate ───────────────────────────────────────────────────────

func TestGenerateTool_Handle(t *testing.T) {
	a := newTestApp(t)
	tool := NewGenerateTool(a.Orchestrator)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"contact_id": "jane@aircall.io",
		"client_id":  "acme",
		"company":    "Aircall",
		"industry":   "SaaS",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(result))
	}

	text := resultText(result)
	for _, want := range []string{"# Record", "**Quality**", "| persona |", "| proof |"} {
		if !strings.Contains(text, want) {
			t.Errorf("result missing %q:\n%s", want, text)
		}
	}

	s, _ := a.Ledger.ReadHistory(context.Background(), "jane@aircall.io")
	if len(s.Entries) != 1 {
		t.Errorf("entries = %d, want 1", len(s.Entries))
	}
}

func TestGenerateTool_Validation(t *testing.T) {
	a := newTestApp(t)
	tool := NewGenerateTool(a.Orchestrator)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"no contact", map[string]interface{}{"client_id": "acme", "company": "Aircall"}, "contact_id"},
		{"no client", map[string]interface{}{"contact_id": "j", "company": "Aircall"}, "client_id"},
		{"no company", map[string]interface{}{"contact_id": "j", "client_id": "acme"}, "company"},
		{"unknown client", map[string]interface{}{"contact_id": "j", "client_id": "initech", "company": "Aircall"}, "configuration error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tool.Handle(context.Background(), makeReq(tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected tool error")
			}
			if !strings.Contains(resultText(result), tt.want) {
				t.Errorf("error %q should mention %q", resultText(result), tt.want)
			}
		})
	}
}

// ─── outreach_resolve_field ──────────────────────────────────────────────────

func TestResolveFieldTool_Handle(t *testing.T) {
	a := newTestApp(t)
	tool := NewResolveFieldTool(a.Orchestrator)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"field":     "persona",
		"company":   "Aircall",
		"client_id": "acme",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(result))
	}
	text := resultText(result)
	if !strings.Contains(text, "## persona") || !strings.Contains(text, "| Strategy |") {
		t.Errorf("result should show the field and its trace:\n%s", text)
	}

	contacts, _ := a.Ledger.RecentContacts(context.Background(), 10)
	if len(contacts) != 0 {
		t.Error("resolving a single field must not record anything")
	}
}

func TestResolveFieldTool_InvalidField(t *testing.T) {
	a := newTestApp(t)
	result, _ := NewResolveFieldTool(a.Orchestrator).Handle(context.Background(), makeReq(map[string]interface{}{
		"field":   "tone",
		"company": "Aircall",
	}))
	if !result.IsError {
		t.Error("expected tool error for unknown field")
	}
}

// ─── outreach_feedback ───────────────────────────────────────────────────────

func TestFeedbackTool_Handle(t *testing.T) {
	a := newTestApp(t)
	rec := generate(t, a, "jane")
	tool := NewFeedbackTool(a)

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"record_id":    rec.ID,
		"rating":       "bad",
		"issues":       "- persona incorrect\n- tone is too pushy",
		"improvements": "target the head of support",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(result))
	}

	text := resultText(result)
	for _, want := range []string{"entry 2", "## persona", "**Root cause**", "operator: target the head of support", "tone is too pushy"} {
		if !strings.Contains(text, want) {
			t.Errorf("result missing %q:\n%s", want, text)
		}
	}
}

func TestFeedbackTool_ArrayIssues(t *testing.T) {
	a := newTestApp(t)
	rec := generate(t, a, "jane")

	result, _ := NewFeedbackTool(a).Handle(context.Background(), makeReq(map[string]interface{}{
		"record_id": rec.ID,
		"rating":    "4",
		"issues":    []interface{}{"competitor is wrong", ""},
	}))
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(result))
	}
	if !strings.Contains(resultText(result), "## competitor") {
		t.Errorf("competitor should be blamed:\n%s", resultText(result))
	}
}

func TestFeedbackTool_PerfectIsValidated(t *testing.T) {
	a := newTestApp(t)
	rec := generate(t, a, "jane")

	result, _ := NewFeedbackTool(a).Handle(context.Background(), makeReq(map[string]interface{}{
		"record_id": rec.ID,
		"rating":    "perfect",
	}))
	if !strings.Contains(resultText(result), "Nothing to improve") {
		t.Errorf("perfect rating should yield an empty proposal:\n%s", resultText(result))
	}
}

func TestFeedbackTool_Errors(t *testing.T) {
	a := newTestApp(t)
	rec := generate(t, a, "jane")
	tool := NewFeedbackTool(a)

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"no record", map[string]interface{}{"rating": "bad"}, "record_id"},
		{"bad rating", map[string]interface{}{"record_id": rec.ID, "rating": "meh"}, "invalid rating"},
		{"unknown record", map[string]interface{}{"record_id": "nope", "rating": "bad"}, "not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tool.Handle(context.Background(), makeReq(tt.args))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.IsError || !strings.Contains(resultText(result), tt.want) {
				t.Errorf("want tool error mentioning %q, got %q", tt.want, resultText(result))
			}
		})
	}
}

// ─── outreach_history / outreach_compare ─────────────────────────────────────

func TestHistoryTool_Handle(t *testing.T) {
	a := newTestApp(t)
	first := generate(t, a, "jane")
	fb, _ := domain.NewFeedbackEntry(domain.RatingAverage, []string{"signal is outdated"}, nil)
	if _, err := a.Review(context.Background(), first.ID, fb); err != nil {
		t.Fatalf("Review() error: %v", err)
	}
	generate(t, a, "jane")

	result, err := NewHistoryTool(a).Handle(context.Background(), makeReq(map[string]interface{}{
		"contact_id": "jane",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	text := resultText(result)
	for _, want := range []string{"# History of jane", "| 1 | " + first.ID, "average", "signal is outdated", "validated", "quality"} {
		if !strings.Contains(text, want) {
			t.Errorf("result missing %q:\n%s", want, text)
		}
	}
}

func TestHistoryTool_UnknownContact(t *testing.T) {
	a := newTestApp(t)
	result, _ := NewHistoryTool(a).Handle(context.Background(), makeReq(map[string]interface{}{
		"contact_id": "nobody",
	}))
	if result.IsError || !strings.Contains(resultText(result), "No history") {
		t.Errorf("unknown contact should have an empty history, got %q", resultText(result))
	}
}

func TestCompareTool_Handle(t *testing.T) {
	a := newTestApp(t)
	r1 := generate(t, a, "jane")
	r2 := generate(t, a, "jane")
	tool := NewCompareTool(a)

	result, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"before_id": r1.ID,
		"after_id":  r2.ID,
	}))
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(result))
	}
	if !strings.Contains(resultText(result), "| persona |") {
		t.Errorf("comparison should list fields:\n%s", resultText(result))
	}

	result, _ = tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"before_id": r1.ID,
		"after_id":  "nope",
	}))
	if !result.IsError {
		t.Error("expected tool error for unknown record")
	}
}

// ─── outreach_contacts ───────────────────────────────────────────────────────

func TestContactsTool_Handle(t *testing.T) {
	a := newTestApp(t)
	tool := NewContactsTool(a.Ledger)

	result, _ := tool.Handle(context.Background(), makeReq(map[string]interface{}{}))
	if !strings.Contains(resultText(result), "No contacts yet") {
		t.Errorf("empty ledger: got %q", resultText(result))
	}

	generate(t, a, "jane")
	generate(t, a, "bob")
	result, _ = tool.Handle(context.Background(), makeReq(map[string]interface{}{"limit": float64(5)}))
	text := resultText(result)
	if !strings.Contains(text, "| jane |") || !strings.Contains(text, "| bob |") {
		t.Errorf("both contacts should be listed:\n%s", text)
	}

	result, _ = tool.Handle(context.Background(), makeReq(map[string]interface{}{"limit": float64(0)}))
	if !result.IsError {
		t.Error("expected tool error for zero limit")
	}
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func TestListArg(t *testing.T) {
	tests := []struct {
		name string
		v    interface{}
		want []string
	}{
		{"lines", "a\n\n- b\n* c ", []string{"a", "b", "c"}},
		{"array", []interface{}{"a", 3, " b "}, []string{"a", "b"}},
		{"missing", nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]interface{}{}
			if tt.v != nil {
				args["issues"] = tt.v
			}
			got := listArg(makeReq(args), "issues")
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("listArg() = %q, want %q", got, tt.want)
			}
		})
	}
}
