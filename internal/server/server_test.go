package server

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/Tegath/kaleads/internal/app"
	"github.com/Tegath/kaleads/internal/clientctx"
	"github.com/Tegath/kaleads/internal/config"
	"github.com/Tegath/kaleads/internal/ledger"
	"github.com/Tegath/kaleads/internal/resolvers"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	a, cleanup, err := app.NewWith(context.Background(), config.Default(), nil, app.Overrides{
		Services: &resolvers.Services{},
		Clients:  clientctx.NewMemory(),
		Ledger:   ledger.NewMemory(),
	})
	if err != nil {
		t.Fatalf("failed to create test app: %v", err)
	}
	t.Cleanup(cleanup)
	return a
}

func listMethod(t *testing.T, a *app.App, method string) string {
	t.Helper()
	s := New(a)
	msg := []byte(`{"jsonrpc":"2.0","id":1,"method":"` + method + `"}`)
	resp := s.HandleMessage(context.Background(), msg)
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshaling response: %v", err)
	}
	return string(data)
}

func TestNew_RegistersTools(t *testing.T) {
	got := listMethod(t, newTestApp(t), "tools/list")
	for _, name := range []string{
		"outreach_generate",
		"outreach_resolve_field",
		"outreach_feedback",
		"outreach_history",
		"outreach_compare",
		"outreach_contacts",
	} {
		if !strings.Contains(got, `"`+name+`"`) {
			t.Errorf("tool %s not registered", name)
		}
	}
}

func TestNew_RegistersPromptsAndResources(t *testing.T) {
	a := newTestApp(t)
	prompts := listMethod(t, a, "prompts/list")
	for _, name := range []string{"outreach-start", "outreach-review", "outreach-status"} {
		if !strings.Contains(prompts, `"`+name+`"`) {
			t.Errorf("prompt %s not registered", name)
		}
	}
	res := listMethod(t, a, "resources/list")
	for _, uri := range []string{"kaleads://resolvers", "kaleads://contacts"} {
		if !strings.Contains(res, uri) {
			t.Errorf("resource %s not registered", uri)
		}
	}
}

func TestServerInstructions(t *testing.T) {
	got := serverInstructions()
	for _, want := range []string{"outreach_generate", "outreach_feedback", "level 3"} {
		if !strings.Contains(got, want) {
			t.Errorf("instructions missing %q", want)
		}
	}
}
