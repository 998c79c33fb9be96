package resources

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/Tegath/kaleads/internal/cascade"
	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/ledger"
	"github.com/Tegath/kaleads/internal/resolvers"
	"github.com/mark3labs/mcp-go/mcp"
)

func readReq(uri string) mcp.ReadResourceRequest {
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	return req
}

func contentText(t *testing.T, contents []mcp.ResourceContents) mcp.TextResourceContents {
	t.Helper()
	if len(contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("content = %T, want mcp.TextResourceContents", contents[0])
	}
	return tc
}

func defaultResolvers(t *testing.T) []*resolvers.Resolver {
	t.Helper()
	rs, err := resolvers.Default(resolvers.Services{}, nil, resolvers.DefaultTimeouts(), nil)
	if err != nil {
		t.Fatalf("resolvers.Default() error: %v", err)
	}
	return rs
}

type failingLister struct{}

func (failingLister) RecentContacts(context.Context, int) ([]ledger.ContactSummary, error) {
	return nil, errors.New("disk on fire")
}

func TestHandleResolvers(t *testing.T) {
	h := NewHandler(defaultResolvers(t), ledger.NewMemory())

	contents, err := h.HandleResolvers(context.Background(), readReq(ResolversURI))
	if err != nil {
		t.Fatalf("HandleResolvers() error: %v", err)
	}
	tc := contentText(t, contents)
	if tc.MIMEType != "application/json" {
		t.Errorf("MIMEType = %s, want application/json", tc.MIMEType)
	}

	var views []ResolverView
	if err := json.Unmarshal([]byte(tc.Text), &views); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(views) != len(domain.FieldOrder) {
		t.Fatalf("resolvers = %d, want %d", len(views), len(domain.FieldOrder))
	}
	for _, v := range views {
		if len(v.Tiers) == 0 {
			t.Errorf("%s has no tiers", v.Field)
			continue
		}
		last := v.Tiers[len(v.Tiers)-1]
		if last.Level != domain.MaxFallbackLevel || last.Source != domain.SourceGeneric {
			t.Errorf("%s: last tier = %+v, want generic at level %d", v.Field, last, domain.MaxFallbackLevel)
		}
		for _, tier := range v.Tiers {
			lo, hi := domain.ConfidenceBand(tier.Level)
			if tier.BaseConfidence < lo || tier.BaseConfidence > hi {
				t.Errorf("%s: tier %s confidence %d outside band [%d, %d]", v.Field, tier.Strategy, tier.BaseConfidence, lo, hi)
			}
		}
		if len(v.PromptSections) == 0 {
			t.Errorf("%s has no prompt sections", v.Field)
		}
	}
}

func TestCatalogue_TierLevelsMatchController(t *testing.T) {
	rs := defaultResolvers(t)
	views := Catalogue(rs)
	for i, r := range rs {
		if len(views[i].Tiers) != len(r.Specs) {
			t.Fatalf("%s: tiers = %d, want %d", r.Field, len(views[i].Tiers), len(r.Specs))
		}
		for j, tier := range views[i].Tiers {
			if want := cascade.LevelOf(j, len(r.Specs)); tier.Level != want {
				t.Errorf("%s tier %d: level = %d, want %d", r.Field, j, tier.Level, want)
			}
		}
	}
}

func TestHandleContacts(t *testing.T) {
	mem := ledger.NewMemory()
	rec := &domain.EmailGenerationRecord{ID: "rec-1", ContactID: "jane", Fields: map[domain.FieldID]domain.ResolvedField{}}
	if _, err := mem.Append(context.Background(), "jane", rec, nil); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	h := NewHandler(nil, mem)

	contents, err := h.HandleContacts(context.Background(), readReq(ContactsURI))
	if err != nil {
		t.Fatalf("HandleContacts() error: %v", err)
	}
	if !strings.Contains(contentText(t, contents).Text, `"contact_id": "jane"`) {
		t.Errorf("unexpected contacts: %s", contentText(t, contents).Text)
	}
}

func TestHandleContacts_Error(t *testing.T) {
	h := NewHandler(nil, failingLister{})
	contents, err := h.HandleContacts(context.Background(), readReq(ContactsURI))
	if err != nil {
		t.Fatalf("HandleContacts() error: %v", err)
	}
	tc := contentText(t, contents)
	if tc.MIMEType != "text/plain" || !strings.Contains(tc.Text, "disk on fire") {
		t.Errorf("want plain-text error resource, got %+v", tc)
	}
}

func TestResourceDefinitions(t *testing.T) {
	h := NewHandler(nil, nil)
	if h.ResolversResource().URI != ResolversURI {
		t.Errorf("URI = %s, want %s", h.ResolversResource().URI, ResolversURI)
	}
	if h.ContactsResource().URI != ContactsURI {
		t.Errorf("URI = %s, want %s", h.ContactsResource().URI, ContactsURI)
	}
}
