package clientctx

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Tegath/kaleads/internal/domain"
)

const acmeYAML = `name: Acme
competitors: [Globex, Initech]
value_props:
  - call analytics
case_studies:
  - company: Front
    industry: SaaS
    result: +32% connect rate
target_industries: [SaaS]
pain_categories: [low connect rates]
`

func writeClient(t *testing.T, dir, id, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, id+".yaml"), []byte(body), 0o644); err != nil {
		t.Fatalf("write client: %v", err)
	}
}

// --- Dir ---

func TestDir_GetClientContext(t *testing.T) {
	dir := t.TempDir()
	writeClient(t, dir, "acme", acmeYAML)

	p, err := NewDir(dir)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}

	c, err := p.GetClientContext(context.Background(), "acme")
	if err != nil {
		t.Fatalf("GetClientContext: %v", err)
	}
	if c.ID != "acme" || c.Name != "Acme" {
		t.Errorf("client = %s/%s, want acme/Acme", c.ID, c.Name)
	}
	if len(c.Competitors) != 2 || c.Competitors[1] != "Initech" {
		t.Errorf("Competitors = %v", c.Competitors)
	}
	if len(c.CaseStudies) != 1 || c.CaseStudies[0].Result != "+32% connect rate" {
		t.Errorf("CaseStudies = %+v", c.CaseStudies)
	}
}

func TestDir_NotFound(t *testing.T) {
	p, err := NewDir(t.TempDir())
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}
	for _, id := range []string{"missing", "../etc/passwd", ""} {
		if _, err := p.GetClientContext(context.Background(), id); !errors.Is(err, ErrNotFound) {
			t.Errorf("GetClientContext(%q) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestDir_InvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeClient(t, dir, "noname", "competitors: [x]\n")
	writeClient(t, dir, "mismatch", "id: other\nname: Other\n")
	writeClient(t, dir, "broken", "name: [unterminated\n")

	p, _ := NewDir(dir)
	for _, id := range []string{"noname", "mismatch", "broken"} {
		_, err := p.GetClientContext(context.Background(), id)
		if err == nil {
			t.Errorf("GetClientContext(%q) expected error", id)
		}
		if errors.Is(err, ErrNotFound) {
			t.Errorf("GetClientContext(%q) should not be ErrNotFound", id)
		}
	}
}

func TestDir_List(t *testing.T) {
	dir := t.TempDir()
	writeClient(t, dir, "zeta", "name: Z\n")
	writeClient(t, dir, "acme", acmeYAML)
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, _ := NewDir(dir)
	ids, err := p.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 || ids[0] != "acme" || ids[1] != "zeta" {
		t.Errorf("List() = %v, want [acme zeta]", ids)
	}
}

func TestNewDir_Errors(t *testing.T) {
	if _, err := NewDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("NewDir(missing) expected error")
	}
	f := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewDir(f); err == nil {
		t.Error("NewDir(file) expected error")
	}
}

// --- Memory ---

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory(domain.ClientContext{ID: "acme", Name: "Acme", Competitors: []string{"Globex"}})

	c, err := m.GetClientContext(context.Background(), "acme")
	if err != nil {
		t.Fatalf("GetClientContext: %v", err)
	}
	c.Competitors[0] = "mutated"

	again, _ := m.GetClientContext(context.Background(), "acme")
	if again.Competitors[0] != "Globex" {
		t.Errorf("stored client was mutated: %v", again.Competitors)
	}
}

func TestMemory_PutAndNotFound(t *testing.T) {
	m := NewMemory()
	if _, err := m.GetClientContext(context.Background(), "acme"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := m.Put(domain.ClientContext{ID: "acme"}); err == nil {
		t.Error("Put without name expected error")
	}
	if err := m.Put(domain.ClientContext{ID: "acme", Name: "Acme"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := m.GetClientContext(context.Background(), "acme"); err != nil {
		t.Errorf("GetClientContext after Put: %v", err)
	}
}
