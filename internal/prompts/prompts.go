// Package prompts holds the inference prompts used by resolvers.
//
// A prompt is not an opaque blob: it is split into named sections
// (background, procedure, output_format) that can be addressed one by
// one. The feedback analyzer proposes additions per section, and an
// operator edits the matching YAML section by hand.
//
// The default catalogue is embedded from default.yaml. Operators can
// override it with their own file through config.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"

	"github.com/Tegath/kaleads/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultCatalogue []byte

// Section names one independently addressable part of a prompt.
type Section string

const (
	SectionBackground   Section = "background"
	SectionProcedure    Section = "procedure"
	SectionOutputFormat Section = "output_format"
)

// SectionOrder is the order sections are rendered in.
var SectionOrder = []Section{SectionBackground, SectionProcedure, SectionOutputFormat}

// Prompt is the structured prompt of one resolver.
type Prompt struct {
	Field        domain.FieldID `yaml:"field" json:"field"`
	Role         string         `yaml:"role" json:"role"`
	Background   string         `yaml:"background" json:"background"`
	Procedure    []string       `yaml:"procedure" json:"procedure"`
	OutputFormat []string       `yaml:"output_format" json:"output_format"`
}

// Section returns the text of a section, or "" if the prompt lacks it.
func (p Prompt) Section(s Section) string {
	switch s {
	case SectionBackground:
		return strings.TrimSpace(p.Background)
	case SectionProcedure:
		return numbered(p.Procedure)
	case SectionOutputFormat:
		return bulleted(p.OutputFormat)
	}
	return ""
}

// Sections lists the sections that carry text, in render order.
func (p Prompt) Sections() []Section {
	var out []Section
	for _, s := range SectionOrder {
		if p.Section(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// HasSection reports whether the prompt carries text for s.
func (p Prompt) HasSection(s Section) bool {
	return p.Section(s) != ""
}

// Text assembles the sections into one template source.
func (p Prompt) Text() string {
	var b strings.Builder
	if r := strings.TrimSpace(p.Role); r != "" {
		b.WriteString(r)
		b.WriteString("\n\n")
	}
	for _, s := range p.Sections() {
		fmt.Fprintf(&b, "## %s\n%s\n\n", heading(s), p.Section(s))
	}
	return strings.TrimSpace(b.String())
}

func heading(s Section) string {
	switch s {
	case SectionBackground:
		return "Background"
	case SectionProcedure:
		return "Procedure"
	case SectionOutputFormat:
		return "Output format"
	}
	return string(s)
}

func numbered(items []string) string {
	var lines []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			lines = append(lines, fmt.Sprintf("%d. %s", len(lines)+1, it))
		}
	}
	return strings.Join(lines, "\n")
}

func bulleted(items []string) string {
	var lines []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			lines = append(lines, "- "+it)
		}
	}
	return strings.Join(lines, "\n")
}

// --- Rendering ---

// Data is the template input of every prompt.
type Data struct {
	Company  domain.CompanyDescriptor
	Client   domain.ClientContext
	Industry string
	// Resolved maps already-resolved field ids to their values.
	Resolved map[string]string
	// Evidence holds raw material gathered by earlier tiers, if any.
	Evidence []string
	// Excluded lists values the answer must not be.
	Excluded []string
}

// Catalogue holds one prompt per field plus their parsed templates.
type Catalogue struct {
	prompts   map[domain.FieldID]Prompt
	templates map[domain.FieldID]*template.Template
}

var funcs = template.FuncMap{
	"join":  strings.Join,
	"lower": strings.ToLower,
}

// Parse reads a YAML list of prompts and compiles their templates.
func Parse(r io.Reader) (*Catalogue, error) {
	var doc struct {
		Prompts []Prompt `yaml:"prompts"`
	}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding prompt catalogue: %w", err)
	}

	c := &Catalogue{
		prompts:   make(map[domain.FieldID]Prompt, len(doc.Prompts)),
		templates: make(map[domain.FieldID]*template.Template, len(doc.Prompts)),
	}
	for _, p := range doc.Prompts {
		if err := domain.ValidateField(p.Field); err != nil {
			return nil, fmt.Errorf("prompt catalogue: %w", err)
		}
		if _, dup := c.prompts[p.Field]; dup {
			return nil, fmt.Errorf("prompt catalogue: duplicate prompt for %q", p.Field)
		}
		if len(p.Sections()) == 0 {
			return nil, fmt.Errorf("prompt catalogue: prompt for %q has no sections", p.Field)
		}
		tmpl, err := template.New(string(p.Field)).Funcs(funcs).Option("missingkey=zero").Parse(p.Text())
		if err != nil {
			return nil, fmt.Errorf("parsing prompt for %q: %w", p.Field, err)
		}
		c.prompts[p.Field] = p
		c.templates[p.Field] = tmpl
	}
	return c, nil
}

// Default returns the embedded catalogue.
func Default() (*Catalogue, error) {
	return Parse(bytes.NewReader(defaultCatalogue))
}

// LoadFile parses the catalogue at path. An empty path yields Default.
func LoadFile(path string) (*Catalogue, error) {
	if path == "" {
		return Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening prompt catalogue: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Get returns the prompt for field.
func (c *Catalogue) Get(field domain.FieldID) (Prompt, bool) {
	p, ok := c.prompts[field]
	return p, ok
}

// Fields lists the fields with a prompt, in canonical order.
func (c *Catalogue) Fields() []domain.FieldID {
	var out []domain.FieldID
	for _, f := range domain.FieldOrder {
		if _, ok := c.prompts[f]; ok {
			out = append(out, f)
		}
	}
	return out
}

// Render executes the prompt of field against data.
func (c *Catalogue) Render(field domain.FieldID, data Data) (string, error) {
	tmpl, ok := c.templates[field]
	if !ok {
		return "", fmt.Errorf("no prompt for field %q", field)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("rendering prompt for %q: %w", field, err)
	}
	return buf.String(), nil
}
