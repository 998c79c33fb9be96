// Package domain holds the records shared by the resolution engine,
// the orchestrator, the session ledger and the feedback analyzer.
//
// Everything here is a plain value: records are built once and never
// edited in place. Packages that produce them (cascade, orchestrator,
// feedback) own the construction rules; this package only owns the
// shapes and their basic validation.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// --- Field identifiers ---

// FieldID names one semantic slot of an outreach email.
type FieldID string

const (
	FieldIndustry   FieldID = "industry"
	FieldCompetitor FieldID = "competitor"
	FieldPersona    FieldID = "persona"
	FieldPainPoint  FieldID = "pain_point"
	FieldSignal     FieldID = "signal"
	FieldTechStack  FieldID = "tech_stack"
	FieldProof      FieldID = "proof"
)

// FieldOrder is the canonical presentation order of the fields.
var FieldOrder = []FieldID{
	FieldIndustry,
	FieldCompetitor,
	FieldPersona,
	FieldPainPoint,
	FieldSignal,
	FieldTechStack,
	FieldProof,
}

var knownFields = map[FieldID]bool{
	FieldIndustry:   true,
	FieldCompetitor: true,
	FieldPersona:    true,
	FieldPainPoint:  true,
	FieldSignal:     true,
	FieldTechStack:  true,
	FieldProof:      true,
}

// ValidateField returns an error if the field is not part of the catalogue.
func ValidateField(f FieldID) error {
	if !knownFields[f] {
		return fmt.Errorf("invalid field %q: must be one of: %s", f, joinFields(FieldOrder))
	}
	return nil
}

func joinFields(fields []FieldID) string {
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

// --- Source enum ---

// Source tags where a resolved value came from.
type Source string

const (
	SourceWebSearch Source = "web_search"
	SourceScraping  Source = "scraping"
	SourceInference Source = "inference"
	SourceGeneric   Source = "generic"
)

var validSources = map[Source]bool{
	SourceWebSearch: true,
	SourceScraping:  true,
	SourceInference: true,
	SourceGeneric:   true,
}

// ValidateSource returns an error if the source is not recognized.
func ValidateSource(s Source) error {
	if !validSources[s] {
		return fmt.Errorf("invalid source %q: must be one of: web_search, scraping, inference, generic", s)
	}
	return nil
}

// --- Confidence and fallback levels ---

const (
	// MaxFallbackLevel is the level of the generic tier that ends every cascade.
	MaxFallbackLevel = 3

	MinConfidence = 1
	MaxConfidence = 5
)

// ConfidenceBand returns the inclusive confidence range allowed at a
// fallback level. Bands never overlap and shrink as the level grows, so
// a higher level always carries a lower or equal confidence and the
// level can be recovered from the confidence alone.
func ConfidenceBand(level int) (lo, hi int) {
	switch level {
	case 0:
		return 5, 5
	case 1:
		return 4, 4
	case 2:
		return 2, 3
	default:
		return MinConfidence, MinConfidence
	}
}

// LevelForConfidence inverts ConfidenceBand.
func LevelForConfidence(confidence int) int {
	for level := 0; level < MaxFallbackLevel; level++ {
		if lo, _ := ConfidenceBand(level); confidence >= lo {
			return level
		}
	}
	return MaxFallbackLevel
}

// ClampConfidence forces a confidence into the band of the given level.
func ClampConfidence(level, confidence int) int {
	lo, hi := ConfidenceBand(level)
	if confidence < lo {
		return lo
	}
	if confidence > hi {
		return hi
	}
	return confidence
}

// --- Client context ---

// CaseStudy is a real customer result the client can cite as proof.
type CaseStudy struct {
	Company  string `json:"company" yaml:"company"`
	Industry string `json:"industry" yaml:"industry"`
	Result   string `json:"result" yaml:"result"`
}

// ClientContext describes the client on whose behalf emails are written.
// It is supplied once per generation run and treated as read-only.
type ClientContext struct {
	ID               string      `json:"id" yaml:"id"`
	Name             string      `json:"name" yaml:"name"`
	Competitors      []string    `json:"competitors,omitempty" yaml:"competitors"`
	ValueProps       []string    `json:"value_props,omitempty" yaml:"value_props"`
	CaseStudies      []CaseStudy `json:"case_studies,omitempty" yaml:"case_studies"`
	TargetIndustries []string    `json:"target_industries,omitempty" yaml:"target_industries"`
	PainCategories   []string    `json:"pain_categories,omitempty" yaml:"pain_categories"`
}

// Validate checks the fields every resolver relies on.
func (c *ClientContext) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("client context: 'id' is required")
	}
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("client context %q: 'name' is required", c.ID)
	}
	return nil
}

// --- Target company ---

// CompanyDescriptor identifies the target company of one generation run.
type CompanyDescriptor struct {
	Name     string `json:"name" yaml:"name"`
	Website  string `json:"website,omitempty" yaml:"website"`
	Industry string `json:"industry,omitempty" yaml:"industry"`
	Contact  string `json:"contact,omitempty" yaml:"contact"`
}

// Validate requires at least a company name.
func (d CompanyDescriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("company descriptor: 'name' is required")
	}
	return nil
}

// --- Resolved fields ---

// AttemptOutcome records how one strategy invocation ended.
type AttemptOutcome string

const (
	OutcomeAccepted  AttemptOutcome = "accepted"
	OutcomeNoResult  AttemptOutcome = "no_result"
	OutcomeFailed    AttemptOutcome = "failed"
	OutcomeTimeout   AttemptOutcome = "timeout"
	OutcomeForbidden AttemptOutcome = "forbidden"
	OutcomeSkipped   AttemptOutcome = "skipped"
)

// Attempt is one entry of a cascade trace.
type Attempt struct {
	Strategy string         `json:"strategy"`
	Source   Source         `json:"source"`
	Level    int            `json:"level"`
	Outcome  AttemptOutcome `json:"outcome"`
	Detail   string         `json:"detail,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// ResolvedField is the output of one resolver invocation.
type ResolvedField struct {
	Field         FieldID   `json:"field"`
	Value         string    `json:"value"`
	Confidence    int       `json:"confidence"`
	Source        Source    `json:"source"`
	FallbackLevel int       `json:"fallback_level"`
	Reasoning     string    `json:"reasoning"`
	Attempts      []Attempt `json:"attempts,omitempty"`
}

// Degraded reports whether the value came from a low-reliability tier.
func (f ResolvedField) Degraded() bool {
	return f.FallbackLevel >= 2
}

// CountOutcome returns how many attempts ended with the given outcome.
func (f ResolvedField) CountOutcome(o AttemptOutcome) int {
	n := 0
	for _, a := range f.Attempts {
		if a.Outcome == o {
			n++
		}
	}
	return n
}

// --- Generation records ---

// EmailGenerationRecord aggregates one resolved field per slot for one
// target company.
type EmailGenerationRecord struct {
	ID             string                    `json:"id"`
	ContactID      string                    `json:"contact_id"`
	ClientID       string                    `json:"client_id"`
	Company        CompanyDescriptor         `json:"company"`
	Fields         map[FieldID]ResolvedField `json:"fields"`
	QualityScore   int                       `json:"quality_score"`
	GenerationTime time.Duration             `json:"generation_time"`
	CreatedAt      time.Time                 `json:"created_at"`
}

// Field returns the resolved value for a slot.
func (r *EmailGenerationRecord) Field(id FieldID) (ResolvedField, bool) {
	f, ok := r.Fields[id]
	return f, ok
}

// Missing lists the expected fields that are absent or empty.
func (r *EmailGenerationRecord) Missing(expected []FieldID) []FieldID {
	var missing []FieldID
	for _, id := range expected {
		f, ok := r.Fields[id]
		if !ok || strings.TrimSpace(f.Value) == "" {
			missing = append(missing, id)
		}
	}
	return missing
}
