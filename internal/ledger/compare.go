package ledger

import (
	"slices"

	"github.com/Tegath/kaleads/internal/domain"
)

// FieldDelta is the change of one field between two iterations.
type FieldDelta struct {
	Field           domain.FieldID `json:"field"`
	Before          string         `json:"before"`
	After           string         `json:"after"`
	ValueChanged    bool           `json:"value_changed"`
	ConfidenceDelta int            `json:"confidence_delta"`
	LevelDelta      int            `json:"level_delta"`
	SourceBefore    domain.Source  `json:"source_before,omitempty"`
	SourceAfter     domain.Source  `json:"source_after,omitempty"`
}

// Comparison is the before/after view of two records of the same contact.
type Comparison struct {
	BeforeID     string       `json:"before_id"`
	AfterID      string       `json:"after_id"`
	QualityDelta int          `json:"quality_delta"`
	Fields       []FieldDelta `json:"fields"`
}

// Improved lists the fields whose confidence went up.
func (c Comparison) Improved() []domain.FieldID {
	var out []domain.FieldID
	for _, f := range c.Fields {
		if f.ConfidenceDelta > 0 {
			out = append(out, f.Field)
		}
	}
	return out
}

// Regressed lists the fields whose confidence went down.
func (c Comparison) Regressed() []domain.FieldID {
	var out []domain.FieldID
	for _, f := range c.Fields {
		if f.ConfidenceDelta < 0 {
			out = append(out, f.Field)
		}
	}
	return out
}

// Compare diffs two records field by field, in canonical field order
// followed by any extra fields either record carries.
func Compare(before, after *domain.EmailGenerationRecord) Comparison {
	c := Comparison{
		BeforeID:     before.ID,
		AfterID:      after.ID,
		QualityDelta: after.QualityScore - before.QualityScore,
	}

	seen := map[domain.FieldID]bool{}
	ids := append([]domain.FieldID{}, domain.FieldOrder...)
	for _, id := range ids {
		seen[id] = true
	}
	var extra []domain.FieldID
	for _, r := range []*domain.EmailGenerationRecord{before, after} {
		for id := range r.Fields {
			if !seen[id] {
				seen[id] = true
				extra = append(extra, id)
			}
		}
	}
	slices.Sort(extra)
	ids = append(ids, extra...)

	for _, id := range ids {
		b, okB := before.Fields[id]
		a, okA := after.Fields[id]
		if !okB && !okA {
			continue
		}
		c.Fields = append(c.Fields, FieldDelta{
			Field:           id,
			Before:          b.Value,
			After:           a.Value,
			ValueChanged:    b.Value != a.Value,
			ConfidenceDelta: a.Confidence - b.Confidence,
			LevelDelta:      a.FallbackLevel - b.FallbackLevel,
			SourceBefore:    b.Source,
			SourceAfter:     a.Source,
		})
	}
	return c
}

// CompareLatest diffs the last two distinct records of a session. It
// returns false when the session has fewer than two iterations.
func CompareLatest(s *domain.Session) (Comparison, bool) {
	its := s.Iterations()
	if len(its) < 2 {
		return Comparison{}, false
	}
	return Compare(&its[len(its)-2].Record, &its[len(its)-1].Record), true
}
