// Package quality scores an email generation record.
//
// The score (0-100) is a pure function of the confidence of each field:
// a weighted average of confidences, minus a penalty for every field
// that came from a degraded tier (fallback level 2 or 3). Because the
// confidence bands of the fallback levels never overlap, the level is
// read back from the confidence and two records with the same
// confidence vector always get the same score.
//
// The weighting is policy, not algorithm: WeightedScorer takes its
// weights and penalties from config, and CELScorer lets an operator
// replace the formula with a CEL expression.
package quality

import (
	"github.com/Tegath/kaleads/internal/domain"
)

// Scorer computes the quality score of a set of resolved fields.
type Scorer interface {
	Score(fields map[domain.FieldID]domain.ResolvedField) int
}

// FieldWeight is one field's share of the score.
type FieldWeight struct {
	Field       domain.FieldID `json:"field" yaml:"field"`
	Description string         `json:"description" yaml:"description"`
	Weight      int            `json:"weight" yaml:"weight"`   // relative importance (1-10)
	Penalty     int            `json:"penalty" yaml:"penalty"` // points removed when degraded
}

// DefaultWeights returns the standard weighting. Fields that make the
// email feel researched weigh most.
func DefaultWeights() []FieldWeight {
	return []FieldWeight{
		{
			Field:       domain.FieldIndustry,
			Description: "Context for every other field; rarely visible in the email itself.",
			Weight:      3,
			Penalty:     2,
		},
		{
			Field:       domain.FieldCompetitor,
			Description: "A named competitor is the strongest proof of research.",
			Weight:      9,
			Penalty:     8,
		},
		{
			Field:       domain.FieldPersona,
			Description: "Addressing the wrong role sinks the email.",
			Weight:      10,
			Penalty:     10,
		},
		{
			Field:       domain.FieldPainPoint,
			Description: "The pain is the hook of the first paragraph.",
			Weight:      8,
			Penalty:     6,
		},
		{
			Field:       domain.FieldSignal,
			Description: "Makes the outreach timely.",
			Weight:      6,
			Penalty:     4,
		},
		{
			Field:       domain.FieldTechStack,
			Description: "Shows technical fit.",
			Weight:      4,
			Penalty:     3,
		},
		{
			Field:       domain.FieldProof,
			Description: "A relevant case study carries the call to action.",
			Weight:      7,
			Penalty:     5,
		},
	}
}

// FieldScore is one line of a Report.
type FieldScore struct {
	Field      domain.FieldID `json:"field"`
	Confidence int            `json:"confidence"`
	Level      int            `json:"level"`
	Weight     int            `json:"weight"`
	Penalty    int            `json:"penalty"` // applied penalty, 0 when not degraded
}

// Report explains how a score was reached.
type Report struct {
	Fields       []FieldScore `json:"fields"`
	Base         int          `json:"base"`
	TotalPenalty int          `json:"total_penalty"`
	Score        int          `json:"score"`
}

// WeightedScorer is the default Scorer.
type WeightedScorer struct {
	Weights []FieldWeight
}

// NewWeightedScorer returns a scorer using weights, or DefaultWeights
// when weights is empty.
func NewWeightedScorer(weights []FieldWeight) *WeightedScorer {
	if len(weights) == 0 {
		weights = DefaultWeights()
	}
	return &WeightedScorer{Weights: weights}
}

// Score implements Scorer.
func (s *WeightedScorer) Score(fields map[domain.FieldID]domain.ResolvedField) int {
	return s.Report(fields).Score
}

// Report computes the score and its breakdown. Weighted fields missing
// from the record count as confidence 1.
func (s *WeightedScorer) Report(fields map[domain.FieldID]domain.ResolvedField) Report {
	var r Report
	totalWeight := 0
	weightedSum := 0

	for _, w := range s.Weights {
		conf := domain.MinConfidence
		if f, ok := fields[w.Field]; ok {
			conf = clamp(f.Confidence, domain.MinConfidence, domain.MaxConfidence)
		}
		fs := FieldScore{
			Field:      w.Field,
			Confidence: conf,
			Level:      domain.LevelForConfidence(conf),
			Weight:     w.Weight,
		}
		if fs.Level >= 2 {
			fs.Penalty = w.Penalty
		}
		r.Fields = append(r.Fields, fs)

		totalWeight += w.Weight
		weightedSum += normalized(conf) * w.Weight
		r.TotalPenalty += fs.Penalty
	}

	if totalWeight > 0 {
		r.Base = weightedSum / totalWeight
	}
	r.Score = clamp(r.Base-r.TotalPenalty, 0, 100)
	return r
}

// normalized maps a confidence of 1..5 onto 0..100.
func normalized(conf int) int {
	return (conf - domain.MinConfidence) * 100 / (domain.MaxConfidence - domain.MinConfidence)
}

// Degraded returns the fields scored at level 2 or above.
func (r Report) Degraded() []domain.FieldID {
	var out []domain.FieldID
	for _, f := range r.Fields {
		if f.Level >= 2 {
			out = append(out, f.Field)
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
