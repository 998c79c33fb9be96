// Package cascade is the generic fallback engine shared by every resolver.
//
// A cascade is an ordered list of strategies of decreasing reliability.
// The controller tries them strictly in order, each under its own timeout,
// and stops at the first usable value. The last strategy is a Fallback
// that cannot fail, so every run ends with a value.
//
// Per-strategy failures (timeouts, transport errors, empty or forbidden
// answers) never leave this package: they are recorded in the attempt
// trace of the returned domain.ResolvedField. The only error Run returns
// is a *ConfigError for a malformed strategy list.
package cascade

import (
	"context"
	"errors"
	"time"

	"github.com/Tegath/kaleads/internal/domain"
)

// ErrNoResult is returned by a strategy that ran fine but found nothing.
var ErrNoResult = errors.New("no result")

// Request is everything a strategy may read to produce a candidate.
type Request struct {
	Field    domain.FieldID
	Company  domain.CompanyDescriptor
	Client   *domain.ClientContext
	Resolved map[domain.FieldID]domain.ResolvedField
	Excluded ExclusionSet
}

// Dependency returns the value of an already-resolved field, or "".
func (r Request) Dependency(id domain.FieldID) string {
	if f, ok := r.Resolved[id]; ok {
		return f.Value
	}
	return ""
}

// Industry returns the resolved industry, falling back to the descriptor.
func (r Request) Industry() string {
	if v := r.Dependency(domain.FieldIndustry); v != "" {
		return v
	}
	return r.Company.Industry
}

// Candidate is a raw value proposed by a strategy.
type Candidate struct {
	Value string
	// ConfidenceAdjustment is added to the spec's base confidence and then
	// clamped to the band of the strategy's fallback level.
	ConfidenceAdjustment int
	Reasoning            string
}

// Strategy produces a candidate for one field. It returns ErrNoResult
// when it found nothing and any other error when it failed.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req Request) (Candidate, error)
}

// Fallback is implemented by the terminal strategy of every cascade.
// Derive must be deterministic, must not block and returns candidates
// in preference order; the controller keeps the first allowed one.
type Fallback interface {
	Strategy
	Derive(req Request) []Candidate
}

// Spec binds a strategy to its cascade metadata.
type Spec struct {
	Strategy       Strategy
	Source         domain.Source
	BaseConfidence int
	Timeout        time.Duration
	// Retry allows one immediate retry of a transient transport error
	// inside the same timeout budget.
	Retry bool
}

// LevelOf returns the fallback level of the spec at index i in a list of n.
// Non-terminal strategies sit at their index; the terminal one is always
// domain.MaxFallbackLevel.
func LevelOf(i, n int) int {
	if i == n-1 {
		return domain.MaxFallbackLevel
	}
	return i
}

// DefaultConfidence returns the base confidence used when a spec leaves it zero.
func DefaultConfidence(level int) int {
	_, hi := domain.ConfidenceBand(level)
	return hi
}
