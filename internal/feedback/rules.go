package feedback

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/prompts"
)

// Category is the kind of problem an issue phrase describes.
type Category string

const (
	CategoryIncorrect  Category = "incorrect"
	CategoryGeneric    Category = "generic"
	CategoryStale      Category = "stale"
	CategoryIrrelevant Category = "irrelevant"
	CategorySelf       Category = "self_reference"
	CategoryOther      Category = "unspecified"
)

// categoryKeywords is checked in order; the first hit wins.
var categoryKeywords = []struct {
	category Category
	words    []string
}{
	{CategorySelf, []string{"our own", "ourselves", "our company", "our name", "is us", "we are", "the client"}},
	{CategoryIncorrect, []string{"incorrect", "wrong", "inaccurate", "not right", "mistaken", "false", "invalid", "not true"}},
	{CategoryGeneric, []string{"generic", "vague", "bland", "boring", "not specific", "too broad", "templated", "could be anyone", "placeholder"}},
	{CategoryStale, []string{"outdated", "stale", "old news", "last year", "no longer", "out of date"}},
	{CategoryIrrelevant, []string{"irrelevant", "unrelated", "off topic", "doesn't fit", "does not fit", "not relevant", "makes no sense"}},
}

func categorize(phrase string) Category {
	text := " " + normalizeText(phrase) + " "
	for _, c := range categoryKeywords {
		for _, w := range c.words {
			if strings.Contains(text, " "+w+" ") {
				return c.category
			}
		}
	}
	return CategoryOther
}

// traceStats summarizes the attempt trace of one field.
type traceStats struct {
	forbidden, failed, timeouts, skipped, empty int
	failedSources                             []domain.Source
}

func statsOf(f domain.ResolvedField) traceStats {
	s := traceStats{
		forbidden: f.CountOutcome(domain.OutcomeForbidden),
		failed:    f.CountOutcome(domain.OutcomeFailed),
		timeouts:  f.CountOutcome(domain.OutcomeTimeout),
		skipped:   f.CountOutcome(domain.OutcomeSkipped),
		empty:     f.CountOutcome(domain.OutcomeNoResult),
	}
	seen := map[domain.Source]bool{}
	for _, a := range f.Attempts {
		if (a.Outcome == domain.OutcomeFailed || a.Outcome == domain.OutcomeTimeout) && !seen[a.Source] {
			seen[a.Source] = true
			s.failedSources = append(s.failedSources, a.Source)
		}
	}
	return s
}

func (s traceStats) exhausted() int { return s.failed + s.timeouts + s.skipped }

// rootCause explains why field ended with the value the reviewer
// complained about. Rules are checked from the most specific trace
// evidence to the least.
func rootCause(f domain.ResolvedField, cat Category) string {
	s := statsOf(f)
	where := fmt.Sprintf("%s, level %d", f.Source, f.FallbackLevel)

	switch {
	case cat == CategorySelf && s.forbidden == 0:
		return fmt.Sprintf("value %q names the client but no exclusion rule rejected it (%s)", f.Value, where)
	case s.forbidden > 0 && (cat == CategoryIncorrect || cat == CategoryIrrelevant || cat == CategorySelf):
		return fmt.Sprintf("%d candidate(s) were rejected by the exclusion filter, so the value fell through to a lower tier (%s)", s.forbidden, where)
	case f.FallbackLevel >= domain.MaxFallbackLevel && s.skipped > 0:
		return fmt.Sprintf("run deadline reached before %d tier(s) could run; value is the generic fallback", s.skipped)
	case f.FallbackLevel >= domain.MaxFallbackLevel && s.exhausted() > 0:
		return fmt.Sprintf("external tiers exhausted (%d failed, %d timed out); value is the generic fallback", s.failed, s.timeouts)
	case f.FallbackLevel >= domain.MaxFallbackLevel:
		return "no tier found evidence for this company; value is the generic fallback"
	case f.Source == domain.SourceInference && cat == CategoryGeneric:
		return fmt.Sprintf("value was inferred without company-specific evidence (%s)", where)
	case f.Source == domain.SourceInference:
		return fmt.Sprintf("value was inferred by the model after observed tiers found nothing (%s)", where)
	case cat == CategoryStale:
		return fmt.Sprintf("observed source may be outdated (%s)", where)
	case f.Source == domain.SourceWebSearch && cat == CategoryIncorrect:
		return fmt.Sprintf("web search returned a plausible but wrong candidate and extraction accepted it (%s)", where)
	case f.Source == domain.SourceScraping && cat == CategoryIncorrect:
		return fmt.Sprintf("site inspection extracted the wrong element from the target's pages (%s)", where)
	default:
		return fmt.Sprintf("reviewer reported a %s value resolved from %s", cat, where)
	}
}

// fieldAdvice is the standing advice per field, used last so every
// proposal has at least one concrete suggestion.
var fieldAdvice = map[domain.FieldID]string{
	domain.FieldIndustry:   "prefer the industry stated on the company's own home page over the descriptor",
	domain.FieldCompetitor: "require a competitor to appear in at least two independent search results",
	domain.FieldPersona:    "prefer titles seen on the company's team or careers pages over industry defaults",
	domain.FieldPainPoint:  "tie the pain point to the resolved persona's responsibilities",
	domain.FieldSignal:     "restrict news search to the last 90 days",
	domain.FieldTechStack:  "only report technologies detected in page markup or named in job posts",
	domain.FieldProof:      "add case studies for the target's industry to the client context",
}

func suggestions(field domain.FieldID, f domain.ResolvedField, cat Category) []string {
	s := statsOf(f)
	var out []string
	for _, src := range s.failedSources {
		out = append(out, fmt.Sprintf("check the %s service: its tier failed for this company", src))
	}
	if s.timeouts > 0 {
		out = append(out, "raise the strategy timeout or lower the service latency")
	}
	if s.skipped > 0 {
		out = append(out, "raise the orchestrator deadline so every tier gets a chance to run")
	}
	if s.forbidden > 0 {
		out = append(out, "exclude the client's own names and competitors at query time, not only after extraction")
	}
	if cat == CategorySelf && s.forbidden == 0 {
		out = append(out, "enable the client identity exclusion for this resolver")
	}
	switch {
	case f.FallbackLevel >= domain.MaxFallbackLevel:
		out = append(out, fmt.Sprintf("add a %s-specific fallback value per industry", field))
	case f.Source == domain.SourceInference:
		out = append(out, fmt.Sprintf("give the %s prompt more background facts about the target", field))
	case cat == CategoryIncorrect || cat == CategoryIrrelevant:
		out = append(out, fmt.Sprintf("tighten %s extraction before accepting a candidate", field))
	}
	if advice, ok := fieldAdvice[field]; ok {
		out = append(out, advice)
	}
	return out
}

// promptDeltas proposes one addition per section the prompt actually has.
func promptDeltas(p prompts.Prompt, f domain.ResolvedField, issues []string, cat Category) map[string]string {
	deltas := map[string]string{}
	if p.HasSection(prompts.SectionBackground) {
		deltas[string(prompts.SectionBackground)] = fmt.Sprintf(
			"A reviewer rejected %q (%s, level %d): %s.", f.Value, f.Source, f.FallbackLevel, strings.Join(issues, "; "))
	}
	if p.HasSection(prompts.SectionProcedure) {
		var step string
		switch cat {
		case CategoryGeneric:
			step = "Discard any answer that would fit every company in the same industry."
		case CategoryStale:
			step = "Prefer evidence dated within the last year and say when it is older."
		case CategorySelf:
			step = "Check the answer against the client's own names before returning it."
		default:
			step = "Cross-check the answer against at least one piece of evidence about the target company."
		}
		deltas[string(prompts.SectionProcedure)] = step
	}
	if p.HasSection(prompts.SectionOutputFormat) {
		deltas[string(prompts.SectionOutputFormat)] = "Cite the evidence the value is based on in the reasoning field."
	}
	if len(deltas) == 0 {
		return nil
	}
	return deltas
}

func sortedFields(m map[domain.FieldID][]string) []domain.FieldID {
	out := make([]domain.FieldID, 0, len(m))
	for f := range m {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return fieldRank(out[i]) < fieldRank(out[j]) })
	return out
}
