package feedback

import (
	"sort"
	"strings"
	"unicode"

	"github.com/Tegath/kaleads/internal/domain"
	"github.com/sahilm/fuzzy"
)

// DefaultThreshold is the minimum fuzzy match score an attribution needs.
const DefaultThreshold = 0.75

// minFuzzyLen keeps short words ("a", "us", "the") out of fuzzy matching.
const minFuzzyLen = 4

// Vocabulary maps each field to the words reviewers use for it.
type Vocabulary map[domain.FieldID][]string

// DefaultVocabulary returns the built-in synonym table.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		domain.FieldIndustry:   {"industry", "sector", "vertical", "market", "segment", "niche"},
		domain.FieldCompetitor: {"competitor", "competition", "rival", "alternative", "competing vendor", "vs"},
		domain.FieldPersona:    {"persona", "buyer", "decision maker", "role", "title", "job title", "contact", "recipient", "stakeholder"},
		domain.FieldPainPoint:  {"pain", "pain point", "problem", "challenge", "struggle", "frustration", "bottleneck"},
		domain.FieldSignal:     {"signal", "trigger", "news", "event", "hiring", "funding", "announcement", "timing"},
		domain.FieldTechStack:  {"tech", "tech stack", "stack", "technology", "tool", "tooling", "software", "integration", "crm"},
		domain.FieldProof:      {"proof", "social proof", "case study", "testimonial", "reference", "customer story", "result"},
	}
}

// attributor matches free text against a Vocabulary.
type attributor struct {
	vocab     Vocabulary
	threshold float64
	// terms is the flattened vocabulary, single words only, for fuzzy search.
	terms []term
	words []string
}

type term struct {
	field domain.FieldID
	text  string
}

func newAttributor(vocab Vocabulary, threshold float64) *attributor {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	a := &attributor{vocab: vocab, threshold: threshold}
	for _, f := range vocabFields(vocab) {
		for _, t := range vocab[f] {
			t = strings.ToLower(strings.TrimSpace(t))
			if t == "" || strings.Contains(t, " ") || len(t) < minFuzzyLen {
				continue
			}
			a.terms = append(a.terms, term{field: f, text: t})
			a.words = append(a.words, t)
		}
	}
	return a
}

// attribute returns every field phrase refers to, best score per field,
// in canonical field order. Exact word or phrase hits score 1.
func (a *attributor) attribute(phrase string) []domain.Attribution {
	text := normalizeText(phrase)
	tokens := strings.Fields(text)
	padded := " " + text + " "

	best := map[domain.FieldID]domain.Attribution{}
	keep := func(f domain.FieldID, score float64, matched string) {
		if cur, ok := best[f]; ok && cur.Score >= score {
			return
		}
		best[f] = domain.Attribution{Issue: phrase, Field: f, Score: score, Matched: matched}
	}

	for _, f := range vocabFields(a.vocab) {
		names := append([]string{strings.ReplaceAll(string(f), "_", " ")}, a.vocab[f]...)
		for _, n := range names {
			n = strings.ToLower(strings.TrimSpace(n))
			if n == "" {
				continue
			}
			if strings.Contains(padded, " "+n+" ") || containsToken(tokens, singular(n)) {
				keep(f, 1, n)
			}
		}
	}

	for _, tok := range tokens {
		if len(tok) < minFuzzyLen {
			continue
		}
		// A typo may drop letters ("persna") or add them ("personna"),
		// so match in both directions and keep the better coverage.
		for _, m := range fuzzy.Find(tok, a.words) {
			if score := coverage(m, tok, a.words[m.Index]); score >= a.threshold {
				keep(a.terms[m.Index].field, score, a.words[m.Index])
			}
		}
		for _, t := range a.terms {
			for _, m := range fuzzy.Find(t.text, []string{tok}) {
				if score := coverage(m, t.text, tok); score >= a.threshold {
					keep(t.field, score, t.text)
				}
			}
		}
	}

	out := make([]domain.Attribution, 0, len(best))
	for _, at := range best {
		out = append(out, at)
	}
	sort.Slice(out, func(i, j int) bool { return fieldRank(out[i].Field) < fieldRank(out[j].Field) })
	return out
}

// coverage scores a subsequence match: the share of the longer string
// covered by the pattern, zero unless the match starts at the first
// letter.
func coverage(m fuzzy.Match, pattern, str string) float64 {
	if len(m.MatchedIndexes) == 0 || m.MatchedIndexes[0] != 0 || len(str) == 0 {
		return 0
	}
	p, s := float64(len(pattern)), float64(len(str))
	if p > s {
		return s / p
	}
	return p / s
}

func vocabFields(v Vocabulary) []domain.FieldID {
	fields := make([]domain.FieldID, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool {
		ri, rj := fieldRank(fields[i]), fieldRank(fields[j])
		if ri != rj {
			return ri < rj
		}
		return fields[i] < fields[j]
	})
	return fields
}

func fieldRank(f domain.FieldID) int {
	for i, id := range domain.FieldOrder {
		if id == f {
			return i
		}
	}
	return len(domain.FieldOrder)
}

func normalizeText(s string) string {
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func containsToken(tokens []string, want string) bool {
	if strings.Contains(want, " ") {
		return false
	}
	for _, t := range tokens {
		if t == want || singular(t) == want {
			return true
		}
	}
	return false
}

func singular(w string) string {
	if len(w) > 3 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
		return strings.TrimSuffix(w, "s")
	}
	return w
}
