package resolvers

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Tegath/kaleads/internal/cascade"
)

// tally counts candidate values case-insensitively and keeps the first
// spelling seen.
type tally struct {
	counts   map[string]int
	first    map[string]int
	spelling map[string]string
}

func newTally() *tally {
	return &tally{counts: map[string]int{}, first: map[string]int{}, spelling: map[string]string{}}
}

func (t *tally) add(v string) {
	k := strings.ToLower(v)
	if _, ok := t.counts[k]; !ok {
		t.first[k] = len(t.first)
		t.spelling[k] = v
	}
	t.counts[k]++
}

// best returns the most frequent value that is not excluded. Ties go to
// the value seen first.
func (t *tally) best(excluded cascade.ExclusionSet) (string, int, bool) {
	keys := make([]string, 0, len(t.counts))
	for k := range t.counts {
		if !excluded.Forbidden(k) {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return "", 0, false
	}
	sort.Slice(keys, func(i, j int) bool {
		if t.counts[keys[i]] != t.counts[keys[j]] {
			return t.counts[keys[i]] > t.counts[keys[j]]
		}
		return t.first[keys[i]] < t.first[keys[j]]
	})
	return t.spelling[keys[0]], t.counts[keys[0]], true
}

// --- Competitors ---

var (
	versusRe = regexp.MustCompile(`(?i)\s+(?:vs\.?|versus)\s+`)
	// nameCut ends a product name at the first separator that starts a subtitle.
	nameCut = regexp.MustCompile(`\s*(?:[|:?!(\[–—]|\s-\s|,|\bcomparison\b|\breview\b|\bwhich\b|\bpricing\b|\b20\d\d\b).*$`)
	// alternativesRe matches "X alternatives: A, B and C" style listings.
	alternativesRe = regexp.MustCompile(`(?i)alternatives?\s*(?:to\s+[^:]+)?:\s*(.+)$`)
)

// versusNames returns the names facing company in "A vs B" phrases.
func versusNames(text, company string) []string {
	parts := versusRe.Split(text, -1)
	if len(parts) < 2 {
		return nil
	}
	var names []string
	for i, p := range parts {
		// Only the tail of the left part and the head of the right part
		// belong to the comparison.
		if i < len(parts)-1 {
			p = lastPhrase(p)
		}
		if i > 0 {
			p = nameCut.ReplaceAllString(p, "")
		}
		p = cleanName(p)
		if p == "" || sameName(p, company) {
			continue
		}
		names = append(names, p)
	}
	return names
}

// listedAlternatives returns names from "alternatives: A, B and C".
func listedAlternatives(text, company string) []string {
	m := alternativesRe.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	list := strings.NewReplacer(" and ", ",", " & ", ",", " or ", ",").Replace(m[1])
	var names []string
	for _, item := range strings.Split(list, ",") {
		item = cleanName(nameCut.ReplaceAllString(item, ""))
		if item == "" || sameName(item, company) || len(strings.Fields(item)) > 3 {
			continue
		}
		names = append(names, item)
	}
	return names
}

// lastPhrase keeps the words after the last separator in s.
func lastPhrase(s string) string {
	if i := strings.LastIndexAny(s, "|:–—-,("); i >= 0 {
		s = s[i+1:]
	}
	return s
}

func cleanName(s string) string {
	s = strings.Trim(strings.TrimSpace(s), `"'.,;`)
	// Drop leading list markers such as "Top 10".
	words := strings.Fields(s)
	for len(words) > 0 && (strings.EqualFold(words[0], "top") || isNumber(words[0])) {
		words = words[1:]
	}
	if len(words) == 0 || len(words) > 4 {
		return ""
	}
	return strings.Join(words, " ")
}

func sameName(a, b string) bool {
	return b != "" && strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// --- Vocabulary matching ---

// personaTitles is checked longest first so "VP of Sales" wins over "VP".
var personaTitles = []string{
	"Chief Revenue Officer",
	"Chief Marketing Officer",
	"Chief Technology Officer",
	"Chief Operating Officer",
	"Chief Executive Officer",
	"VP of Sales",
	"VP Sales",
	"VP of Marketing",
	"VP Marketing",
	"VP of Engineering",
	"VP of Customer Success",
	"Head of Sales",
	"Head of Marketing",
	"Head of Growth",
	"Head of Customer Success",
	"Head of Operations",
	"Head of Engineering",
	"Head of E-commerce",
	"Sales Director",
	"Marketing Director",
	"Director of Operations",
	"CRO",
	"CMO",
	"CTO",
	"COO",
	"CEO",
}

// findTerms returns the vocabulary terms present in text, as whole words,
// in vocabulary order.
func findTerms(text string, vocabulary []string) []string {
	lower := " " + strings.ToLower(text) + " "
	var out []string
	for _, term := range vocabulary {
		t := strings.ToLower(strings.TrimSpace(term))
		if t == "" {
			continue
		}
		idx := strings.Index(lower, t)
		for idx >= 0 {
			before, after := lower[idx-1], byte(' ')
			if end := idx + len(t); end < len(lower) {
				after = lower[end]
			}
			if !isWordByte(before) && !isWordByte(after) {
				out = append(out, term)
				break
			}
			next := strings.Index(lower[idx+1:], t)
			if next < 0 {
				break
			}
			idx += next + 1
		}
	}
	return out
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// --- Signals ---

var signalKeywords = []string{
	"raised", "raises", "funding", "series a", "series b", "series c", "seed round",
	"hiring", "is hiring", "acquires", "acquired", "acquisition",
	"launches", "launched", "expands", "expansion", "opens", "partnership",
}

func hasSignal(text string) bool {
	return len(findTerms(text, signalKeywords)) > 0
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := strings.LastIndex(s[:n], " ")
	if cut <= 0 {
		cut = n
	}
	return s[:cut] + "…"
}

// overlaps reports whether a and b share a word of at least four letters.
func overlaps(a, b string) bool {
	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(strings.ToLower(a), notLetter) {
		if len(w) >= 4 {
			words[w] = true
		}
	}
	for _, w := range strings.FieldsFunc(strings.ToLower(b), notLetter) {
		if words[w] {
			return true
		}
	}
	return false
}

func notLetter(r rune) bool {
	return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
}
