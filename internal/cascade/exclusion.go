package cascade

import (
	"sort"
	"strings"
)

// ExclusionSet holds values that must never surface for a field.
// Matching is case-insensitive on trimmed, whitespace-collapsed text.
type ExclusionSet map[string]struct{}

// NewExclusionSet builds a set from the given values, ignoring blanks.
func NewExclusionSet(values ...string) ExclusionSet {
	s := make(ExclusionSet, len(values))
	s.Add(values...)
	return s
}

// Add inserts values into the set.
func (s ExclusionSet) Add(values ...string) {
	for _, v := range values {
		if k := normalize(v); k != "" {
			s[k] = struct{}{}
		}
	}
}

// Forbidden reports whether v matches an excluded entry.
func (s ExclusionSet) Forbidden(v string) bool {
	if len(s) == 0 {
		return false
	}
	_, ok := s[normalize(v)]
	return ok
}

// Len returns the number of excluded entries.
func (s ExclusionSet) Len() int { return len(s) }

// Values returns the normalized entries, sorted.
func (s ExclusionSet) Values() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalize(v string) string {
	return strings.ToLower(strings.Join(strings.Fields(v), " "))
}
