package domain

import (
	"fmt"
	"strings"
	"time"
)

var timeNow = time.Now

// --- Rating enum ---

// Rating is the reviewer's overall verdict, from perfect (1) to bad (4).
type Rating int

const (
	RatingPerfect Rating = 1
	RatingGood    Rating = 2
	RatingAverage Rating = 3
	RatingBad     Rating = 4
)

var ratingNames = map[Rating]string{
	RatingPerfect: "perfect",
	RatingGood:    "good",
	RatingAverage: "average",
	RatingBad:     "bad",
}

// String returns the rating label.
func (r Rating) String() string {
	if name, ok := ratingNames[r]; ok {
		return name
	}
	return fmt.Sprintf("rating(%d)", int(r))
}

// Valid reports whether r is one of the four ratings.
func (r Rating) Valid() bool {
	_, ok := ratingNames[r]
	return ok
}

// ParseRating accepts a label ("good") or its ordinal ("2").
func ParseRating(s string) (Rating, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range ratingNames {
		if s == name || s == fmt.Sprint(int(r)) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("invalid rating %q: must be one of: perfect, good, average, bad (or 1-4)", s)
}

// --- Feedback ---

// FeedbackEntry is one human review of a generation record.
type FeedbackEntry struct {
	Rating       Rating    `json:"rating"`
	Issues       []string  `json:"issues,omitempty"`
	Improvements []string  `json:"improvements,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewFeedbackEntry validates the rating and drops blank phrases.
func NewFeedbackEntry(rating Rating, issues, improvements []string) (*FeedbackEntry, error) {
	if !rating.Valid() {
		return nil, fmt.Errorf("invalid rating %d: must be between 1 (perfect) and 4 (bad)", rating)
	}
	return &FeedbackEntry{
		Rating:       rating,
		Issues:       compact(issues),
		Improvements: compact(improvements),
		CreatedAt:    timeNow().UTC(),
	}, nil
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// --- Improvement proposals ---

// ResolverProposal is the advisory output for one resolver.
type ResolverProposal struct {
	RootCause    string            `json:"root_cause"`
	Suggestions  []string          `json:"suggestions"`
	PromptDeltas map[string]string `json:"prompt_deltas,omitempty"`
}

// Attribution links one issue phrase to a field with a match score in (0, 1].
type Attribution struct {
	Issue   string  `json:"issue"`
	Field   FieldID `json:"field"`
	Score   float64 `json:"score"`
	Matched string  `json:"matched"`
}

// ImprovementProposal is never applied automatically: an operator reads
// it and edits resolver configuration out of band.
type ImprovementProposal struct {
	RecordID     string                       `json:"record_id"`
	Resolvers    map[FieldID]ResolverProposal `json:"resolvers"`
	Attributions []Attribution                `json:"attributions,omitempty"`
	Unattributed []string                     `json:"unattributed,omitempty"`
}

// Empty reports whether the proposal carries nothing actionable.
func (p *ImprovementProposal) Empty() bool {
	return p == nil || (len(p.Resolvers) == 0 && len(p.Unattributed) == 0)
}

// --- Sessions ---

// SessionEntry pairs a generation record with its review, if any.
type SessionEntry struct {
	Seq       int                   `json:"seq"`
	Record    EmailGenerationRecord `json:"record"`
	Feedback  *FeedbackEntry        `json:"feedback,omitempty"`
	Proposal  *ImprovementProposal  `json:"proposal,omitempty"`
	CreatedAt time.Time             `json:"created_at"`
}

// Session is the ordered iteration history of one contact.
type Session struct {
	ContactID string         `json:"contact_id"`
	Entries   []SessionEntry `json:"entries"`
}

// Latest returns the most recent entry, or nil for an empty session.
func (s *Session) Latest() *SessionEntry {
	if len(s.Entries) == 0 {
		return nil
	}
	return &s.Entries[len(s.Entries)-1]
}

// Terminal reports whether the latest record was left without feedback,
// which the operator workflow treats as validated.
func (s *Session) Terminal() bool {
	latest := s.Latest()
	return latest != nil && latest.Feedback == nil
}

// Iterations returns the distinct records in generation order, each
// paired with the latest feedback it received.
func (s *Session) Iterations() []SessionEntry {
	index := make(map[string]int)
	var out []SessionEntry
	for _, e := range s.Entries {
		if i, ok := index[e.Record.ID]; ok {
			if e.Feedback != nil {
				out[i].Feedback = e.Feedback
				out[i].Proposal = e.Proposal
			}
			continue
		}
		index[e.Record.ID] = len(out)
		out = append(out, e)
	}
	return out
}
