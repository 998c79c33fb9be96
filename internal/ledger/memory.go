package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Tegath/kaleads/internal/domain"
)

// Memory is an in-process Ledger. History is lost on exit.
type Memory struct {
	mu       sync.Mutex
	sessions map[string][]domain.SessionEntry
}

var _ Reviewer = (*Memory)(nil)

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string][]domain.SessionEntry)}
}

// Append implements Ledger.
func (m *Memory) Append(ctx context.Context, contactID string, record *domain.EmailGenerationRecord, feedback *domain.FeedbackEntry) (domain.SessionEntry, error) {
	return m.AppendReview(ctx, contactID, record, feedback, nil)
}

// AppendReview implements Reviewer.
func (m *Memory) AppendReview(ctx context.Context, contactID string, record *domain.EmailGenerationRecord, feedback *domain.FeedbackEntry, proposal *domain.ImprovementProposal) (domain.SessionEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.SessionEntry{}, err
	}
	if err := validate(contactID, record, feedback); err != nil {
		return domain.SessionEntry{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e := domain.SessionEntry{
		Seq:       len(m.sessions[contactID]) + 1,
		Record:    *record,
		Feedback:  feedback,
		Proposal:  proposal,
		CreatedAt: timeNow().UTC(),
	}
	m.sessions[contactID] = append(m.sessions[contactID], e)
	return e, nil
}

// ReadHistory implements Ledger. The returned session is a copy.
func (m *Memory) ReadHistory(ctx context.Context, contactID string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := make([]domain.SessionEntry, len(m.sessions[contactID]))
	copy(entries, m.sessions[contactID])
	return &domain.Session{ContactID: contactID, Entries: entries}, nil
}

// FindRecord returns the most recent copy of a record by id.
func (m *Memory) FindRecord(_ context.Context, recordID string) (*domain.EmailGenerationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var found *domain.SessionEntry
	for _, entries := range m.sessions {
		for i := range entries {
			if entries[i].Record.ID == recordID && (found == nil || entries[i].CreatedAt.After(found.CreatedAt)) {
				found = &entries[i]
			}
		}
	}
	if found == nil {
		return nil, fmt.Errorf("record %s: %w", recordID, ErrRecordNotFound)
	}
	rec := found.Record
	return &rec, nil
}

// RecentContacts lists contacts by most recent activity.
func (m *Memory) RecentContacts(_ context.Context, limit int) ([]ContactSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]ContactSummary, 0, len(m.sessions))
	for id, entries := range m.sessions {
		last := entries[len(entries)-1]
		s := &domain.Session{ContactID: id, Entries: entries}
		out = append(out, ContactSummary{
			ContactID:    id,
			Entries:      len(entries),
			Iterations:   len(s.Iterations()),
			LastScore:    last.Record.QualityScore,
			LastRecordID: last.Record.ID,
			UpdatedAt:    last.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].ContactID < out[j].ContactID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
