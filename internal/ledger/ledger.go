// Package ledger records generation iterations per contact.
//
// A session is the ordered history of one contact: every generated
// record, paired with the human feedback it received (if any) and the
// improvement proposal derived from that feedback. History is
// append-only. Reviewing a record appends a new entry that references
// the same record id; nothing is rewritten in place, so concurrent
// writers append after each other and never overwrite.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Tegath/kaleads/internal/domain"
)

// timeNow stamps entries; tests pin it.
var timeNow = time.Now

var (
	// ErrInvalidEntry is returned for entries that cannot be appended.
	ErrInvalidEntry = errors.New("invalid ledger entry")
	// ErrRecordNotFound is returned when no entry holds the requested record.
	ErrRecordNotFound = errors.New("record not found")
)

// Ledger is the narrow persistence interface the core depends on.
type Ledger interface {
	// Append adds a record with optional feedback to the contact's session.
	Append(ctx context.Context, contactID string, record *domain.EmailGenerationRecord, feedback *domain.FeedbackEntry) (domain.SessionEntry, error)
	// ReadHistory returns the contact's session, oldest entry first.
	// Unknown contacts yield an empty session.
	ReadHistory(ctx context.Context, contactID string) (*domain.Session, error)
}

// Reviewer is implemented by ledgers that also keep improvement proposals.
type Reviewer interface {
	Ledger
	AppendReview(ctx context.Context, contactID string, record *domain.EmailGenerationRecord, feedback *domain.FeedbackEntry, proposal *domain.ImprovementProposal) (domain.SessionEntry, error)
}

// Archive is the full ledger surface used by the operator tools.
type Archive interface {
	Reviewer
	// FindRecord returns the most recent copy of a record by id.
	FindRecord(ctx context.Context, recordID string) (*domain.EmailGenerationRecord, error)
	// RecentContacts lists contacts by most recent activity.
	RecentContacts(ctx context.Context, limit int) ([]ContactSummary, error)
}

var (
	_ Archive = (*Store)(nil)
	_ Archive = (*Memory)(nil)
)

// ContactSummary is a compact view of one session.
type ContactSummary struct {
	ContactID    string `json:"contact_id"`
	Entries      int    `json:"entries"`
	Iterations   int    `json:"iterations"`
	LastScore    int    `json:"last_score"`
	LastRecordID string `json:"last_record_id"`
	UpdatedAt    string `json:"updated_at"`
}

func validate(contactID string, record *domain.EmailGenerationRecord, feedback *domain.FeedbackEntry) error {
	if strings.TrimSpace(contactID) == "" {
		return fmt.Errorf("%w: contact id is required", ErrInvalidEntry)
	}
	if record == nil {
		return fmt.Errorf("%w: record is required", ErrInvalidEntry)
	}
	if record.ID == "" {
		return fmt.Errorf("%w: record has no id", ErrInvalidEntry)
	}
	if record.ContactID != "" && record.ContactID != contactID {
		return fmt.Errorf("%w: record %s belongs to contact %q, not %q", ErrInvalidEntry, record.ID, record.ContactID, contactID)
	}
	if feedback != nil {
		if !feedback.Rating.Valid() {
			return fmt.Errorf("%w: invalid rating %d", ErrInvalidEntry, feedback.Rating)
		}
	}
	return nil
}
