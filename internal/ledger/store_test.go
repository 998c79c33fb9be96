package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Tegath/kaleads/internal/domain"
	"github.com/Tegath/kaleads/internal/ledger"
	"github.com/google/go-cmp/cmp"
)

// newTestStore creates a Store backed by a temp directory for isolation.
func newTestStore(t *testing.T) *ledger.Store {
	t.Helper()
	s, err := ledger.New(ledger.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id, contact string, score int, persona int) *domain.EmailGenerationRecord {
	return &domain.EmailGenerationRecord{
		ID:        id,
		ContactID: contact,
		ClientID:  "acme",
		Company:   domain.CompanyDescriptor{Name: "Aircall", Industry: "SaaS"},
		Fields: map[domain.FieldID]domain.ResolvedField{
			domain.FieldPersona: {
				Field:         domain.FieldPersona,
				Value:         "VP of Sales",
				Confidence:    persona,
				Source:        domain.SourceGeneric,
				FallbackLevel: domain.LevelForConfidence(persona),
				Reasoning:     "typical buyer",
				Attempts: []domain.Attempt{
					{Strategy: "persona_search", Source: domain.SourceWebSearch, Outcome: domain.OutcomeFailed, Detail: "disabled"},
				},
			},
		},
		QualityScore:   score,
		GenerationTime: 1500 * time.Millisecond,
		CreatedAt:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func feedback(t *testing.T, r domain.Rating, issues ...string) *domain.FeedbackEntry {
	t.Helper()
	fb, err := domain.NewFeedbackEntry(r, issues, nil)
	if err != nil {
		t.Fatalf("NewFeedbackEntry: %v", err)
	}
	return fb
}

// ─── New / Initialization ───────────────────────────────────────────────────

func TestNew_IdempotentReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	s1, err := ledger.New(ledger.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := s1.Append(ctx, "c1", record("r1", "c1", 60, 1), nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	s1.Close()

	s2, err := ledger.New(ledger.Config{DataDir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	h, err := s2.ReadHistory(ctx, "c1")
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if len(h.Entries) != 1 {
		t.Errorf("entries after reopen = %d, want 1", len(h.Entries))
	}
}

func TestNew_BadDataDir(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	// A data dir nested under a regular file cannot be created.
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.New(ledger.Config{DataDir: filepath.Join(file, "sub")}); err == nil {
		t.Error("New() expected error for data dir under a file")
	}
}

// ─── Append / ReadHistory ───────────────────────────────────────────────────

func TestAppend_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := record("r1", "c1", 55, 1)
	fb := feedback(t, domain.RatingBad, "persona incorrect")
	proposal := &domain.ImprovementProposal{
		RecordID: "r1",
		Resolvers: map[domain.FieldID]domain.ResolverProposal{
			domain.FieldPersona: {RootCause: "generic tier", Suggestions: []string{"enable search"}},
		},
	}

	if _, err := s.Append(ctx, "c1", rec, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	entry, err := s.AppendReview(ctx, "c1", rec, fb, proposal)
	if err != nil {
		t.Fatalf("AppendReview: %v", err)
	}
	if entry.Seq != 2 {
		t.Errorf("Seq = %d, want 2", entry.Seq)
	}

	h, err := s.ReadHistory(ctx, "c1")
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if len(h.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(h.Entries))
	}
	if diff := cmp.Diff(*rec, h.Entries[0].Record); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
	if h.Entries[0].Feedback != nil {
		t.Error("first entry should carry no feedback")
	}
	if got := h.Entries[1].Feedback; got == nil || got.Rating != domain.RatingBad || got.Issues[0] != "persona incorrect" {
		t.Errorf("feedback = %+v", got)
	}
	if got := h.Entries[1].Proposal; got == nil || got.Resolvers[domain.FieldPersona].RootCause != "generic tier" {
		t.Errorf("proposal = %+v", got)
	}
	if h.Terminal() {
		t.Error("session ending with feedback should not be terminal")
	}
	if its := h.Iterations(); len(its) != 1 || its[0].Feedback == nil {
		t.Errorf("Iterations() = %d entries, want 1 with feedback", len(its))
	}
}

func TestReadHistory_UnknownContact(t *testing.T) {
	s := newTestStore(t)
	h, err := s.ReadHistory(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ReadHistory: %v", err)
	}
	if len(h.Entries) != 0 || h.Latest() != nil {
		t.Errorf("unknown contact history = %+v, want empty", h)
	}
}

func TestReadHistory_MaxHistoryKeepsNewest(t *testing.T) {
	s, err := ledger.New(ledger.Config{DataDir: t.TempDir(), MaxHistory: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		if _, err := s.Append(ctx, "c1", record(fmt.Sprintf("r%d", i), "c1", 10*i, 1), nil); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}
	h, _ := s.ReadHistory(ctx, "c1")
	if len(h.Entries) != 2 || h.Entries[0].Seq != 3 || h.Entries[1].Seq != 4 {
		t.Errorf("entries = %+v, want seq 3 and 4", h.Entries)
	}
}

func TestAppend_Validation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		contact string
		rec     *domain.EmailGenerationRecord
		fb      *domain.FeedbackEntry
	}{
		{"empty contact", "", record("r1", "", 1, 1), nil},
		{"nil record", "c1", nil, nil},
		{"record without id", "c1", record("", "c1", 1, 1), nil},
		{"other contact", "c1", record("r1", "c2", 1, 1), nil},
		{"bad rating", "c1", record("r1", "c1", 1, 1), &domain.FeedbackEntry{Rating: 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Append(ctx, tt.contact, tt.rec, tt.fb)
			if !errors.Is(err, ledger.ErrInvalidEntry) {
				t.Errorf("Append err = %v, want ErrInvalidEntry", err)
			}
		})
	}
}

func TestAppend_ConcurrentWritersNeverCollide(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const writers = 12
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			contact := "shared"
			if i%3 == 0 {
				contact = "other"
			}
			if _, err := s.Append(ctx, contact, record(fmt.Sprintf("r%d", i), contact, i, 1), nil); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent Append: %v", err)
	}

	h, _ := s.ReadHistory(ctx, "shared")
	if len(h.Entries) != 8 {
		t.Fatalf("shared entries = %d, want 8", len(h.Entries))
	}
	for i, e := range h.Entries {
		if e.Seq != i+1 {
			t.Errorf("entry %d seq = %d, want %d", i, e.Seq, i+1)
		}
	}
}

func TestAppend_CommitFailureLeavesNoEntry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	s.FailCommit(errors.New("disk full"))

	if _, err := s.Append(ctx, "c1", record("r1", "c1", 1, 1), nil); err == nil {
		t.Fatal("Append expected commit error")
	}
	h, _ := s.ReadHistory(ctx, "c1")
	if len(h.Entries) != 0 {
		t.Errorf("entries after failed commit = %d, want 0", len(h.Entries))
	}
}

func TestEntries_AreAppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Append(ctx, "c1", record("r1", "c1", 1, 1), nil); err != nil {
		t.Fatalf("Append: %v", err)
	}

	if _, err := s.DB().Exec(`UPDATE entries SET quality_score = 100`); err == nil {
		t.Error("UPDATE should be rejected")
	}
	if _, err := s.DB().Exec(`DELETE FROM entries`); err == nil {
		t.Error("DELETE should be rejected")
	}
}

// ─── FindRecord / RecentContacts ────────────────────────────────────────────

func TestFindRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Append(ctx, "c1", record("r1", "c1", 42, 1), nil); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.FindRecord(ctx, "r1")
	if err != nil {
		t.Fatalf("FindRecord: %v", err)
	}
	if got.QualityScore != 42 {
		t.Errorf("QualityScore = %d, want 42", got.QualityScore)
	}
	if _, err := s.FindRecord(ctx, "missing"); !errors.Is(err, ledger.ErrRecordNotFound) {
		t.Errorf("FindRecord(missing) err = %v, want ErrRecordNotFound", err)
	}
}

func TestRecentContacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	defer ledger.SetClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})()

	mustAppend := func(contact, id string, score int) {
		if _, err := s.Append(ctx, contact, record(id, contact, score, 1), nil); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	mustAppend("alice", "r1", 40)
	mustAppend("bob", "r2", 50)
	mustAppend("alice", "r3", 70)

	got, err := s.RecentContacts(ctx, 10)
	if err != nil {
		t.Fatalf("RecentContacts: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("contacts = %d, want 2", len(got))
	}
	if got[0].ContactID != "alice" || got[0].Entries != 2 || got[0].Iterations != 2 || got[0].LastScore != 70 {
		t.Errorf("first contact = %+v", got[0])
	}
	if got[1].ContactID != "bob" {
		t.Errorf("second contact = %+v", got[1])
	}
}
