package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Tegath/kaleads/internal/domain"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds ledger store configuration.
type Config struct {
	DataDir string
	// MaxHistory caps the entries returned by ReadHistory (newest kept).
	// Zero means unlimited.
	MaxHistory int
}

// DefaultConfig returns the default configuration for the ledger store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:    filepath.Join(home, ".kaleads"),
		MaxHistory: 0,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the SQLite-backed ledger.
type Store struct {
	db    *sql.DB
	cfg   Config
	hooks storeHooks

	// locks serializes appends per contact so sequence numbers never collide.
	locks sync.Map // contactID -> *sync.Mutex
}

var _ Reviewer = (*Store)(nil)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type storeHooks struct {
	exec    func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error)
	query   func(ctx context.Context, db queryer, query string, args ...any) (*sql.Rows, error)
	beginTx func(ctx context.Context, db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func defaultStoreHooks() storeHooks {
	return storeHooks{
		exec: func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
			return db.ExecContext(ctx, query, args...)
		},
		query: func(ctx context.Context, db queryer, query string, args ...any) (*sql.Rows, error) {
			return db.QueryContext(ctx, query, args...)
		},
		beginTx: func(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
			return db.BeginTx(ctx, nil)
		},
		commit: func(tx *sql.Tx) error {
			return tx.Commit()
		},
	}
}

func (s *Store) execHook(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
	if s.hooks.exec != nil {
		return s.hooks.exec(ctx, db, query, args...)
	}
	return db.ExecContext(ctx, query, args...)
}

func (s *Store) queryHook(ctx context.Context, db queryer, query string, args ...any) (*sql.Rows, error) {
	if s.hooks.query != nil {
		return s.hooks.query(ctx, db, query, args...)
	}
	return db.QueryContext(ctx, query, args...)
}

func (s *Store) beginTxHook(ctx context.Context) (*sql.Tx, error) {
	if s.hooks.beginTx != nil {
		return s.hooks.beginTx(ctx, s.db)
	}
	return s.db.BeginTx(ctx, nil)
}

func (s *Store) commitHook(tx *sql.Tx) error {
	if s.hooks.commit != nil {
		return s.hooks.commit(tx)
	}
	return tx.Commit()
}

// New creates a new Store with the given configuration.
// It creates the data directory if needed, opens SQLite with WAL mode,
// and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("ledger: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "ledger.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("ledger: open database: %w", err)
	}

	// One connection keeps the pragmas below in effect for every query
	// and lets SQLite serialize writers without SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	// SQLite performance pragmas
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("ledger: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg, hooks: defaultStoreHooks()}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ledger: migration: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS entries (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			contact_id    TEXT    NOT NULL,
			seq           INTEGER NOT NULL,
			record_id     TEXT    NOT NULL,
			client_id     TEXT    NOT NULL,
			quality_score INTEGER NOT NULL,
			record_json   TEXT    NOT NULL,
			feedback_json TEXT,
			proposal_json TEXT,
			created_at    TEXT    NOT NULL,
			UNIQUE (contact_id, seq)
		);

		CREATE INDEX IF NOT EXISTS idx_entries_contact ON entries(contact_id, seq);
		CREATE INDEX IF NOT EXISTS idx_entries_record  ON entries(record_id);
		CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at DESC);
	`
	if _, err := s.execHook(ctx, s.db, schema); err != nil {
		return err
	}

	// History is append-only at the storage level too.
	triggers := `
		CREATE TRIGGER IF NOT EXISTS entries_no_update BEFORE UPDATE ON entries
		BEGIN
			SELECT RAISE(ABORT, 'ledger entries are append-only');
		END;

		CREATE TRIGGER IF NOT EXISTS entries_no_delete BEFORE DELETE ON entries
		BEGIN
			SELECT RAISE(ABORT, 'ledger entries are append-only');
		END;
	`
	if _, err := s.execHook(ctx, s.db, triggers); err != nil {
		return err
	}
	return nil
}

// ─── Append ──────────────────────────────────────────────────────────────────

// Append implements Ledger.
func (s *Store) Append(ctx context.Context, contactID string, record *domain.EmailGenerationRecord, feedback *domain.FeedbackEntry) (domain.SessionEntry, error) {
	return s.AppendReview(ctx, contactID, record, feedback, nil)
}

// AppendReview appends a record with its feedback and the proposal
// derived from it.
func (s *Store) AppendReview(ctx context.Context, contactID string, record *domain.EmailGenerationRecord, feedback *domain.FeedbackEntry, proposal *domain.ImprovementProposal) (domain.SessionEntry, error) {
	if err := validate(contactID, record, feedback); err != nil {
		return domain.SessionEntry{}, err
	}

	recordJSON, err := json.Marshal(record)
	if err != nil {
		return domain.SessionEntry{}, fmt.Errorf("ledger: encode record: %w", err)
	}
	feedbackJSON, err := nullableJSON(feedback)
	if err != nil {
		return domain.SessionEntry{}, fmt.Errorf("ledger: encode feedback: %w", err)
	}
	var proposalJSON sql.NullString
	if proposal != nil {
		if proposalJSON, err = nullableJSON(proposal); err != nil {
			return domain.SessionEntry{}, fmt.Errorf("ledger: encode proposal: %w", err)
		}
	}

	mu := s.lockFor(contactID)
	mu.Lock()
	defer mu.Unlock()

	tx, err := s.beginTxHook(ctx)
	if err != nil {
		return domain.SessionEntry{}, fmt.Errorf("ledger: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var seq int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM entries WHERE contact_id = ?`, contactID,
	).Scan(&seq); err != nil {
		return domain.SessionEntry{}, fmt.Errorf("ledger: next seq: %w", err)
	}

	now := timeNow().UTC()
	if _, err := s.execHook(ctx, tx,
		`INSERT INTO entries (contact_id, seq, record_id, client_id, quality_score, record_json, feedback_json, proposal_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		contactID, seq, record.ID, record.ClientID, record.QualityScore,
		string(recordJSON), feedbackJSON, proposalJSON, now.Format(time.RFC3339Nano),
	); err != nil {
		return domain.SessionEntry{}, fmt.Errorf("ledger: insert: %w", err)
	}

	if err := s.commitHook(tx); err != nil {
		return domain.SessionEntry{}, fmt.Errorf("ledger: commit: %w", err)
	}

	return domain.SessionEntry{
		Seq:       seq,
		Record:    *record,
		Feedback:  feedback,
		Proposal:  proposal,
		CreatedAt: now,
	}, nil
}

func (s *Store) lockFor(contactID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(contactID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func nullableJSON(v any) (sql.NullString, error) {
	switch x := v.(type) {
	case *domain.FeedbackEntry:
		if x == nil {
			return sql.NullString{}, nil
		}
	case *domain.ImprovementProposal:
		if x == nil {
			return sql.NullString{}, nil
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

// ─── Read ────────────────────────────────────────────────────────────────────

// ReadHistory implements Ledger.
func (s *Store) ReadHistory(ctx context.Context, contactID string) (*domain.Session, error) {
	query := `SELECT seq, record_json, feedback_json, proposal_json, created_at
	          FROM entries WHERE contact_id = ? ORDER BY seq ASC`
	args := []any{contactID}
	if s.cfg.MaxHistory > 0 {
		query = `SELECT seq, record_json, feedback_json, proposal_json, created_at FROM (
		           SELECT * FROM entries WHERE contact_id = ? ORDER BY seq DESC LIMIT ?
		         ) ORDER BY seq ASC`
		args = append(args, s.cfg.MaxHistory)
	}

	rows, err := s.queryHook(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: read history: %w", err)
	}
	defer rows.Close()

	session := &domain.Session{ContactID: contactID}
	for rows.Next() {
		var (
			e                      domain.SessionEntry
			recordJSON, createdAt  string
			feedbackJSON, propJSON sql.NullString
		)
		if err := rows.Scan(&e.Seq, &recordJSON, &feedbackJSON, &propJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("ledger: scan entry: %w", err)
		}
		if err := json.Unmarshal([]byte(recordJSON), &e.Record); err != nil {
			return nil, fmt.Errorf("ledger: decode record (seq %d): %w", e.Seq, err)
		}
		if feedbackJSON.Valid {
			e.Feedback = &domain.FeedbackEntry{}
			if err := json.Unmarshal([]byte(feedbackJSON.String), e.Feedback); err != nil {
				return nil, fmt.Errorf("ledger: decode feedback (seq %d): %w", e.Seq, err)
			}
		}
		if propJSON.Valid {
			e.Proposal = &domain.ImprovementProposal{}
			if err := json.Unmarshal([]byte(propJSON.String), e.Proposal); err != nil {
				return nil, fmt.Errorf("ledger: decode proposal (seq %d): %w", e.Seq, err)
			}
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		session.Entries = append(session.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: read history: %w", err)
	}
	return session, nil
}

// FindRecord returns the most recent stored copy of a record by id.
func (s *Store) FindRecord(ctx context.Context, recordID string) (*domain.EmailGenerationRecord, error) {
	rows, err := s.queryHook(ctx, s.db,
		`SELECT record_json FROM entries WHERE record_id = ? ORDER BY id DESC LIMIT 1`, recordID)
	if err != nil {
		return nil, fmt.Errorf("ledger: find record: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("ledger: find record: %w", err)
		}
		return nil, fmt.Errorf("record %s: %w", recordID, ErrRecordNotFound)
	}
	var raw string
	if err := rows.Scan(&raw); err != nil {
		return nil, fmt.Errorf("ledger: scan record: %w", err)
	}
	var rec domain.EmailGenerationRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("ledger: decode record: %w", err)
	}
	return &rec, nil
}

// RecentContacts lists contacts by most recent activity.
func (s *Store) RecentContacts(ctx context.Context, limit int) ([]ContactSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.queryHook(ctx, s.db, `
		SELECT e.contact_id,
		       (SELECT COUNT(*) FROM entries c WHERE c.contact_id = e.contact_id),
		       (SELECT COUNT(DISTINCT record_id) FROM entries c WHERE c.contact_id = e.contact_id),
		       e.quality_score, e.record_id, e.created_at
		FROM entries e
		WHERE e.seq = (SELECT MAX(seq) FROM entries m WHERE m.contact_id = e.contact_id)
		ORDER BY e.created_at DESC, e.contact_id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: recent contacts: %w", err)
	}
	defer rows.Close()

	var out []ContactSummary
	for rows.Next() {
		var c ContactSummary
		if err := rows.Scan(&c.ContactID, &c.Entries, &c.Iterations, &c.LastScore, &c.LastRecordID, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan contact: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
