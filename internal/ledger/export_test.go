package ledger

import (
	"database/sql"
	"time"
)

// DB exposes the internal *sql.DB for test helpers in ledger_test.
// This file only compiles during `go test`.
func (s *Store) DB() *sql.DB {
	return s.db
}

// FailCommit makes every later commit fail with err.
func (s *Store) FailCommit(err error) {
	s.hooks.commit = func(tx *sql.Tx) error {
		_ = tx.Rollback()
		return err
	}
}

// SetClock replaces the package clock until the returned func is called.
func SetClock(now func() time.Time) (restore func()) {
	prev := timeNow
	timeNow = now
	return func() { timeNow = prev }
}
