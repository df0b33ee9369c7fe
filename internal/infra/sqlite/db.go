// Package sqlite is the durable store for users, skills, exchanges, and the
// credit ledger. It is a thin write abstraction: all business legality lives
// in the domain state machine and the app services; this package only
// guarantees that the multi-row units it exposes commit atomically.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle.
type DB struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies all
// migrations. Transactions are opened with immediate locking so two writers
// on the same exchange serialize instead of failing mid-unit.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db := &DB{db: sdb}
	if err := db.migrate(); err != nil {
		sdb.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens an in-memory database, used by tests and the CLI dry-run
// paths. A single connection keeps the memory database alive.
func OpenMemory() (*DB, error) {
	sdb, err := sql.Open("sqlite", "file::memory:?_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sdb.SetMaxOpenConns(1)

	db := &DB{db: sdb}
	if err := db.migrate(); err != nil {
		sdb.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the underlying handle.
func (db *DB) Close() error { return db.db.Close() }

// Migrations returns the schema migration statements.
// Each string is a single SQL statement (SQLite executes one at a time).
func Migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			email        TEXT NOT NULL UNIQUE,
			name         TEXT NOT NULL,
			time_credits INTEGER NOT NULL DEFAULT 0 CHECK (time_credits >= 0),
			created_at   INTEGER NOT NULL,
			updated_at   INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS skills (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			name     TEXT NOT NULL UNIQUE,
			category TEXT NOT NULL DEFAULT ''
		)`,

		`CREATE TABLE IF NOT EXISTS user_skills (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id     INTEGER NOT NULL REFERENCES users(id),
			skill_id    INTEGER NOT NULL REFERENCES skills(id),
			proficiency INTEGER NOT NULL DEFAULT 1,
			offering    INTEGER NOT NULL DEFAULT 0,
			UNIQUE(user_id, skill_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_skills_offering ON user_skills(user_id, skill_id, offering)`,

		`CREATE TABLE IF NOT EXISTS exchanges (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			offerer_id     INTEGER NOT NULL REFERENCES users(id),
			learner_id     INTEGER NOT NULL REFERENCES users(id),
			skill_id       INTEGER NOT NULL REFERENCES skills(id),
			scheduled_at   INTEGER NOT NULL,
			duration_hours REAL NOT NULL,
			status         TEXT NOT NULL DEFAULT 'Pending',
			meeting_link   TEXT NOT NULL DEFAULT '',
			notes          TEXT NOT NULL DEFAULT '',
			created_at     INTEGER NOT NULL,
			updated_at     INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_offerer ON exchanges(offerer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_learner ON exchanges(learner_id)`,
		`CREATE INDEX IF NOT EXISTS idx_exchanges_overdue ON exchanges(status, scheduled_at)`,

		`CREATE TABLE IF NOT EXISTS credit_transactions (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id          INTEGER NOT NULL REFERENCES users(id),
			amount           INTEGER NOT NULL,
			balance_after    INTEGER NOT NULL,
			transaction_type TEXT NOT NULL,
			reason           TEXT NOT NULL,
			related_user_id  INTEGER,
			exchange_id      INTEGER,
			created_at       INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_user ON credit_transactions(user_id, id DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_exchange ON credit_transactions(exchange_id)`,
	}
}

func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// begin opens a write transaction. With _txlock=immediate the database
// write lock is taken up front, so concurrent units on the same rows
// serialize rather than deadlock.
func (db *DB) begin(ctx context.Context) (*sql.Tx, error) {
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return tx, nil
}

func unix(t time.Time) int64 { return t.Unix() }

func fromUnix(sec int64) time.Time { return time.Unix(sec, 0).UTC() }
