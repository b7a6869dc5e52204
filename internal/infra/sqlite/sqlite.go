// Package sqlite provides persistent storage for StepCoin on a single-file
// SQLite database. All writes that must be atomic (ledger state + history)
// run inside one transaction.
package sqlite

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle and exposes typed operations.
type DB struct {
	db   *sql.DB
	path string
}

// Open creates or opens the StepCoin database inside dir and applies all
// migrations.
func Open(dir string) (*DB, error) {
	path := filepath.Join(dir, "stepcoin.db")
	handle, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// modernc sqlite is single-writer; serialize at the pool level.
	handle.SetMaxOpenConns(1)

	db := &DB{db: handle, path: path}
	if err := db.migrate(); err != nil {
		handle.Close()
		return nil, err
	}
	return db, nil
}

// Close releases the database handle.
func (db *DB) Close() error {
	return db.db.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// migrate applies every schema statement. Each string is a single SQL
// statement (SQLite executes one at a time).
func (db *DB) migrate() error {
	for _, stmt := range Migrations() {
		if _, err := db.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, stmt)
		}
	}
	return nil
}

// Migrations returns the full schema migration statements.
func Migrations() []string {
	return []string{
		// Per-user ledger accounting state
		`CREATE TABLE IF NOT EXISTS ledger_state (
			user_id              TEXT PRIMARY KEY,
			last_observed_steps  INTEGER NOT NULL DEFAULT 0,
			walking_balance      INTEGER NOT NULL DEFAULT 0 CHECK(walking_balance >= 0),
			meditation_balance   INTEGER NOT NULL DEFAULT 0 CHECK(meditation_balance >= 0),
			last_bonus_date      TEXT,
			total_lifetime_steps INTEGER NOT NULL DEFAULT 0,
			updated_at           TEXT NOT NULL DEFAULT (datetime('now'))
		)`,

		// Append-only accrual/redemption history
		`CREATE TABLE IF NOT EXISTS ledger_history (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id     TEXT NOT NULL,
			at          TEXT NOT NULL,
			amount      INTEGER NOT NULL,
			source      TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_user ON ledger_history(user_id, id)`,

		// Accounts
		`CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL UNIQUE,
			username      TEXT NOT NULL UNIQUE,
			first_name    TEXT NOT NULL DEFAULT '',
			last_name     TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL,
			verified      INTEGER NOT NULL DEFAULT 0,
			verify_token  TEXT,
			daily_goal    INTEGER NOT NULL DEFAULT 10000,
			created_at    TEXT NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_users_username ON users(username)`,

		// Daily step counts, one row per user per calendar date.
		// Feeds the friends leaderboard and goal progress.
		`CREATE TABLE IF NOT EXISTS daily_steps (
			user_id TEXT NOT NULL,
			date    TEXT NOT NULL,
			steps   INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, date)
		)`,

		// Social graph
		`CREATE TABLE IF NOT EXISTS friends (
			user_id   TEXT NOT NULL,
			friend_id TEXT NOT NULL,
			PRIMARY KEY (user_id, friend_id)
		)`,
		`CREATE TABLE IF NOT EXISTS friend_requests (
			id         TEXT PRIMARY KEY,
			from_user  TEXT NOT NULL,
			to_user    TEXT NOT NULL,
			status     TEXT NOT NULL DEFAULT 'pending',
			created_at TEXT NOT NULL DEFAULT (datetime('now')),
			UNIQUE(from_user, to_user)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_requests_to ON friend_requests(to_user, status)`,

		// Redemption receipts recorded for downstream delivery
		`CREATE TABLE IF NOT EXISTS redemption_receipts (
			id        TEXT PRIMARY KEY,
			user_id   TEXT NOT NULL,
			item_name TEXT NOT NULL,
			cost      INTEGER NOT NULL,
			at        TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_receipts_user ON redemption_receipts(user_id)`,
	}
}
