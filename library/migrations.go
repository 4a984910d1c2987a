package library

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

type migration struct {
	version int
	stmts   []string
}

// migrations are applied in order; each version runs once.
var migrations = []migration{
	{
		version: 1,
		stmts: []string{
			`CREATE TABLE IF NOT EXISTS books (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				title TEXT NOT NULL,
				author TEXT NOT NULL,
				publisher TEXT,
				isbn TEXT UNIQUE,
				total_copies INTEGER NOT NULL CHECK (total_copies > 0),
				available_copies INTEGER NOT NULL,
				added_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				search_key TEXT NOT NULL DEFAULT '',
				CHECK (available_copies >= 0 AND available_copies <= total_copies)
			);`,
			`CREATE TABLE IF NOT EXISTS members (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				email TEXT NOT NULL UNIQUE COLLATE NOCASE,
				phone TEXT,
				address TEXT,
				joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				status TEXT NOT NULL DEFAULT 'Active' CHECK (status IN ('Active', 'Inactive')),
				search_key TEXT NOT NULL DEFAULT ''
			);`,
			// Returned loans outlive their member; open loans block the delete.
			`CREATE TABLE IF NOT EXISTS issues (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				ref TEXT NOT NULL UNIQUE,
				book_id INTEGER NOT NULL REFERENCES books(id),
				member_id INTEGER REFERENCES members(id) ON DELETE SET NULL,
				issued_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				due_at TIMESTAMP NOT NULL,
				returned_at TIMESTAMP,
				status TEXT NOT NULL DEFAULT 'Issued' CHECK (status IN ('Issued', 'Returned'))
			);`,
			`CREATE INDEX IF NOT EXISTS idx_issues_book_status ON issues(book_id, status);`,
			`CREATE INDEX IF NOT EXISTS idx_issues_member_status ON issues(member_id, status);`,
			`CREATE TABLE IF NOT EXISTS fines (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				issue_id INTEGER NOT NULL UNIQUE REFERENCES issues(id),
				amount INTEGER NOT NULL CHECK (amount >= 0),
				paid_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
				status TEXT NOT NULL DEFAULT 'Paid'
			);`,
		},
	},
}

func schemaVersion() int { return migrations[len(migrations)-1].version }

func applyMigrations(db *sqlx.DB) error {
	// WAL improves write concurrency.
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return fmt.Errorf("create meta: %w", err)
	}

	var current int
	_ = db.Get(&current, `SELECT CAST(value AS INTEGER) FROM meta WHERE key='schema_version';`)
	if current >= schemaVersion() {
		return nil
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		for _, stmt := range m.stmts {
			if _, err := tx.Exec(stmt); err != nil {
				return fmt.Errorf("apply migration %d: %w", m.version, err)
			}
		}
	}

	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion()); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	return tx.Commit()
}
