// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside the Go binary as a single
// file. No separate database server to install, configure, or manage. That
// fits this service: a single-server deployment whose only hot write is a
// per-user counter.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which needs a C compiler and makes
// cross-compilation painful. modernc.org/sqlite is a pure Go translation of
// the SQLite sources — works everywhere Go works.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/forklens.db" → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Ping forces an immediate connection so a bad path or permissions issue
	// surfaces here rather than on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows concurrent reads while a write is happening — needed
	// because every authenticated read path may write the quota counter.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite; saved_graphs references
	// users, so turn them on.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS is idempotent, so this is safe on every start.
// For a single-file deployment that beats carrying a migration tool.
func (db *DB) migrate() error {
	// Users carry the quota state (daily_searches / last_search_reset)
	// directly — the counter is per-user and mutated in place, so a separate
	// quota table would just add a join to the hottest query in the system.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id                TEXT PRIMARY KEY,
			github_id         INTEGER NOT NULL UNIQUE,
			login             TEXT NOT NULL,
			email             TEXT NOT NULL DEFAULT '',
			avatar_url        TEXT NOT NULL DEFAULT '',
			daily_searches    INTEGER NOT NULL DEFAULT 0,
			last_search_reset DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// One snapshot per (user, repository): the UNIQUE constraint is the
	// natural key the read path upserts against. payload is the full
	// ForkReport as JSON, stored verbatim for replay without re-fetching.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS saved_graphs (
			id           TEXT PRIMARY KEY,
			user_id      TEXT NOT NULL REFERENCES users(id),
			repo_owner   TEXT NOT NULL,
			repo_name    TEXT NOT NULL,
			fork_count   INTEGER NOT NULL DEFAULT 0,
			active_count INTEGER NOT NULL DEFAULT 0,
			payload      TEXT NOT NULL DEFAULT '{}',
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(user_id, repo_owner, repo_name)
		);
		CREATE INDEX IF NOT EXISTS idx_saved_graphs_user_id ON saved_graphs(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating saved_graphs table: %w", err)
	}

	return nil
}
