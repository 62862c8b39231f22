package registry

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/Iron-Ham/filemutex/internal/errors"
)

const schema = `CREATE TABLE IF NOT EXISTS refcounts (
	path  TEXT PRIMARY KEY,
	count INTEGER NOT NULL
)`

// SQLiteStore persists counts in the refcounts table of a SQLite database.
type SQLiteStore struct {
	path string
	db   *sql.DB
}

// OpenSQLiteStore opens (creating if needed) the database at path and
// ensures the refcounts table exists.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	// One connection keeps every statement on the same WAL snapshot.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA journal_mode=WAL",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init registry database: %w", err)
		}
	}

	return &SQLiteStore{path: path, db: db}, nil
}

// Location returns the database path.
func (s *SQLiteStore) Location() string {
	return s.path
}

// Load reads every row. A query or scan failure is reported as corruption.
func (s *SQLiteStore) Load() (Counts, error) {
	rows, err := s.db.Query("SELECT path, count FROM refcounts")
	if err != nil {
		return make(Counts), fmt.Errorf("%w: %s: %v", errors.ErrRegistryCorrupt, s.path, err)
	}
	defer rows.Close()

	counts := make(Counts)
	for rows.Next() {
		var (
			path  string
			count int
		)
		if err := rows.Scan(&path, &count); err != nil {
			return make(Counts), fmt.Errorf("%w: %s: %v", errors.ErrRegistryCorrupt, s.path, err)
		}
		counts[path] = count
	}
	if err := rows.Err(); err != nil {
		return make(Counts), fmt.Errorf("%w: %s: %v", errors.ErrRegistryCorrupt, s.path, err)
	}
	return counts.clone(), nil
}

// Save replaces the table contents in one transaction.
func (s *SQLiteStore) Save(counts Counts) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin registry transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec("DELETE FROM refcounts"); err != nil {
		return fmt.Errorf("clear refcounts: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO refcounts (path, count) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for path, count := range counts.clone() {
		if _, err := stmt.Exec(path, count); err != nil {
			return fmt.Errorf("insert refcount for %s: %w", path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit refcounts: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
