package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store provides access to the local catalog database.
type Store struct {
	db   *sql.DB
	path string
}

// NotFoundError indicates a requested record does not exist.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.Entity)
	}
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// IsNotFound returns true when err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

const schema = `
CREATE TABLE IF NOT EXISTS connections (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    base_url       TEXT NOT NULL,
    sync_enabled   INTEGER NOT NULL DEFAULT 1,
    trust_tls      INTEGER NOT NULL DEFAULT 0,
    has_credential INTEGER NOT NULL DEFAULT 0,
    last_sync_at   TEXT
);

CREATE TABLE IF NOT EXISTS services (
    id              TEXT PRIMARY KEY,
    connection_id   TEXT,
    origin_key      TEXT,
    name            TEXT NOT NULL,
    url             TEXT,
    icon            TEXT,
    description     TEXT,
    category        TEXT,
    sort_order      INTEGER NOT NULL DEFAULT 0,
    is_manual       INTEGER NOT NULL DEFAULT 0,
    trust_tls       INTEGER NOT NULL DEFAULT 0,
    health          TEXT NOT NULL DEFAULT 'unknown',
    last_checked_at TEXT
);

CREATE TABLE IF NOT EXISTS bookmarks (
    id            TEXT PRIMARY KEY,
    connection_id TEXT,
    origin_key    TEXT,
    name          TEXT NOT NULL,
    href          TEXT NOT NULL,
    icon          TEXT,
    abbr          TEXT,
    category      TEXT,
    sort_order    INTEGER NOT NULL DEFAULT 0,
    is_manual     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS category_icons (
    category TEXT PRIMARY KEY,
    icon     TEXT,
    cleared  INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_services_origin  ON services(connection_id, origin_key);
CREATE INDEX IF NOT EXISTS idx_bookmarks_origin ON bookmarks(connection_id, origin_key);
`

// Open initialises the catalog store at path, creating the schema if
// needed.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("catalog: ensure data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open store: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("catalog: apply pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the filesystem path of the backing database.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("catalog: rollback failed after %v: %w", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

func formatTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &t
}
