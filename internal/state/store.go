// Package state manages the SQLite database that caches quotes, collections,
// collection membership and device preferences.
//
// Only this package may open or query the database. All other packages receive
// a [*Store] and call its methods. Every committed write notifies the store's
// [live.Hub] with the tables it touched, which drives live queries.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/njoerd114/quoteshelf/internal/live"
)

// Observable tables.
const (
	TableQuotes           live.Table = "quotes"
	TableCollections      live.Table = "collections"
	TableCollectionQuotes live.Table = "collection_quotes"
	TablePreferences      live.Table = "preferences"
)

// SchemaVersion is recorded in PRAGMA user_version. No migrations exist yet.
const SchemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS quotes (
    id           TEXT    PRIMARY KEY,
    text         TEXT    NOT NULL,
    author       TEXT    NOT NULL,
    category     TEXT    NOT NULL,
    created_at   TEXT    NOT NULL DEFAULT '',
    is_favorite  INTEGER NOT NULL DEFAULT 0,
    last_updated TEXT    NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_quotes_created_at ON quotes (created_at);
CREATE INDEX IF NOT EXISTS idx_quotes_category   ON quotes (category);

CREATE TABLE IF NOT EXISTS collections (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    user_id     TEXT NOT NULL,
    created_at  TEXT NOT NULL DEFAULT '',
    updated_at  TEXT NOT NULL DEFAULT '',
    last_synced TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_collections_user ON collections (user_id);

CREATE TABLE IF NOT EXISTS collection_quotes (
    collection_id TEXT NOT NULL,
    quote_id      TEXT NOT NULL,
    added_at      TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (collection_id, quote_id)
);

CREATE TABLE IF NOT EXISTS preferences (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

PRAGMA user_version = 1;
`

// Store is the SQLite-backed local cache.
type Store struct {
	db  *sql.DB
	hub *live.Hub
	now func() time.Time
}

// DefaultDBPath returns the default path for the cache database:
// ~/.local/share/quoteshelf/cache.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", "quoteshelf", "cache.db"), nil
}

// Open opens (or creates) the SQLite database at path, applies the schema, and
// configures WAL mode for better concurrent read performance.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}

	// Single writer to avoid SQLITE_BUSY under WAL.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return New(db), nil
}

// New wraps an already-initialised database handle. Open is the normal entry
// point; New lets tests supply their own driver.
func New(db *sql.DB) *Store {
	return &Store{db: db, hub: live.NewHub(), now: time.Now}
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Changes implements [live.Source].
func (s *Store) Changes(tables ...live.Table) (<-chan struct{}, func()) {
	return s.hub.Changes(tables...)
}

// migrate applies the schema DDL idempotently (CREATE IF NOT EXISTS).
func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Version returns the schema version recorded in the database.
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int
	if err := s.db.QueryRowContext(ctx, `PRAGMA user_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// IsEmpty reports whether the quotes table has no rows.
// Used by the first-run bootstrap to detect a fresh install.
func (s *Store) IsEmpty(ctx context.Context) (bool, error) {
	n, err := s.CountQuotes(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// inTx runs fn inside a transaction and notifies tables after commit.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error, tables ...live.Table) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	s.hub.Notify(tables...)
	return nil
}

// exec runs a single statement and notifies tables on success.
func (s *Store) exec(ctx context.Context, q string, args []any, tables ...live.Table) (sql.Result, error) {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	s.hub.Notify(tables...)
	return res, nil
}

// --- helpers -----------------------------------------------------------------

// scanner matches both *sql.Row and *sql.Rows so scan helpers can be reused.
type scanner interface {
	Scan(dest ...any) error
}

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
