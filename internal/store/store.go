package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SchemaVersion is the latest migration version
const SchemaVersion = 1

// Store is the SQLite-backed registry, ledger and run history
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens or creates the database at path and runs migrations
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite doesn't handle multiple writers well; one connection also
	// serializes the Arm* transactions within this process
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db, path: path, now: time.Now}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// WithClock replaces the time source used for timestamps
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// Path returns the database file path
func (s *Store) Path() string {
	return s.path
}

// Ping checks if the database is accessible
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() time.Time {
	return s.now().UTC()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var currentVersion int

	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, `
			-- Model Registry
			CREATE TABLE IF NOT EXISTS models (
				repo TEXT PRIMARY KEY,
				ready BOOLEAN NOT NULL DEFAULT FALSE,
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL
			);

			-- Users associated to the models they trained
			CREATE TABLE IF NOT EXISTS trainings (
				username TEXT NOT NULL,
				repo TEXT NOT NULL REFERENCES models(repo),
				created_at DATETIME NOT NULL,
				PRIMARY KEY (username, repo)
			);

			CREATE INDEX IF NOT EXISTS idx_trainings_username ON trainings(username);

			-- Classification Ledger
			CREATE TABLE IF NOT EXISTS classifications (
				repo TEXT PRIMARY KEY,
				model TEXT NOT NULL,
				username TEXT,
				classified BOOLEAN NOT NULL DEFAULT FALSE,
				started_at DATETIME NOT NULL,
				completed_at DATETIME
			);

			-- Executor run history
			CREATE TABLE IF NOT EXISTS runs (
				id TEXT PRIMARY KEY,
				kind TEXT NOT NULL,
				repo TEXT NOT NULL,
				model TEXT,
				batch BOOLEAN NOT NULL DEFAULT FALSE,
				status TEXT NOT NULL DEFAULT 'queued',
				error TEXT,
				queued_at DATETIME NOT NULL,
				started_at DATETIME,
				finished_at DATETIME
			);

			CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
			CREATE INDEX IF NOT EXISTS idx_runs_queued ON runs(queued_at);
		`},
	}

	for _, m := range migrations {
		if m.version > currentVersion {
			if _, err := s.db.Exec(m.sql); err != nil {
				return fmt.Errorf("failed to apply migration %d: %w", m.version, err)
			}

			if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", m.version, err)
			}
		}
	}

	return nil
}

// Version returns the applied schema version
func (s *Store) Version(ctx context.Context) (int, error) {
	var v int

	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}

	return v, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}

	return sql.NullTime{Time: t.UTC(), Valid: true}
}
