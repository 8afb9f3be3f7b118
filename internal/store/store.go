package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store is the run log: one row per run, task invocation, task completion,
// artifact and artifact hand-over, each stamped with the runner's seq.
// The runner is the only writer; the trace command and the harness only
// read.
type Store struct {
	db *sql.DB
}

// pragma is a connection setting and the value SQLite reports back for it.
type pragma struct {
	name  string
	value string
	want  string
}

// pragmas tune SQLite for one writer with readers that open the same file
// while a run is in progress (pipekit trace against a live run).
var pragmas = []pragma{
	{"journal_mode", "WAL", "wal"},
	{"synchronous", "NORMAL", "1"},
	{"busy_timeout", "5000", "5000"},
	// invocations, completions, artifacts and reads all reference runs
	{"foreign_keys", "ON", "1"},
}

// migration is an incremental change applied once, tracked through
// PRAGMA user_version. schema.sql holds the baseline tables.
type migration struct {
	version int
	name    string
	stmt    string
}

var migrations = []migration{
	{
		// Custom paths repeat across runs, so the index is not unique.
		version: 1,
		name:    "artifacts by uri",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_artifacts_run_uri ON artifacts(run_id, uri)`,
	},
	{
		version: 2,
		name:    "runs by start seq",
		stmt:    `CREATE INDEX IF NOT EXISTS idx_runs_start_seq ON runs(start_seq)`,
	},
}

// schemaVersion is the user_version of a fully migrated store.
var schemaVersion = migrations[len(migrations)-1].version

// Open creates or opens the run log at path. ":memory:" gives a private
// in-memory log. Opening an existing log is safe and applies any pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragma %s: %w", p.name, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// migrate applies every migration newer than the store's user_version.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if _, err := db.Exec(m.stmt); err != nil {
			return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
		}
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

// verifyPragma checks that a pragma reports the expected value.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	if err := s.db.QueryRow(fmt.Sprintf("PRAGMA %s", name)).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
