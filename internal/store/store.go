package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// pragma is a connection setting applied on Open and read back by tests.
type pragma struct {
	name  string
	value string // value as written in the PRAGMA statement
}

// requiredPragmas configures every queue database:
//   - WAL so status and list reads do not wait on a running drain
//   - NORMAL synchronous; a power cut may lose the last enqueue, never corrupt the file
//   - 5s busy timeout when a second process holds the write lock
//   - foreign key enforcement
var requiredPragmas = []pragma{
	{"journal_mode", "WAL"},
	{"synchronous", "NORMAL"},
	{"busy_timeout", "5000"},
	{"foreign_keys", "ON"},
}

// migration upgrades a database from version-1 to version.
type migration struct {
	version int
	name    string
	apply   func(tx *sql.Tx) error
}

// migrations run in order, each in its own transaction, for every step above
// the database's user_version. schema.sql always describes the latest shape,
// so on a fresh database each step is a no-op that only bumps the version.
var migrations = []migration{
	{version: 1, name: "add sync_leases", apply: migrateToV1},
}

// Store is the SQLite home of the mutation queue, the drain lease and the
// offline read cache.
//
// Thread-safety: the pool is pinned to one connection, so every method is
// safe for concurrent use and statements run one at a time.
type Store struct {
	db *sql.DB
}

// Open creates or opens the queue database at path, applies the required
// pragmas and brings the schema up to date.
//
// The special path ":memory:" opens a private in-memory database that lives
// as long as the Store, which the scenario harness relies on.
//
// Opening an already migrated database changes nothing.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open queue database %q: %w", path, err)
	}

	// One connection: a single writer, and ":memory:" stays one database
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to queue database %q: %w", path, err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure queue database %q: %w", path, err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare queue database %q: %w", path, err)
	}

	return &Store{db: db}, nil
}

// Close closes the database. Closing a zero Store is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping verifies the database is reachable. Serves as the API health check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func applyPragmas(db *sql.DB) error {
	for _, p := range requiredPragmas {
		stmt := fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

// applySchema creates missing tables, then runs pending migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return runMigrations(db)
}

// runMigrations applies every migration above the stored user_version. The
// version is bumped inside each step's transaction, so an interrupted upgrade
// resumes at the step that failed.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := runMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

func runMigration(db *sql.DB, m migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate to v%d (%s): begin: %w", m.version, m.name, err)
	}
	defer tx.Rollback()

	if err := m.apply(tx); err != nil {
		return fmt.Errorf("migrate to v%d (%s): %w", m.version, m.name, err)
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return fmt.Errorf("migrate to v%d (%s): set user_version: %w", m.version, m.name, err)
	}
	return tx.Commit()
}

// migrateToV1 adds the lease table to queues created before cross-process
// drain exclusion.
func migrateToV1(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sync_leases (
			name       TEXT    PRIMARY KEY,
			holder     TEXT    NOT NULL,
			expires_at INTEGER NOT NULL
		)
	`)
	return err
}

// verifyPragma checks that a pragma reads back as expected.
// Used for testing.
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
