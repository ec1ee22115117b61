package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/powsim/internal/engine"
)

//go:embed schema.sql
var schemaSQL string

// currentSchemaVersion is the PRAGMA user_version this build writes.
// Version 1: suite_runs, runs, decisions.
const currentSchemaVersion = 1

// Store is the run history: standalone runs, suite runs and their
// decision logs in one SQLite file.
type Store struct {
	db    *sql.DB
	ids   IDGenerator
	clock engine.Clock
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator sets the generator for run and suite run IDs.
// Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Store) {
		s.ids = g
	}
}

// WithClock sets the clock that stamps created_at. Default: the system clock.
func WithClock(c engine.Clock) Option {
	return func(s *Store) {
		s.clock = c
	}
}

// pragma is one connection setting applied on Open, with the value
// "PRAGMA name" reports once it is in effect.
type pragma struct {
	name   string
	value  string
	report string
}

// pragmas are applied in order on every Open.
var pragmas = []pragma{
	{name: "journal_mode", value: "WAL", report: "wal"},   // readers never block the writer
	{name: "synchronous", value: "NORMAL", report: "1"},   // fsync at checkpoints only
	{name: "busy_timeout", value: "5000", report: "5000"}, // milliseconds
	{name: "foreign_keys", value: "ON", report: "1"},
}

// Open creates or opens the history database at path, applies the pragmas
// and brings the schema up to date. Opening an existing database again is
// safe.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open history database %s: %w", path, err)
	}

	// SQLite has one writer; a single connection also keeps the
	// per-connection pragmas in force for every statement.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, p := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s = %s", p.name, p.value)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p.name, err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, ids: UUIDv7Generator{}, clock: engine.SystemClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// now returns the creation timestamp for a new row.
func (s *Store) now() int64 {
	return s.clock.Now().UTC().UnixNano()
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

// Close closes the database. Closing a Store without a database is a no-op.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate creates missing tables and stamps the schema version.
//
// Version 1 is schema.sql as written; a later version adds its steps
// between the check and the stamp. A database from a newer powsim is
// refused rather than written with an older layout.
func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("stamp schema version: %w", err)
	}
	return nil
}

// pragmaValue reads the current value of a pragma.
func (s *Store) pragmaValue(name string) (string, error) {
	var value string
	if err := s.db.QueryRow("PRAGMA " + name).Scan(&value); err != nil {
		return "", fmt.Errorf("read pragma %s: %w", name, err)
	}
	return value, nil
}
