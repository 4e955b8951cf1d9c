package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Layout version tracking (PRAGMA user_version):
// 0 - Empty file
// 1 - Catalog tables plus index_entries primary-key lookup index
const currentLayoutVersion = 1

// Driver names accepted in Config.Driver.
const (
	DriverMattn   = "sqlite3"
	DriverModernc = "sqlite"
)

// Config selects the SQLite driver, where databases live and how values are
// encoded.
type Config struct {
	// Driver is DriverMattn or DriverModernc.
	Driver string

	// Dir holds one file per database. Empty keeps databases in memory for
	// the lifetime of the process.
	Dir string

	// Codec compresses stored values. Reads accept every codec.
	Codec Codec
}

// Validate checks the driver is registered and the codec known.
func (c Config) Validate() error {
	if !slices.Contains(sql.Drivers(), c.Driver) {
		return fmt.Errorf("sqlite driver %q is not available (registered: %v)", c.Driver, sql.Drivers())
	}
	if !c.Codec.valid() {
		return fmt.Errorf("unknown value codec %d", c.Codec)
	}
	return nil
}

// Store is one open engine database.
// Uses a single SQLite connection: the engine serializes every transaction.
type Store struct {
	name  string
	path  string
	db    *sql.DB
	codec Codec
}

// Open creates or opens the database called name.
// Applies required pragmas and layout migrations automatically.
//
// The database is configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode (balance durability/performance)
//   - 5-second busy timeout for lock contention
//   - Foreign key enforcement
//
// This function is idempotent - safe to call multiple times.
func Open(ctx context.Context, cfg Config, name string) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("database name is required")
	}

	dsn, path := dataSource(cfg, name)
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer at a time; the engine never needs more
	// than one connection per database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{name: name, path: path, db: db, codec: cfg.Codec}, nil
}

// Destroy removes the files of the database called name. The database must
// not be open. Missing files are not an error.
func Destroy(cfg Config, name string) error {
	_, path := dataSource(cfg, name)
	if path == "" {
		return nil
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// dataSource returns the driver DSN and, for file-backed databases, the
// file path.
func dataSource(cfg Config, name string) (dsn, path string) {
	escaped := url.PathEscape(name)
	if cfg.Dir == "" {
		return "file:" + escaped + "?mode=memory&cache=shared", ""
	}
	path = filepath.Join(cfg.Dir, escaped+".sqlite")
	return path, path
}

// Name returns the database name.
func (s *Store) Name() string {
	return s.name
}

// Path returns the database file, or "" for in-memory databases.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Begin starts a SQL transaction. The engine maps each of its transactions
// onto exactly one Tx.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx, codec: s.codec}, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates the layout tables if they don't exist and runs
// layout migrations. This function is idempotent.
func applySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental layout migrations based on user_version.
func runMigrations(ctx context.Context, db *sql.DB) error {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(ctx, db); err != nil {
			return err
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", currentLayoutVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the lookup index used to drop a record's index entries.
func migrateToV1(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE INDEX IF NOT EXISTS idx_index_entries_primary
		ON index_entries(store, primary_key)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
