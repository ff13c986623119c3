// Package store is the SQLite-backed persistence service: entities with
// pending-change commits, metadata, locations holding component data on
// disk, and the component factory.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/afero"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nebukadhezer/pyblish-ftrack/internal/session"
	"github.com/nebukadhezer/pyblish-ftrack/internal/transfer"
)

const (
	currentSchemaVersion = 2
)

// Store represents the persistent publish state
type Store struct {
	db       *sqlx.DB
	fs       afero.Fs
	transfer *transfer.Transferer
	lock     *fileLock

	mu      sync.Mutex
	pending []change
}

var _ session.Session = (*Store)(nil)

// LocationConfig declares a disk location seeded at open time
type LocationConfig struct {
	Name     string `mapstructure:"name" yaml:"name"`
	Root     string `mapstructure:"root" yaml:"root"`
	Priority int    `mapstructure:"priority" yaml:"priority"`
}

// OpenOptions holds options for opening a database
type OpenOptions struct {
	NetworkOptimized bool             // Apply network-optimized pragmas
	Exclusive        bool             // Hold an advisory lock next to the database
	Fs               afero.Fs         // Filesystem for reading sources (nil = OS)
	Transfer         *transfer.Config // Transfer settings for disk locations
	Locations        []LocationConfig // Disk locations to register
}

// Open opens or creates a SQLite database at the given path with default options
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, nil)
}

// OpenWithOptions opens or creates a SQLite database with custom options
func OpenWithOptions(path string, opts *OpenOptions) (*Store, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}

	var lock *fileLock
	if opts.Exclusive {
		l, err := acquireLock(path + ".lock")
		if err != nil {
			return nil, err
		}
		lock = l
	}

	// Open with pragmas for performance and reliability
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_timeout=5000&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		lock.release()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite works best with a single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	fs := opts.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}

	store := &Store{
		db:       sqlx.NewDb(db, "sqlite3"),
		fs:       fs,
		transfer: transfer.New(opts.Transfer),
		lock:     lock,
	}

	fail := func(format string, err error) (*Store, error) {
		db.Close()
		lock.release()
		return nil, fmt.Errorf(format, err)
	}

	if err := store.transfer.Validate(); err != nil {
		return fail("invalid transfer settings: %w", err)
	}

	// Apply network-optimized pragmas if requested
	if opts.NetworkOptimized {
		if err := store.applyNetworkPragmas(); err != nil {
			return fail("failed to apply network pragmas: %w", err)
		}
	}

	// Run migrations
	if err := store.migrate(); err != nil {
		return fail("migration failed: %w", err)
	}

	if err := store.seedLocations(context.Background(), opts.Locations); err != nil {
		return fail("failed to register locations: %w", err)
	}

	return store, nil
}

// applyNetworkPragmas applies SQLite optimizations for network filesystems
func (s *Store) applyNetworkPragmas() error {
	pragmas := []string{
		// Only fsync at checkpoints; NORMAL is safe with WAL mode
		"PRAGMA synchronous = NORMAL",

		// Keep temp tables in memory instead of on network disk
		"PRAGMA temp_store = MEMORY",

		// 64MB cache to reduce network round-trips
		"PRAGMA cache_size = -64000",

		// Only applies to databases created after this point
		"PRAGMA page_size = 8192",
	}

	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection and releases the lock.
// Uncommitted changes are discarded.
func (s *Store) Close() error {
	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	err := s.db.Close()
	if lerr := s.lock.release(); err == nil {
		err = lerr
	}
	return err
}

// Fs returns the filesystem sources are read from
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// SQLiteVersion returns the SQLite version string
func SQLiteVersion() string {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return ""
	}
	defer db.Close()

	var version string
	err = db.QueryRow("SELECT sqlite_version()").Scan(&version)
	if err != nil {
		return ""
	}
	return version
}

// CheckIntegrity runs PRAGMA integrity_check on the database
func (s *Store) CheckIntegrity() error {
	var result string
	err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result)
	if err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}

	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	return nil
}

// SchemaVersion returns the applied schema version
func (s *Store) SchemaVersion() (int, error) {
	return s.getSchemaVersion()
}

// migrate applies database migrations
func (s *Store) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if version < 1 {
		if _, err := tx.Exec(schemaV1); err != nil {
			return fmt.Errorf("failed to apply schema v1: %w", err)
		}
		if err := s.setSchemaVersion(tx, 1); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	if version < 2 {
		if _, err := tx.Exec(schemaV2); err != nil {
			return fmt.Errorf("failed to apply schema v2: %w", err)
		}
		if err := s.setSchemaVersion(tx, 2); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Store) getSchemaVersion() (int, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}

	if exists == 0 {
		return 0, nil
	}

	var version int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}

	return version, nil
}

// setSchemaVersion records a schema version in a transaction
func (s *Store) setSchemaVersion(tx *sql.Tx, version int) error {
	_, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version)
	return err
}

// Transaction executes a function within a transaction
func (s *Store) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Stats counts stored rows for diagnostics
type Stats struct {
	Entities   map[string]int
	Metadata   int
	Locations  int
	Placements int
}

// Stats returns row counts per table and per entity type
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{Entities: make(map[string]int)}

	var rows []struct {
		Type  string `db:"type"`
		Count int    `db:"n"`
	}
	if err := s.db.SelectContext(ctx, &rows, "SELECT type, COUNT(*) AS n FROM entities GROUP BY type"); err != nil {
		return nil, fmt.Errorf("failed to count entities: %w", err)
	}
	for _, r := range rows {
		stats.Entities[r.Type] = r.Count
	}

	counts := []struct {
		dst   *int
		query string
	}{
		{&stats.Metadata, "SELECT COUNT(*) FROM metadata"},
		{&stats.Locations, "SELECT COUNT(*) FROM locations"},
		{&stats.Placements, "SELECT COUNT(*) FROM component_locations"},
	}
	for _, c := range counts {
		if err := s.db.GetContext(ctx, c.dst, c.query); err != nil {
			return nil, fmt.Errorf("failed to count rows: %w", err)
		}
	}
	return stats, nil
}
