// Package store provides the embedded SQLite persistence layer for PopClozet.
//
// The store is organized into named partitions (logical tables), each holding
// JSON-encoded values addressed by a string primary key or, for append-only
// partitions, an auto-incrementing integer id. Partitions may declare
// secondary indexes over fields of the stored JSON, including composite
// indexes, which are realized as SQLite expression indexes.
//
// The database runs in embedded mode using SQLite with WAL
// for concurrent readers during writes.
//
// Schema versioning follows the upgrade-callback model: Open compares the
// requested version against the persisted one and, when it is newer, runs the
// caller's upgrade function exactly once inside a transaction before any
// other operation proceeds.
//
// Workflow:
//  1. The app opens the store with its current schema version
//  2. Partition reads/writes go through Get/GetAll/Put/Append/Delete
//  3. Read-modify-write sequences run inside Update for atomicity
//  4. The sync engine drains queued mutations out of the offline_queue partition
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store wraps the SQLite connection together with the partition registry.
type Store struct {
	conn       *sql.DB
	path       string
	version    int
	partitions map[string]Partition
}

// UpgradeFunc is invoked by Open inside a transaction when the requested
// schema version is newer than the persisted one. Implementations create or
// alter partitions and indexes via the Tx. oldVersion is 0 for a fresh store.
type UpgradeFunc func(tx *Tx, oldVersion, newVersion int) error

// Open opens or creates the store at path and brings it up to the requested
// schema version.
//
// If the persisted version is older than version, upgrade is called exactly
// once with both versions; all partition/index changes it makes commit
// atomically with the version bump. Opening an already up-to-date store never
// invokes upgrade.
//
// The caller MUST call Close() when done to ensure proper cleanup.
//
// Example:
//
//	st, err := store.Open(".popclozet/clz.db", 2, schema.Upgrade)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string, version int, upgrade UpgradeFunc) (*Store, error) {
	if version < 1 {
		return nil, fmt.Errorf("schema version must be >= 1 (got %d)", version)
	}

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Immediate transactions avoid writer-upgrade deadlocks under WAL
	connStr := fmt.Sprintf("file:%s?_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{
		conn:    conn,
		path:    path,
		version: version,
	}

	// Enable WAL mode for concurrent reads
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set busy timeout to 5 seconds
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.migrate(upgrade); err != nil {
		_ = s.Close()
		return nil, err
	}

	if err := s.loadRegistry(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// migrate runs the upgrade callback when the persisted schema version lags
// behind the requested one. The version bump and all schema changes commit
// together.
func (s *Store) migrate(upgrade UpgradeFunc) error {
	var stored int
	if err := s.conn.QueryRow("PRAGMA user_version").Scan(&stored); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if stored == s.version {
		return nil
	}
	if stored > s.version {
		return fmt.Errorf("store is at schema version %d, newer than requested %d", stored, s.version)
	}

	tx, err := s.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin upgrade transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(registrySchema); err != nil {
		return fmt.Errorf("failed to create partition registry: %w", err)
	}

	if upgrade != nil {
		if err := upgrade(&Tx{tx: tx}, stored, s.version); err != nil {
			return fmt.Errorf("schema upgrade %d -> %d failed: %w", stored, s.version, err)
		}
	}

	// PRAGMA does not accept bind parameters
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", s.version)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit schema upgrade: %w", err)
	}

	return nil
}

// RawDB returns the underlying sql.DB connection.
// This is useful for integrating with other libraries that expect *sql.DB.
func (s *Store) RawDB() *sql.DB {
	return s.conn
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Version returns the schema version the store was opened at.
func (s *Store) Version() int {
	return s.version
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	// Checkpoint WAL before closing
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// dbtx abstracts over *sql.DB and *sql.Tx so partition operations can run
// both standalone and inside Update transactions.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Get returns the value stored under key in a keyed partition.
// Absent keys return (nil, nil) rather than an error.
func (s *Store) Get(ctx context.Context, partition, key string) (json.RawMessage, error) {
	p, err := s.partition(partition)
	if err != nil {
		return nil, err
	}
	return p.get(ctx, s.conn, key)
}

// GetAll returns every value in the partition. Order is unspecified.
func (s *Store) GetAll(ctx context.Context, partition string) ([]json.RawMessage, error) {
	p, err := s.partition(partition)
	if err != nil {
		return nil, err
	}
	return p.getAll(ctx, s.conn)
}

// GetAllByIndex returns the values whose indexed fields exactly match key.
// For composite indexes, pass one key part per indexed field in declaration
// order.
func (s *Store) GetAllByIndex(ctx context.Context, partition, index string, key ...any) ([]json.RawMessage, error) {
	p, err := s.partition(partition)
	if err != nil {
		return nil, err
	}
	return p.getAllByIndex(ctx, s.conn, index, key...)
}

// Put upserts value under key in a keyed partition. An existing value sharing
// the key is fully replaced.
func (s *Store) Put(ctx context.Context, partition, key string, value any) error {
	p, err := s.partition(partition)
	if err != nil {
		return err
	}
	return p.put(ctx, s.conn, key, value)
}

// Append inserts value into an auto-increment partition and returns the
// assigned id. The id is also injected into the stored JSON under "id" so
// listed values are self-describing. The insert and the id injection run in
// one transaction; readers never observe a row without its id.
func (s *Store) Append(ctx context.Context, partition string, value any) (int64, error) {
	var id int64
	err := s.Update(ctx, func(tx *Tx) error {
		var err error
		id, err = tx.Append(ctx, partition, value)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Delete removes the value under key. Deleting an absent key is a no-op.
func (s *Store) Delete(ctx context.Context, partition, key string) error {
	p, err := s.partition(partition)
	if err != nil {
		return err
	}
	return p.delete(ctx, s.conn, key)
}

// DeleteID removes a row from an auto-increment partition by id.
// Deleting an absent id is a no-op.
func (s *Store) DeleteID(ctx context.Context, partition string, id int64) error {
	p, err := s.partition(partition)
	if err != nil {
		return err
	}
	return p.deleteID(ctx, s.conn, id)
}

// Clear removes all values from the partition.
func (s *Store) Clear(ctx context.Context, partition string) error {
	p, err := s.partition(partition)
	if err != nil {
		return err
	}
	return p.clear(ctx, s.conn)
}

// Count returns the number of values in the partition.
func (s *Store) Count(ctx context.Context, partition string) (int, error) {
	p, err := s.partition(partition)
	if err != nil {
		return 0, err
	}
	return p.count(ctx, s.conn)
}

// Update runs fn inside a single transaction. Either every operation fn
// performs commits, or none do. Concurrent Update calls serialize at the
// database, so read-modify-write sequences cannot lose updates.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&Tx{tx: tx, store: s}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
