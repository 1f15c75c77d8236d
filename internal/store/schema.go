package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Partition describes a named logical table within the store.
type Partition struct {
	// Name is the partition name used by callers (e.g. "products").
	Name string `json:"name"`

	// AutoIncrement selects integer auto-assigned keys instead of
	// caller-supplied string keys. Auto-increment ids are never reused.
	AutoIncrement bool `json:"auto_increment"`

	// Indexes declares secondary indexes over fields of the stored JSON.
	Indexes []IndexSpec `json:"indexes,omitempty"`
}

// IndexSpec declares a secondary index over one or more JSON fields.
// Multiple fields form a composite index matched positionally.
type IndexSpec struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
}

// SchemaError reports an operation against a partition that does not exist
// after the schema upgrade. This is unrecoverable at runtime: the store's
// version/upgrade pairing is wrong and every operation against the missing
// partition will keep failing.
type SchemaError struct {
	Partition string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("partition %q does not exist in store schema", e.Partition)
}

// IsSchemaError reports whether err is a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}

const registrySchema = `
CREATE TABLE IF NOT EXISTS _partitions (
	name TEXT PRIMARY KEY,
	auto_increment INTEGER NOT NULL DEFAULT 0,
	indexes TEXT NOT NULL DEFAULT '[]'
)`

var (
	partitionNameRe = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
	fieldNameRe     = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)
)

// sqlName maps a partition or index name onto a safe SQL identifier.
func sqlName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func (p Partition) table() string {
	return "p_" + sqlName(p.Name)
}

func (p Partition) index(name string) (IndexSpec, bool) {
	for _, idx := range p.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexSpec{}, false
}

// validate checks partition and index naming before any DDL is issued.
func (p Partition) validate() error {
	if !partitionNameRe.MatchString(p.Name) {
		return fmt.Errorf("invalid partition name %q", p.Name)
	}
	for _, idx := range p.Indexes {
		if !partitionNameRe.MatchString(idx.Name) {
			return fmt.Errorf("invalid index name %q on partition %q", idx.Name, p.Name)
		}
		if len(idx.Fields) == 0 {
			return fmt.Errorf("index %q on partition %q has no fields", idx.Name, p.Name)
		}
		for _, f := range idx.Fields {
			if !fieldNameRe.MatchString(f) {
				return fmt.Errorf("invalid index field %q on partition %q", f, p.Name)
			}
		}
	}
	return nil
}

// partition resolves a partition by name or fails with SchemaError.
func (s *Store) partition(name string) (Partition, error) {
	if p, ok := s.partitions[name]; ok {
		return p, nil
	}
	return Partition{}, &SchemaError{Partition: name}
}

// loadRegistry reads partition definitions recorded by CreatePartition into
// the in-memory registry used to resolve operations.
func (s *Store) loadRegistry() error {
	rows, err := s.conn.Query(`SELECT name, auto_increment, indexes FROM _partitions`)
	if err != nil {
		// A store that was never upgraded past version 0 has no registry.
		return fmt.Errorf("failed to read partition registry: %w", err)
	}
	defer rows.Close()

	s.partitions = make(map[string]Partition)
	for rows.Next() {
		var p Partition
		var auto int
		var indexesJSON string
		if err := rows.Scan(&p.Name, &auto, &indexesJSON); err != nil {
			return fmt.Errorf("failed to scan partition registry: %w", err)
		}
		p.AutoIncrement = auto != 0
		if err := json.Unmarshal([]byte(indexesJSON), &p.Indexes); err != nil {
			return fmt.Errorf("corrupt index spec for partition %q: %w", p.Name, err)
		}
		s.partitions[p.Name] = p
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating partition registry: %w", err)
	}
	return nil
}

// Tx exposes partition operations inside a transaction. It is handed to
// UpgradeFunc during Open and to the callback of Store.Update.
type Tx struct {
	tx    *sql.Tx
	store *Store
}

// CreatePartition creates the partition's table and secondary indexes and
// records the definition in the registry. It is idempotent: re-creating an
// existing partition only refreshes its registry entry.
//
// Intended for use inside an UpgradeFunc.
func (t *Tx) CreatePartition(p Partition) error {
	if err := p.validate(); err != nil {
		return err
	}

	var ddl string
	if p.AutoIncrement {
		ddl = fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %q (id INTEGER PRIMARY KEY AUTOINCREMENT, value TEXT NOT NULL)`,
			p.table())
	} else {
		ddl = fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %q (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
			p.table())
	}
	if _, err := t.tx.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create partition %q: %w", p.Name, err)
	}

	for _, idx := range p.Indexes {
		exprs := make([]string, len(idx.Fields))
		for i, f := range idx.Fields {
			exprs[i] = fmt.Sprintf(`value ->> '$.%s'`, f)
		}
		ddl := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q (%s)`,
			"idx_"+p.table()+"_"+sqlName(idx.Name), p.table(), strings.Join(exprs, ", "))
		if _, err := t.tx.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create index %q on partition %q: %w", idx.Name, p.Name, err)
		}
	}

	indexesJSON, err := json.Marshal(p.Indexes)
	if err != nil {
		return fmt.Errorf("failed to marshal index spec: %w", err)
	}
	auto := 0
	if p.AutoIncrement {
		auto = 1
	}
	_, err = t.tx.Exec(`
		INSERT INTO _partitions (name, auto_increment, indexes) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			auto_increment = excluded.auto_increment,
			indexes = excluded.indexes`,
		p.Name, auto, string(indexesJSON))
	if err != nil {
		return fmt.Errorf("failed to register partition %q: %w", p.Name, err)
	}

	return nil
}

// partition resolves a partition inside the transaction. During schema
// upgrades the in-memory registry is not populated yet, so fall back to the
// registry table visible through the transaction.
func (t *Tx) partition(name string) (Partition, error) {
	if t.store != nil {
		if p, ok := t.store.partitions[name]; ok {
			return p, nil
		}
	}
	var p Partition
	var auto int
	var indexesJSON string
	err := t.tx.QueryRow(`SELECT name, auto_increment, indexes FROM _partitions WHERE name = ?`, name).
		Scan(&p.Name, &auto, &indexesJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Partition{}, &SchemaError{Partition: name}
	}
	if err != nil {
		return Partition{}, fmt.Errorf("failed to resolve partition %q: %w", name, err)
	}
	p.AutoIncrement = auto != 0
	if err := json.Unmarshal([]byte(indexesJSON), &p.Indexes); err != nil {
		return Partition{}, fmt.Errorf("corrupt index spec for partition %q: %w", name, err)
	}
	return p, nil
}

// Get returns the value stored under key, or (nil, nil) if absent.
func (t *Tx) Get(ctx context.Context, partition, key string) (json.RawMessage, error) {
	p, err := t.partition(partition)
	if err != nil {
		return nil, err
	}
	return p.get(ctx, t.tx, key)
}

// GetID returns the value of an auto-increment row, or (nil, nil) if absent.
func (t *Tx) GetID(ctx context.Context, partition string, id int64) (json.RawMessage, error) {
	p, err := t.partition(partition)
	if err != nil {
		return nil, err
	}
	return p.getID(ctx, t.tx, id)
}

// GetAll returns every value in the partition.
func (t *Tx) GetAll(ctx context.Context, partition string) ([]json.RawMessage, error) {
	p, err := t.partition(partition)
	if err != nil {
		return nil, err
	}
	return p.getAll(ctx, t.tx)
}

// GetAllByIndex returns the values whose indexed fields exactly match key.
func (t *Tx) GetAllByIndex(ctx context.Context, partition, index string, key ...any) ([]json.RawMessage, error) {
	p, err := t.partition(partition)
	if err != nil {
		return nil, err
	}
	return p.getAllByIndex(ctx, t.tx, index, key...)
}

// Put upserts value under key within the transaction.
func (t *Tx) Put(ctx context.Context, partition, key string, value any) error {
	p, err := t.partition(partition)
	if err != nil {
		return err
	}
	return p.put(ctx, t.tx, key, value)
}

// PutID replaces the value of an existing auto-increment row.
func (t *Tx) PutID(ctx context.Context, partition string, id int64, value any) error {
	p, err := t.partition(partition)
	if err != nil {
		return err
	}
	return p.putID(ctx, t.tx, id, value)
}

// Append inserts value into an auto-increment partition and returns the
// assigned id.
func (t *Tx) Append(ctx context.Context, partition string, value any) (int64, error) {
	p, err := t.partition(partition)
	if err != nil {
		return 0, err
	}
	return appendRow(ctx, t.tx, p, value)
}

// Delete removes the value under key. Absent keys are a no-op.
func (t *Tx) Delete(ctx context.Context, partition, key string) error {
	p, err := t.partition(partition)
	if err != nil {
		return err
	}
	return p.delete(ctx, t.tx, key)
}

// DeleteID removes an auto-increment row by id. Absent ids are a no-op.
func (t *Tx) DeleteID(ctx context.Context, partition string, id int64) error {
	p, err := t.partition(partition)
	if err != nil {
		return err
	}
	return p.deleteID(ctx, t.tx, id)
}

// Clear removes all values from the partition.
func (t *Tx) Clear(ctx context.Context, partition string) error {
	p, err := t.partition(partition)
	if err != nil {
		return err
	}
	return p.clear(ctx, t.tx)
}
