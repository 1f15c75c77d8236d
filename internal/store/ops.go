package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// encode marshals a value for storage. json.RawMessage and []byte pass
// through untouched so round-tripped values keep their exact encoding.
func encode(value any) (string, error) {
	switch v := value.(type) {
	case json.RawMessage:
		return string(v), nil
	case []byte:
		return string(v), nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return string(data), nil
}

func (p Partition) get(ctx context.Context, db dbtx, key string) (json.RawMessage, error) {
	query := fmt.Sprintf(`SELECT value FROM %q WHERE key = ?`, p.table())
	var value string
	err := db.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q/%q: %w", p.Name, key, err)
	}
	return json.RawMessage(value), nil
}

func (p Partition) getID(ctx context.Context, db dbtx, id int64) (json.RawMessage, error) {
	query := fmt.Sprintf(`SELECT value FROM %q WHERE id = ?`, p.table())
	var value string
	err := db.QueryRowContext(ctx, query, id).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %q/%d: %w", p.Name, id, err)
	}
	return json.RawMessage(value), nil
}

func (p Partition) getAll(ctx context.Context, db dbtx) ([]json.RawMessage, error) {
	order := "key"
	if p.AutoIncrement {
		order = "id"
	}
	query := fmt.Sprintf(`SELECT value FROM %q ORDER BY %s`, p.table(), order)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to scan partition %q: %w", p.Name, err)
	}
	defer rows.Close()
	return collectValues(rows, p.Name)
}

func (p Partition) getAllByIndex(ctx context.Context, db dbtx, index string, key ...any) ([]json.RawMessage, error) {
	idx, ok := p.index(index)
	if !ok {
		return nil, fmt.Errorf("partition %q has no index %q", p.Name, index)
	}
	if len(key) != len(idx.Fields) {
		return nil, fmt.Errorf("index %q on %q expects %d key parts (got %d)",
			index, p.Name, len(idx.Fields), len(key))
	}

	conds := make([]string, len(idx.Fields))
	for i, f := range idx.Fields {
		conds[i] = fmt.Sprintf(`value ->> '$.%s' = ?`, f)
	}
	query := fmt.Sprintf(`SELECT value FROM %q WHERE %s`,
		p.table(), strings.Join(conds, " AND "))

	rows, err := db.QueryContext(ctx, query, key...)
	if err != nil {
		return nil, fmt.Errorf("failed to query index %q on %q: %w", index, p.Name, err)
	}
	defer rows.Close()
	return collectValues(rows, p.Name)
}

func (p Partition) put(ctx context.Context, db dbtx, key string, value any) error {
	if p.AutoIncrement {
		return fmt.Errorf("partition %q is auto-increment; use Append", p.Name)
	}
	encoded, err := encode(value)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		INSERT INTO %q (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, p.table())
	if _, err := db.ExecContext(ctx, query, key, encoded); err != nil {
		return fmt.Errorf("failed to put %q/%q: %w", p.Name, key, err)
	}
	return nil
}

func (p Partition) putID(ctx context.Context, db dbtx, id int64, value any) error {
	encoded, err := encode(value)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %q SET value = ? WHERE id = ?`, p.table())
	res, err := db.ExecContext(ctx, query, encoded, id)
	if err != nil {
		return fmt.Errorf("failed to update %q/%d: %w", p.Name, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("no row %d in partition %q", id, p.Name)
	}
	return nil
}

// appendRow inserts into an auto-increment partition and mirrors the assigned
// id into the stored JSON, matching put-with-keyPath semantics.
func appendRow(ctx context.Context, db dbtx, p Partition, value any) (int64, error) {
	if !p.AutoIncrement {
		return 0, fmt.Errorf("partition %q is keyed; use Put", p.Name)
	}
	encoded, err := encode(value)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`INSERT INTO %q (value) VALUES (?)`, p.table())
	res, err := db.ExecContext(ctx, query, encoded)
	if err != nil {
		return 0, fmt.Errorf("failed to append to %q: %w", p.Name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read assigned id: %w", err)
	}

	set := fmt.Sprintf(`UPDATE %q SET value = json_set(value, '$.id', ?) WHERE id = ?`, p.table())
	if _, err := db.ExecContext(ctx, set, id, id); err != nil {
		return 0, fmt.Errorf("failed to record assigned id on %q/%d: %w", p.Name, id, err)
	}
	return id, nil
}

func (p Partition) delete(ctx context.Context, db dbtx, key string) error {
	query := fmt.Sprintf(`DELETE FROM %q WHERE key = ?`, p.table())
	if _, err := db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete %q/%q: %w", p.Name, key, err)
	}
	return nil
}

func (p Partition) deleteID(ctx context.Context, db dbtx, id int64) error {
	query := fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, p.table())
	if _, err := db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to delete %q/%d: %w", p.Name, id, err)
	}
	return nil
}

func (p Partition) clear(ctx context.Context, db dbtx) error {
	query := fmt.Sprintf(`DELETE FROM %q`, p.table())
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to clear partition %q: %w", p.Name, err)
	}
	return nil
}

func (p Partition) count(ctx context.Context, db dbtx) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %q`, p.table())
	var n int
	if err := db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count partition %q: %w", p.Name, err)
	}
	return n, nil
}

// collectValues drains a single-column value result set.
func collectValues(rows *sql.Rows, partition string) ([]json.RawMessage, error) {
	var values []json.RawMessage
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan value from %q: %w", partition, err)
		}
		values = append(values, json.RawMessage(v))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating partition %q: %w", partition, err)
	}
	return values, nil
}
