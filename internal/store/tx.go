package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/asyncdb/internal/queryir"
	"github.com/roach88/asyncdb/internal/querysql"
	"github.com/roach88/asyncdb/internal/record"
)

// Tx is one SQL transaction over a Store. It is not safe for concurrent use.
type Tx struct {
	tx    *sql.Tx
	codec Codec
}

// Row is one scan result.
type Row struct {
	// Position locates the row for resuming a scan.
	Position queryir.Position

	// Key is the index key for index scans, the primary key otherwise.
	Key        record.Key
	PrimaryKey record.Key
	Value      record.Object
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Rollback aborts the transaction. Rolling back a finished transaction is
// not an error.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("rollback tx: %w", err)
	}
	return nil
}

// Get reads the record stored under key.
func (t *Tx) Get(ctx context.Context, store string, key record.Key) (record.Object, bool, error) {
	pk, err := record.EncodeKey(key)
	if err != nil {
		return nil, false, fmt.Errorf("get record: %w", err)
	}
	var data []byte
	err = t.tx.QueryRowContext(ctx, `
		SELECT value FROM records WHERE store = ? AND key = ?
	`, store, pk).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get record: %w", err)
	}
	obj, err := decodeValue(data)
	if err != nil {
		return nil, false, fmt.Errorf("get record: %w", err)
	}
	return obj, true, nil
}

// Put writes rec under key and maintains every index of m.
//
// When overwrite is false an existing record fails with ErrKeyExists.
// A unique index collision with another record fails with ErrUniqueViolation.
// Either failure leaves the transaction usable; the caller decides whether
// to roll back.
func (t *Tx) Put(ctx context.Context, m StoreMeta, key record.Key, rec record.Object, overwrite bool) error {
	pk, err := record.EncodeKey(key)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	data, err := encodeValue(t.codec, rec)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}

	exists, err := t.exists(ctx, m.Name, pk)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	if exists && !overwrite {
		return fmt.Errorf("put record: %w", ErrKeyExists)
	}

	// Check unique indexes before touching anything so a violation leaves
	// the store unchanged.
	keys := make(map[string][]byte, len(m.Indexes))
	for _, idx := range m.Indexes {
		k, ok := indexKey(rec, idx.KeyPath)
		if !ok {
			continue
		}
		keys[idx.Name] = k
		if !idx.Unique {
			continue
		}
		taken, err := t.uniqueTaken(ctx, m.Name, idx.Name, k, pk)
		if err != nil {
			return fmt.Errorf("put record: %w", err)
		}
		if taken {
			return fmt.Errorf("put record: index %q: %w", idx.Name, ErrUniqueViolation)
		}
	}

	if exists {
		if err := t.deleteIndexEntries(ctx, m.Name, pk); err != nil {
			return fmt.Errorf("put record: %w", err)
		}
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO records (store, key, value) VALUES (?, ?, ?)
		ON CONFLICT(store, key) DO UPDATE SET value = excluded.value
	`, m.Name, pk, data)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}

	for _, idx := range m.Indexes {
		k, ok := keys[idx.Name]
		if !ok {
			continue
		}
		if err := t.insertIndexEntry(ctx, m.Name, idx, k, pk); err != nil {
			return fmt.Errorf("put record: %w", err)
		}
	}
	return nil
}

// Delete removes the record under key. It reports whether a record existed.
func (t *Tx) Delete(ctx context.Context, store string, key record.Key) (bool, error) {
	pk, err := record.EncodeKey(key)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	if err := t.deleteIndexEntries(ctx, store, pk); err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	res, err := t.tx.ExecContext(ctx, "DELETE FROM records WHERE store = ? AND key = ?", store, pk)
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete record: %w", err)
	}
	return n > 0, nil
}

// Clear removes every record of a store. The key generator is kept.
func (t *Tx) Clear(ctx context.Context, store string) error {
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM index_entries WHERE store = ?", store); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, "DELETE FROM records WHERE store = ?", store); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	return nil
}

// Scan runs an ordered read and returns every matching row.
func (t *Tx) Scan(ctx context.Context, s queryir.Scan) ([]Row, error) {
	query, args, err := querysql.Compile(s)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scan: %w", err)
	}
	defer rows.Close()

	// Return empty slice instead of nil for consistent API
	out := []Row{}
	for rows.Next() {
		var key, pk, data []byte
		if err := rows.Scan(&key, &pk, &data); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		row, err := decodeRow(key, pk, data)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan: %w", err)
	}
	return out, nil
}

// Count returns the number of rows a scan would visit, ignoring its
// direction and limit.
func (t *Tx) Count(ctx context.Context, s queryir.Scan) (int, error) {
	query, args, err := querysql.CompileCount(s)
	if err != nil {
		return 0, err
	}
	var n int
	if err := t.tx.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("query count: %w", err)
	}
	return n, nil
}

func decodeRow(key, pk, data []byte) (Row, error) {
	k, err := record.DecodeKey(key)
	if err != nil {
		return Row{}, fmt.Errorf("decode row key: %w", err)
	}
	p, err := record.DecodeKey(pk)
	if err != nil {
		return Row{}, fmt.Errorf("decode row primary key: %w", err)
	}
	v, err := decodeValue(data)
	if err != nil {
		return Row{}, err
	}
	return Row{
		Position:   queryir.Position{Key: key, PrimaryKey: pk},
		Key:        k,
		PrimaryKey: p,
		Value:      v,
	}, nil
}

func (t *Tx) exists(ctx context.Context, store string, pk []byte) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, `
		SELECT 1 FROM records WHERE store = ? AND key = ?
	`, store, pk).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query record: %w", err)
	}
	return true, nil
}

func (t *Tx) uniqueTaken(ctx context.Context, store, idx string, key, pk []byte) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, `
		SELECT 1 FROM index_entries
		WHERE store = ? AND idx = ? AND key = ? AND primary_key <> ?
		LIMIT 1
	`, store, idx, key, pk).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query index entry: %w", err)
	}
	return true, nil
}

func (t *Tx) insertIndexEntry(ctx context.Context, store string, idx IndexMeta, key, pk []byte) error {
	if idx.Unique {
		taken, err := t.uniqueTaken(ctx, store, idx.Name, key, pk)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("index %q: %w", idx.Name, ErrUniqueViolation)
		}
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO index_entries (store, idx, key, primary_key) VALUES (?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, store, idx.Name, key, pk)
	if err != nil {
		return fmt.Errorf("write index entry: %w", err)
	}
	return nil
}

func (t *Tx) deleteIndexEntries(ctx context.Context, store string, pk []byte) error {
	_, err := t.tx.ExecContext(ctx, `
		DELETE FROM index_entries WHERE store = ? AND primary_key = ?
	`, store, pk)
	if err != nil {
		return fmt.Errorf("delete index entries: %w", err)
	}
	return nil
}

// indexKey derives the encoded index key of rec. Records whose key path is
// missing or not a valid key are left out of the index.
func indexKey(rec record.Object, path string) ([]byte, bool) {
	k, err := record.ExtractKey(rec, path)
	if err != nil {
		return nil, false
	}
	enc, err := record.EncodeKey(k)
	if err != nil {
		return nil, false
	}
	return enc, true
}
