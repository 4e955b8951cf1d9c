package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
)

// IndexMeta describes an index of an object store.
type IndexMeta struct {
	Name    string
	KeyPath string
	Unique  bool
}

// StoreMeta describes an object store and its indexes.
type StoreMeta struct {
	Name          string
	KeyPath       string
	AutoIncrement bool
	Indexes       []IndexMeta
}

// Index returns the named index.
func (m StoreMeta) Index(name string) (IndexMeta, bool) {
	for _, idx := range m.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return IndexMeta{}, false
}

// Version returns the engine-visible database version; 0 for a database
// that was never opened at a version.
func (t *Tx) Version(ctx context.Context) (uint64, error) {
	var v int64
	err := t.tx.QueryRowContext(ctx, "SELECT version FROM database_meta WHERE id = 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query version: %w", err)
	}
	return uint64(v), nil
}

// SetVersion records the database version.
func (t *Tx) SetVersion(ctx context.Context, v uint64) error {
	if v > math.MaxInt64 {
		return fmt.Errorf("set version: %d exceeds storable range", v)
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO database_meta (id, version) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET version = excluded.version
	`, int64(v))
	if err != nil {
		return fmt.Errorf("set version: %w", err)
	}
	return nil
}

// ObjectStores returns every object store with its indexes, ordered by name.
func (t *Tx) ObjectStores(ctx context.Context) ([]StoreMeta, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT name, key_path, auto_increment
		FROM object_stores
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query object stores: %w", err)
	}
	defer rows.Close()

	// Return empty slice instead of nil for consistent API
	stores := []StoreMeta{}
	for rows.Next() {
		var m StoreMeta
		var autoInc int
		if err := rows.Scan(&m.Name, &m.KeyPath, &autoInc); err != nil {
			return nil, fmt.Errorf("scan object store: %w", err)
		}
		m.AutoIncrement = autoInc != 0
		stores = append(stores, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate object stores: %w", err)
	}
	rows.Close()

	for i := range stores {
		idx, err := t.indexes(ctx, stores[i].Name)
		if err != nil {
			return nil, err
		}
		stores[i].Indexes = idx
	}
	return stores, nil
}

func (t *Tx) indexes(ctx context.Context, store string) ([]IndexMeta, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT name, key_path, is_unique
		FROM indexes
		WHERE store = ?
		ORDER BY name ASC
	`, store)
	if err != nil {
		return nil, fmt.Errorf("query indexes: %w", err)
	}
	defer rows.Close()

	idx := []IndexMeta{}
	for rows.Next() {
		var m IndexMeta
		var unique int
		if err := rows.Scan(&m.Name, &m.KeyPath, &unique); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		m.Unique = unique != 0
		idx = append(idx, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate indexes: %w", err)
	}
	return idx, nil
}

// CreateObjectStore adds an empty object store to the catalog.
func (t *Tx) CreateObjectStore(ctx context.Context, m StoreMeta) error {
	autoInc := 0
	if m.AutoIncrement {
		autoInc = 1
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO object_stores (name, key_path, auto_increment, current_key)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(name) DO NOTHING
	`, m.Name, m.KeyPath, autoInc)
	if err != nil {
		return fmt.Errorf("create object store %q: %w", m.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("create object store %q: %w", m.Name, ErrObjectStoreExists)
	}
	return nil
}

// DeleteObjectStore removes an object store. Its indexes, records and index
// entries are removed by foreign key cascade.
func (t *Tx) DeleteObjectStore(ctx context.Context, name string) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM object_stores WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete object store %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete object store %q: %w", name, ErrNoObjectStore)
	}
	return nil
}

// CreateIndex adds an index and populates it from the records already in the
// store. A unique index over duplicate values fails with ErrUniqueViolation.
func (t *Tx) CreateIndex(ctx context.Context, store string, idx IndexMeta) error {
	unique := 0
	if idx.Unique {
		unique = 1
	}
	if err := t.savepoint(ctx, "create_index"); err != nil {
		return fmt.Errorf("create index %q: %w", idx.Name, err)
	}
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO indexes (store, name, key_path, is_unique)
		SELECT ?, ?, ?, ? WHERE EXISTS (SELECT 1 FROM object_stores WHERE name = ?)
		ON CONFLICT(store, name) DO NOTHING
	`, store, idx.Name, idx.KeyPath, unique, store)
	if err != nil {
		t.rollbackTo(ctx, "create_index")
		return fmt.Errorf("create index %q: %w", idx.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		t.rollbackTo(ctx, "create_index")
		if _, err := t.storeMeta(ctx, store); err != nil {
			return fmt.Errorf("create index %q: %w", idx.Name, err)
		}
		return fmt.Errorf("create index %q: %w", idx.Name, ErrIndexExists)
	}

	if err := t.backfillIndex(ctx, store, idx); err != nil {
		if rbErr := t.rollbackTo(ctx, "create_index"); rbErr != nil {
			return fmt.Errorf("create index %q: %w", idx.Name, rbErr)
		}
		return fmt.Errorf("create index %q: %w", idx.Name, err)
	}
	return t.release(ctx, "create_index")
}

// backfillIndex derives entries for idx from every existing record.
func (t *Tx) backfillIndex(ctx context.Context, store string, idx IndexMeta) error {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT key, value FROM records WHERE store = ? ORDER BY key ASC
	`, store)
	if err != nil {
		return fmt.Errorf("query records: %w", err)
	}
	type pending struct {
		primary []byte
		key     []byte
	}
	var entries []pending
	for rows.Next() {
		var pk, data []byte
		if err := rows.Scan(&pk, &data); err != nil {
			rows.Close()
			return fmt.Errorf("scan record: %w", err)
		}
		obj, err := decodeValue(data)
		if err != nil {
			rows.Close()
			return err
		}
		if k, ok := indexKey(obj, idx.KeyPath); ok {
			entries = append(entries, pending{primary: pk, key: k})
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate records: %w", err)
	}
	rows.Close()

	for _, e := range entries {
		if err := t.insertIndexEntry(ctx, store, idx, e.key, e.primary); err != nil {
			return err
		}
	}
	return nil
}

// DeleteIndex removes an index and its entries.
func (t *Tx) DeleteIndex(ctx context.Context, store, name string) error {
	res, err := t.tx.ExecContext(ctx, "DELETE FROM indexes WHERE store = ? AND name = ?", store, name)
	if err != nil {
		return fmt.Errorf("delete index %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete index %q: %w", name, ErrNoIndex)
	}
	return nil
}

// storeMeta loads one object store with its indexes.
func (t *Tx) storeMeta(ctx context.Context, name string) (StoreMeta, error) {
	m := StoreMeta{Name: name}
	var autoInc int
	err := t.tx.QueryRowContext(ctx, `
		SELECT key_path, auto_increment FROM object_stores WHERE name = ?
	`, name).Scan(&m.KeyPath, &autoInc)
	if errors.Is(err, sql.ErrNoRows) {
		return StoreMeta{}, fmt.Errorf("%q: %w", name, ErrNoObjectStore)
	}
	if err != nil {
		return StoreMeta{}, fmt.Errorf("query object store %q: %w", name, err)
	}
	m.AutoIncrement = autoInc != 0
	if m.Indexes, err = t.indexes(ctx, name); err != nil {
		return StoreMeta{}, err
	}
	return m, nil
}

// maxGeneratedKey is the largest key a generator hands out (2^53).
const maxGeneratedKey = 1 << 53

// GenerateKey returns the next key of an auto-increment store and advances
// its generator.
func (t *Tx) GenerateKey(ctx context.Context, store string) (int64, error) {
	var next int64
	err := t.tx.QueryRowContext(ctx, `
		UPDATE object_stores SET current_key = current_key + 1
		WHERE name = ? AND current_key < ?
		RETURNING current_key
	`, store, int64(maxGeneratedKey)).Scan(&next)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := t.storeMeta(ctx, store); err != nil {
			return 0, fmt.Errorf("generate key: %w", err)
		}
		return 0, fmt.Errorf("generate key: %w", ErrKeyGenExhausted)
	}
	if err != nil {
		return 0, fmt.Errorf("generate key: %w", err)
	}
	return next, nil
}

// BumpKey raises the generator of an auto-increment store so that it never
// hands out a key at or below an explicitly written numeric key.
func (t *Tx) BumpKey(ctx context.Context, store string, used int64) error {
	if used > maxGeneratedKey {
		used = maxGeneratedKey
	}
	_, err := t.tx.ExecContext(ctx, `
		UPDATE object_stores SET current_key = ?
		WHERE name = ? AND current_key < ?
	`, used, store, used)
	if err != nil {
		return fmt.Errorf("bump key: %w", err)
	}
	return nil
}

// savepoint opens a nested scope inside the transaction. rollbackTo undoes
// the scope's writes and closes it; release keeps them.
func (t *Tx) savepoint(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	return nil
}

func (t *Tx) rollbackTo(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, "ROLLBACK TO "+name); err != nil {
		return fmt.Errorf("rollback to %s: %w", name, err)
	}
	return t.release(ctx, name)
}

func (t *Tx) release(ctx context.Context, name string) error {
	if _, err := t.tx.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	return nil
}
