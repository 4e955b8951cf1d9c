package engine

import (
	"github.com/roach88/asyncdb/internal/queryir"
	"github.com/roach88/asyncdb/internal/record"
	"github.com/roach88/asyncdb/internal/store"
)

// Index is a transaction-bound handle to an index of an object store.
// Loop goroutine only.
type Index struct {
	store *ObjectStore
	meta  store.IndexMeta
}

// Name returns the index name.
func (i *Index) Name() string { return i.meta.Name }

// KeyPath returns the key path the index is computed from.
func (i *Index) KeyPath() string { return i.meta.KeyPath }

// Unique reports whether the index rejects duplicate keys.
func (i *Index) Unique() bool { return i.meta.Unique }

// ObjectStore returns the indexed store.
func (i *Index) ObjectStore() *ObjectStore { return i.store }

// Get reads the first record, in primary key order, whose index key equals key.
func (i *Index) Get(key record.Key) (*Request, error) {
	r, err := queryir.Only(key)
	if err != nil {
		return nil, wrapError(DataError, err)
	}
	if err := i.store.readable(); err != nil {
		return nil, err
	}
	scan := i.scan(r)
	scan.Limit = 1
	ctx := i.store.tx.db.f.ctx
	return i.store.tx.issue("get", sourceName(scan), func(t *store.Tx) (any, *Error) {
		rows, err := t.Scan(ctx, scan)
		if err != nil {
			return nil, storeError(err)
		}
		if len(rows) == 0 {
			return record.Object(nil), nil
		}
		return rows[0].Value, nil
	}), nil
}

// GetAll reads the records whose index keys fall in r, in index key order.
func (i *Index) GetAll(r *queryir.KeyRange, limit int) (*Request, error) {
	scan := i.scan(r)
	scan.Limit = limit
	return i.store.getAll(scan)
}

// Count counts the records whose index keys fall in r.
func (i *Index) Count(r *queryir.KeyRange) (*Request, error) {
	return i.store.count(i.scan(r))
}

// OpenCursor iterates the records whose index keys fall in r. The request's
// OnSuccess fires with a *Cursor for each record and with nil at the end.
func (i *Index) OpenCursor(r *queryir.KeyRange, dir queryir.Direction) (*Request, error) {
	scan := i.scan(r)
	scan.Direction = dir
	return i.store.openCursor(scan)
}

func (i *Index) scan(r *queryir.KeyRange) queryir.Scan {
	return queryir.Scan{Store: i.store.name, Index: i.meta.Name, Range: r}
}
