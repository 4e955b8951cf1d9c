package asyncdb

import (
	"context"

	"github.com/roach88/asyncdb/internal/engine"
	"github.com/roach88/asyncdb/internal/queryir"
	"github.com/roach88/asyncdb/internal/record"
)

// GetAll reads the records of table in primary key order, optionally bounded
// by WithRange and capped by WithLimit.
func (h *Handle) GetAll(ctx context.Context, table string, opts ...QueryOption) *Future[[]record.Record] {
	const op = "getAll"
	o := applyQueryOptions(opts)
	fut := newFuture[[]record.Record](op, h.log)

	return dispatch(ctx, h, fut, op, table, func(db *engine.Database) {
		tx, err := db.Transaction([]string{table}, engine.ReadOnly)
		if err != nil {
			fut.reject(engineFailure(op, table, err))
			return
		}
		bindFailure(fut, tx, op, table)

		store, err := tx.ObjectStore(table)
		if err != nil {
			fail(fut, tx, engineFailure(op, table, err))
			return
		}
		req, err := store.GetAll(o.rng, o.limit)
		if err != nil {
			fail(fut, tx, engineFailure(op, table, err))
			return
		}
		bindRequest(fut, req, op, table, func(result any) []record.Record {
			objs, _ := result.([]record.Object)
			out := make([]record.Record, len(objs))
			copy(out, objs)
			return out
		})
	})
}

// UpdateByKey shallow-merges partial over the record stored under key and
// writes it back, resolving true once the transaction commits.
//
// A missing record rejects with NotFoundError. For tables with an in-line
// key, a merge that would change the key rejects with TransactionError.
func (h *Handle) UpdateByKey(ctx context.Context, table string, key record.Key, partial record.Record) *Future[bool] {
	const op = "updateByKey"
	fut := newFuture[bool](op, h.log)
	partial = partial.Clone()

	return dispatch(ctx, h, fut, op, table, func(db *engine.Database) {
		tx, err := db.Transaction([]string{table}, engine.ReadWrite)
		if err != nil {
			fut.reject(engineFailure(op, table, err))
			return
		}
		bindTransaction(fut, tx, op, table, true)

		store, err := tx.ObjectStore(table)
		if err != nil {
			fail(fut, tx, engineFailure(op, table, err))
			return
		}
		get, err := store.Get(key)
		if err != nil {
			fail(fut, tx, engineFailure(op, table, err))
			return
		}
		get.OnSuccess(func(result any) {
			current, _ := result.(record.Object)
			if current == nil {
				fail(fut, tx, newError(KindNotFound, op, table, "no record with key %s", describeKey(key)))
				return
			}
			merged := current.Merge(partial)

			var put *engine.Request
			var err error
			if path := store.KeyPath(); path != "" {
				newKey, ok := record.Extract(merged, path)
				if !ok || record.ValidateKey(newKey) != nil || record.CompareKeys(newKey, key) != 0 {
					fail(fut, tx, newError(KindTransaction, op, table, "update would change key path %q", path))
					return
				}
				put, err = store.Put(merged, nil)
			} else {
				put, err = store.Put(merged, key)
			}
			if err != nil {
				fail(fut, tx, engineFailure(op, table, err))
				return
			}
			h.log.Debug("record merged", "table", table, "key", describeKey(key), "fields", len(partial), "seq", put.Seq())
		})
	})
}

// DeleteByKey removes the record stored under key, resolving true once the
// transaction commits. A missing record rejects with NotFoundError.
func (h *Handle) DeleteByKey(ctx context.Context, table string, key record.Key) *Future[bool] {
	const op = "deleteByKey"
	fut := newFuture[bool](op, h.log)

	return dispatch(ctx, h, fut, op, table, func(db *engine.Database) {
		only, err := queryir.Only(key)
		if err != nil {
			fut.reject(engineFailure(op, table, err))
			return
		}
		tx, err := db.Transaction([]string{table}, engine.ReadWrite)
		if err != nil {
			fut.reject(engineFailure(op, table, err))
			return
		}
		bindTransaction(fut, tx, op, table, true)

		store, err := tx.ObjectStore(table)
		if err != nil {
			fail(fut, tx, engineFailure(op, table, err))
			return
		}
		count, err := store.Count(only)
		if err != nil {
			fail(fut, tx, engineFailure(op, table, err))
			return
		}
		count.OnSuccess(func(result any) {
			if n, _ := result.(int); n == 0 {
				fail(fut, tx, newError(KindNotFound, op, table, "no record with key %s", describeKey(key)))
				return
			}
			if _, err := store.Delete(key); err != nil {
				fail(fut, tx, engineFailure(op, table, err))
			}
		})
	})
}

// Upsert writes rec, replacing any record with the same key. A non-nil key
// is used for tables with out-of-line keys; otherwise the key is derived
// from the table's key path or generated. Resolves once the transaction
// commits.
func (h *Handle) Upsert(ctx context.Context, table string, rec record.Record, key record.Key) *Future[struct{}] {
	const op = "upsert"
	fut := newFuture[struct{}](op, h.log)
	rec = rec.Clone()

	return dispatch(ctx, h, fut, op, table, func(db *engine.Database) {
		tx, err := db.Transaction([]string{table}, engine.ReadWrite)
		if err != nil {
			fut.reject(engineFailure(op, table, err))
			return
		}
		bindTransaction(fut, tx, op, table, struct{}{})

		store, err := tx.ObjectStore(table)
		if err != nil {
			fail(fut, tx, engineFailure(op, table, err))
			return
		}
		if _, err := store.Put(rec, key); err != nil {
			fail(fut, tx, engineFailure(op, table, err))
		}
	})
}

func describeKey(k record.Key) string {
	b, err := record.MarshalCanonical(k)
	if err != nil {
		return record.TypeName(k)
	}
	return string(b)
}
