package asyncdb

import (
	"context"

	"github.com/roach88/asyncdb/internal/engine"
	"github.com/roach88/asyncdb/internal/record"
)

// GetOrderedRange reads table through index in index key order, optionally
// bounded by WithRange and directed by WithDirection.
//
// The cursor is advanced explicitly after each record; the future resolves
// with every non-null record once the cursor is exhausted. Any failure
// rejects with TransactionError and discards what was collected.
func (h *Handle) GetOrderedRange(ctx context.Context, table, index string, opts ...QueryOption) *Future[[]record.Record] {
	const op = "getOrderedRange"
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
		idx, err := store.Index(index)
		if err != nil {
			fail(fut, tx, engineFailure(op, table, err))
			return
		}
		req, err := idx.OpenCursor(o.rng, o.dir)
		if err != nil {
			fail(fut, tx, engineFailure(op, table, err))
			return
		}

		results := []record.Record{}
		req.OnSuccess(func(result any) {
			cursor, _ := result.(*engine.Cursor)
			if cursor == nil {
				fut.resolve(results)
				return
			}
			if v := cursor.Value(); v != nil {
				results = append(results, v)
			}
			if err := cursor.Continue(); err != nil {
				fail(fut, tx, engineFailure(op, table, err))
			}
		})
		req.OnError(func(err *engine.Error) {
			fut.reject(wrapError(KindTransaction, op, table, err))
		})
	})
}
