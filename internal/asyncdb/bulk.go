package asyncdb

import (
	"context"
	"fmt"
	"iter"
	"slices"

	"github.com/roach88/asyncdb/internal/engine"
	"github.com/roach88/asyncdb/internal/record"
)

// InsertMany adds records to table in one read-write transaction, strictly
// in order: record i+1 is added only after record i's add succeeded, so
// generated keys follow input order.
//
// The future resolves when the transaction commits. If any add fails the
// transaction aborts, the remaining records are not attempted and the
// future rejects with TransactionError; nothing is kept.
func (h *Handle) InsertMany(ctx context.Context, table string, records []record.Record) *Future[struct{}] {
	const op = "insertMany"
	fut := newFuture[struct{}](op, h.log)
	records = slices.Clone(records)

	return dispatch(ctx, h, fut, op, table, func(db *engine.Database) {
		tx, err := db.Transaction([]string{table}, engine.ReadWrite)
		if err != nil {
			fut.reject(engineFailure(op, table, err))
			return
		}
		store, err := tx.ObjectStore(table)
		if err != nil {
			fail(fut, tx, engineFailure(op, table, err))
			return
		}

		next, stop := iter.Pull(slices.Values(records))
		tx.OnComplete(func() {
			stop()
			fut.resolve(struct{}{})
		})
		tx.OnError(func(err *engine.Error) {
			fut.reject(wrapError(KindTransaction, op, table, err))
		})
		tx.OnAbort(func(err *engine.Error) {
			stop()
			fut.reject(wrapError(KindTransaction, op, table, err))
		})

		var added int
		var add func()
		add = func() {
			rec, ok := next()
			if !ok {
				h.log.Debug("bulk insert queued", "table", table, "records", added)
				return
			}
			req, err := store.Add(rec, nil)
			if err != nil {
				fail(fut, tx, &Error{
					Kind:    KindTransaction,
					Op:      op,
					Table:   table,
					Message: fmt.Sprintf("record %d", added),
					Err:     err,
				})
				return
			}
			req.OnSuccess(func(any) {
				added++
				add()
			})
		}
		add()
	})
}
