package asyncdb

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/asyncdb/internal/engine"
)

const tracerName = "github.com/roach88/asyncdb/internal/asyncdb"

// trace starts a span for op that ends when fut settles.
func (h *Handle) trace(ctx context.Context, fut interface{ onSettle(func(error)) }, op, target string) {
	_, span := h.tracer.Start(ctx, "asyncdb."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "asyncdb"),
			attribute.String("asyncdb.target", target),
		),
	)
	fut.onSettle(func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(KindOf(err)))
		}
		span.End()
	})
}

// dispatch runs fn on the engine loop with the open connection. It rejects
// fut with ConnectionError when there is no connection or no running loop.
func dispatch[T any](ctx context.Context, h *Handle, fut *Future[T], op, table string, fn func(db *engine.Database)) *Future[T] {
	h.trace(ctx, fut, op, table)
	db := h.conn()
	if db == nil {
		fut.reject(newError(KindConnection, op, table, "database is not open"))
		return fut
	}
	posted := h.factory.Post(func() {
		if db.Closed() {
			fut.reject(newError(KindConnection, op, table, "database connection was closed"))
			return
		}
		fn(db)
	})
	if !posted {
		fut.reject(newError(KindConnection, op, table, "storage engine is not running"))
	}
	return fut
}

// bindRequest settles fut from a single request: convert maps the request's
// result on success, errors reject with TransactionError.
func bindRequest[T any](fut *Future[T], req *engine.Request, op, table string, convert func(any) T) {
	req.OnSuccess(func(result any) {
		fut.resolve(convert(result))
	})
	req.OnError(func(err *engine.Error) {
		fut.reject(wrapError(KindTransaction, op, table, err))
	})
}

// bindTransaction settles fut from a transaction's outcome: commit resolves
// with value, any request error or abort rejects with TransactionError.
// Whichever fires first wins.
func bindTransaction[T any](fut *Future[T], tx *engine.Transaction, op, table string, value T) {
	tx.OnComplete(func() {
		fut.resolve(value)
	})
	tx.OnError(func(err *engine.Error) {
		fut.reject(wrapError(KindTransaction, op, table, err))
	})
	tx.OnAbort(func(err *engine.Error) {
		fut.reject(wrapError(KindTransaction, op, table, err))
	})
}

// bindFailure rejects fut when the transaction fails, without resolving on
// commit. Used when the value comes from a request callback.
func bindFailure[T any](fut *Future[T], tx *engine.Transaction, op, table string) {
	tx.OnError(func(err *engine.Error) {
		fut.reject(wrapError(KindTransaction, op, table, err))
	})
	tx.OnAbort(func(err *engine.Error) {
		fut.reject(wrapError(KindTransaction, op, table, err))
	})
}

// fail rejects fut with err and aborts tx so nothing it wrote is kept.
func fail[T any](fut *Future[T], tx *engine.Transaction, err *Error) {
	fut.reject(err)
	if tx != nil && !tx.Finished() {
		tx.Abort()
	}
}

// engineFailure wraps a synchronous engine error.
func engineFailure(op, table string, err error) *Error {
	return wrapError(KindTransaction, op, table, err)
}
