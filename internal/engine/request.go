package engine

import "github.com/roach88/asyncdb/internal/store"

// Request is the pending outcome of one operation inside a transaction.
// Exactly one of OnSuccess or OnError fires per execution; a cursor request
// fires OnSuccess again after each Continue.
//
// Result types by operation:
//   - Add, Put: record.Key
//   - Get, Index.Get: record.Object, nil when absent
//   - GetAll: []record.Object
//   - Count: int
//   - Delete, Clear, Checkpoint: nil
//   - OpenCursor: *Cursor, nil once exhausted
type Request struct {
	tx     *Transaction
	op     string
	source string
	seq    int64
	exec   func(*store.Tx) (any, *Error)

	done   bool
	result any
	err    *Error

	onSuccess func(result any)
	onError   func(err *Error)
}

// OnSuccess registers the success callback.
func (r *Request) OnSuccess(fn func(result any)) { r.onSuccess = fn }

// OnError registers the error callback.
func (r *Request) OnError(fn func(err *Error)) { r.onError = fn }

// Result returns the value of a successful request.
func (r *Request) Result() any { return r.result }

// Error returns the failure of a failed request.
func (r *Request) Error() *Error { return r.err }

// Done reports whether the request has settled.
func (r *Request) Done() bool { return r.done }

// Transaction returns the transaction the request belongs to.
func (r *Request) Transaction() *Transaction { return r.tx }

// Seq returns the request's logical clock stamp.
func (r *Request) Seq() int64 { return r.seq }

func (r *Request) succeed(result any) {
	r.done, r.result = true, result
	if r.onSuccess != nil {
		r.onSuccess(result)
	}
}

func (r *Request) fail(err *Error) {
	r.done, r.err = true, err
	if r.onError != nil {
		r.onError(err)
	}
}
