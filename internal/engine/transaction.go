package engine

import (
	"errors"
	"slices"

	"github.com/roach88/asyncdb/internal/store"
)

// Mode is a transaction mode.
type Mode string

const (
	// ReadOnly transactions may only read.
	ReadOnly Mode = "readonly"
	// ReadWrite transactions may read and write records.
	ReadWrite Mode = "readwrite"
	// VersionChange is the mode of the upgrade transaction; it may also
	// change the schema.
	VersionChange Mode = "versionchange"
)

type txState int

const (
	txWaiting  txState = iota // queued behind other jobs of the database
	txRunning                 // owns a SQL transaction
	txFinished                // committed or aborted
)

// Transaction groups requests that commit or abort together.
// Loop goroutine only.
type Transaction struct {
	db    *Database
	id    string
	mode  Mode
	scope []string

	state  txState
	active bool
	sqlTx  *store.Tx
	done   func()
	err    *Error

	// queue holds requests not yet executed; inFlight is the executed
	// request whose callback has not run yet.
	queue       []*Request
	inFlight    *Request
	dispatching int

	// Upgrade transactions only.
	openReq    *OpenRequest
	oldVersion uint64
	rollback   map[string]*store.StoreMeta

	onComplete func()
	onError    func(*Error)
	onAbort    func(*Error)
}

func newTransaction(db *Database, scope []string, mode Mode) *Transaction {
	tx := &Transaction{
		db:     db,
		id:     db.f.ids.Generate(),
		mode:   mode,
		scope:  scope,
		state:  txWaiting,
		active: true,
	}
	db.f.live = append(db.f.live, tx)
	db.f.log.Debug("transaction created", "database", db.ds.name, "tx", tx.id, "mode", mode, "scope", scope)
	return tx
}

func newUpgradeTransaction(db *Database, sqlTx *store.Tx, oldVersion, newVersion uint64, req *OpenRequest, done func()) *Transaction {
	tx := &Transaction{
		db:         db,
		id:         db.f.ids.Generate(),
		mode:       VersionChange,
		scope:      db.ObjectStoreNames(),
		state:      txRunning,
		sqlTx:      sqlTx,
		done:       done,
		openReq:    req,
		oldVersion: oldVersion,
		rollback:   cloneCatalog(db.catalog),
	}
	db.version = newVersion
	db.upgrade = tx
	db.f.live = append(db.f.live, tx)
	return tx
}

// ID returns the transaction identifier used in logs.
func (t *Transaction) ID() string { return t.id }

// Mode returns the transaction mode.
func (t *Transaction) Mode() Mode { return t.mode }

// DB returns the connection the transaction belongs to.
func (t *Transaction) DB() *Database { return t.db }

// Error returns the reason the transaction aborted, if it did.
func (t *Transaction) Error() *Error { return t.err }

// Finished reports whether the transaction committed or aborted.
func (t *Transaction) Finished() bool { return t.state == txFinished }

// Active reports whether requests may be issued right now.
func (t *Transaction) Active() bool { return t.active && t.state != txFinished }

// OnComplete registers the commit callback.
func (t *Transaction) OnComplete(fn func()) { t.onComplete = fn }

// OnError registers a callback fired when one of the transaction's requests
// fails, before the transaction aborts.
func (t *Transaction) OnError(fn func(err *Error)) { t.onError = fn }

// OnAbort registers the abort callback.
func (t *Transaction) OnAbort(fn func(err *Error)) { t.onAbort = fn }

// ObjectStore returns a handle to a store in the transaction's scope.
func (t *Transaction) ObjectStore(name string) (*ObjectStore, error) {
	if t.state == txFinished {
		return nil, newError(InvalidStateError, "the transaction has finished")
	}
	if !slices.Contains(t.scope, name) {
		return nil, newError(NotFoundError, "object store %q is not in the transaction scope", name)
	}
	meta, ok := t.db.catalog[name]
	if !ok {
		return nil, newError(NotFoundError, "object store %q not found", name)
	}
	return &ObjectStore{tx: t, name: name, meta: meta}, nil
}

// Abort rolls the transaction back. Queued requests fail with AbortError.
func (t *Transaction) Abort() error {
	if t.state == txFinished {
		return newError(InvalidStateError, "the transaction has finished")
	}
	t.abort(newError(AbortError, "the transaction was aborted"))
	return nil
}

// Checkpoint issues a request that does nothing. It succeeds once every
// request issued before it has succeeded, which lets callers wait for queued
// schema changes.
func (t *Transaction) Checkpoint() (*Request, error) {
	if err := t.checkActive(); err != nil {
		return nil, err
	}
	return t.issue("checkpoint", "", func(*store.Tx) (any, *Error) { return nil, nil }), nil
}

func (t *Transaction) checkActive() error {
	if !t.active || t.state == txFinished {
		return newError(TransactionInactiveError, "the transaction is not active")
	}
	return nil
}

func (t *Transaction) checkWritable() error {
	if err := t.checkActive(); err != nil {
		return err
	}
	if t.mode == ReadOnly {
		return newError(ReadOnlyError, "the transaction is read-only")
	}
	return nil
}

// issue queues a request.
func (t *Transaction) issue(op, source string, exec func(*store.Tx) (any, *Error)) *Request {
	r := &Request{tx: t, op: op, source: source, seq: t.db.f.clock.Next(), exec: exec}
	t.queue = append(t.queue, r)
	return r
}

// internal queues a schema change. A failure surfaces like any request error.
func (t *Transaction) internal(op, source string, fn func(*store.Tx) error) {
	t.issue(op, source, func(st *store.Tx) (any, *Error) {
		if err := fn(st); err != nil {
			return nil, storeError(err)
		}
		return nil, nil
	})
}

// requeue puts a cursor request back at the end of the queue.
func (t *Transaction) requeue(r *Request) {
	r.done, r.result, r.err = false, nil, nil
	r.seq = t.db.f.clock.Next()
	t.queue = append(t.queue, r)
}

// run is the transaction's job in the database FIFO.
func (t *Transaction) run(done func()) {
	t.done = done
	if t.state == txFinished {
		done()
		return
	}
	if t.db.ds.store == nil {
		t.abort(newError(InvalidStateError, "the database connection was closed"))
		return
	}
	sqlTx, err := t.db.ds.store.Begin(t.db.f.ctx)
	if err != nil {
		t.abort(wrapError(UnknownError, err))
		return
	}
	t.sqlTx = sqlTx
	t.state = txRunning
	t.db.f.log.Debug("transaction started", "database", t.db.ds.name, "tx", t.id)
}

// advance executes the next request or commits. Called after every task.
func (t *Transaction) advance() {
	if t.state != txRunning || t.dispatching > 0 {
		return
	}
	if len(t.queue) == 0 {
		t.commit()
		return
	}

	r := t.queue[0]
	t.queue[0] = nil
	t.queue = t.queue[1:]

	result, err := r.exec(t.sqlTx)
	t.db.f.log.Debug("request executed",
		"tx", t.id,
		"seq", r.seq,
		"op", r.op,
		"source", r.source,
		"ok", err == nil,
	)

	t.inFlight = r
	t.dispatching++
	t.db.f.enqueue(func() {
		t.dispatching--
		if t.inFlight == r {
			t.inFlight = nil
		}
		t.deliver(r, result, err)
	})
}

// deliver runs a request's callback with the transaction active.
func (t *Transaction) deliver(r *Request, result any, err *Error) {
	if r.done {
		return
	}
	if t.state == txFinished {
		return
	}
	t.active = true
	if err == nil {
		r.succeed(result)
		return
	}

	r.fail(err)
	if t.onError != nil {
		t.onError(err)
	}
	if t.state != txFinished {
		t.abort(err)
	}
}

func (t *Transaction) commit() {
	if err := t.sqlTx.Commit(); err != nil {
		t.abort(wrapError(UnknownError, err))
		return
	}
	t.state = txFinished
	t.db.f.removeLive(t)
	t.db.f.log.Debug("transaction committed", "database", t.db.ds.name, "tx", t.id)

	f := t.db.f
	if t.mode == VersionChange {
		t.db.upgrade = nil
		f.log.Info("database upgraded", "database", t.db.ds.name, "version", t.db.version, "conn", t.db.id)
	}
	f.enqueue(func() {
		if t.onComplete != nil {
			t.onComplete()
		}
	})
	if t.openReq != nil {
		req, db := t.openReq, t.db
		f.enqueue(func() { req.succeed(db) })
	}
	t.done()
}

// abort rolls back, fails queued requests and schedules OnAbort.
func (t *Transaction) abort(err *Error) {
	if t.state == txFinished {
		return
	}
	t.state = txFinished
	t.err = err
	f := t.db.f
	f.removeLive(t)

	if t.sqlTx != nil {
		if rbErr := t.sqlTx.Rollback(); rbErr != nil {
			f.log.Warn("rollback failed", "tx", t.id, "error", rbErr)
		}
	}
	f.log.Debug("transaction aborted", "database", t.db.ds.name, "tx", t.id, "error", err)

	pending := t.queue
	if t.inFlight != nil && !t.inFlight.done {
		pending = append([]*Request{t.inFlight}, pending...)
	}
	t.queue, t.inFlight = nil, nil
	abortErr := newError(AbortError, "the transaction was aborted")
	for _, r := range pending {
		r.done, r.err = true, abortErr
		f.enqueue(func() {
			if r.onError != nil {
				r.onError(abortErr)
			}
		})
	}

	if t.mode == VersionChange {
		db := t.db
		db.upgrade = nil
		db.catalog = t.rollback
		db.version = t.oldVersion
		db.closeConn()
		f.log.Info("database upgrade aborted", "database", db.ds.name, "version", t.oldVersion, "error", err)
	}

	f.enqueue(func() {
		if t.onAbort != nil {
			t.onAbort(err)
		}
	})
	if t.openReq != nil {
		req := t.openReq
		f.enqueue(func() {
			req.fail(&Error{Name: AbortError, Message: "the version change transaction was aborted: " + err.Message, Err: err.Err})
		})
	}

	// A transaction aborted before its job started releases the slot
	// from run.
	if t.done != nil {
		t.done()
	}
}

// storeError maps a storage failure onto an engine error name.
func storeError(err error) *Error {
	switch {
	case errors.Is(err, store.ErrKeyExists),
		errors.Is(err, store.ErrUniqueViolation),
		errors.Is(err, store.ErrObjectStoreExists),
		errors.Is(err, store.ErrIndexExists):
		return wrapError(ConstraintError, err)
	case errors.Is(err, store.ErrNoObjectStore), errors.Is(err, store.ErrNoIndex):
		return wrapError(NotFoundError, err)
	case errors.Is(err, store.ErrKeyGenExhausted):
		return wrapError(ConstraintError, err)
	}
	return wrapError(UnknownError, err)
}
