package engine

import (
	"github.com/roach88/asyncdb/internal/store"
)

// UpgradeEvent is delivered to OpenRequest.OnUpgradeNeeded when the
// requested version is above the stored one. Tx is the upgrade transaction;
// schema changes are only legal while it is active.
type UpgradeEvent struct {
	OldVersion uint64
	NewVersion uint64
	DB         *Database
	Tx         *Transaction
}

// OpenRequest is the pending outcome of Factory.Open.
// Exactly one of OnSuccess or OnError fires; OnUpgradeNeeded may fire first.
type OpenRequest struct {
	name    string
	version uint64

	done   bool
	result *Database
	err    *Error

	onSuccess func(*Database)
	onError   func(*Error)
	onUpgrade func(UpgradeEvent)
}

// OnSuccess registers the success callback.
func (r *OpenRequest) OnSuccess(fn func(db *Database)) { r.onSuccess = fn }

// OnError registers the error callback.
func (r *OpenRequest) OnError(fn func(err *Error)) { r.onError = fn }

// OnUpgradeNeeded registers the upgrade callback.
func (r *OpenRequest) OnUpgradeNeeded(fn func(ev UpgradeEvent)) { r.onUpgrade = fn }

// Result returns the opened connection once the request succeeded.
func (r *OpenRequest) Result() *Database { return r.result }

// Error returns the failure once the request failed.
func (r *OpenRequest) Error() *Error { return r.err }

// Done reports whether the request has settled.
func (r *OpenRequest) Done() bool { return r.done }

func (r *OpenRequest) succeed(db *Database) {
	r.done, r.result = true, db
	if r.onSuccess != nil {
		r.onSuccess(db)
	}
}

func (r *OpenRequest) fail(err *Error) {
	r.done, r.err = true, err
	if r.onError != nil {
		r.onError(err)
	}
}

// Open requests a connection to the database called name at version.
// Version 0 opens at the stored version, creating new databases at 1.
// Loop goroutine only.
func (f *Factory) Open(name string, version uint64) *OpenRequest {
	req := &OpenRequest{name: name, version: version}
	if name == "" {
		f.enqueue(func() { req.fail(newError(DataError, "database name is required")) })
		return req
	}
	ds := f.database(name)
	f.schedule(ds, job{
		run:    func(done func()) { f.runOpen(ds, req, done) },
		cancel: func(err *Error) { f.enqueue(func() { req.fail(err) }) },
	})
	return req
}

func (f *Factory) runOpen(ds *dbState, req *OpenRequest, done func()) {
	fail := func(err *Error) {
		f.log.Info("open failed", "database", ds.name, "version", req.version, "error", err)
		f.enqueue(func() { req.fail(err) })
		done()
	}

	s, err := f.acquire(ds)
	if err != nil {
		fail(wrapError(UnknownError, err))
		return
	}
	sqlTx, err := s.Begin(f.ctx)
	if err != nil {
		fail(wrapError(UnknownError, err))
		return
	}
	stored, err := sqlTx.Version(f.ctx)
	if err != nil {
		sqlTx.Rollback()
		fail(wrapError(UnknownError, err))
		return
	}
	metas, err := sqlTx.ObjectStores(f.ctx)
	if err != nil {
		sqlTx.Rollback()
		fail(wrapError(UnknownError, err))
		return
	}

	requested := req.version
	if requested == 0 {
		requested = max(stored, 1)
	}
	if requested < stored {
		sqlTx.Rollback()
		fail(newError(VersionError, "the requested version (%d) is less than the existing version (%d)", requested, stored))
		return
	}

	db := newDatabase(f, ds, stored, metas)
	ds.conns = append(ds.conns, db)

	if requested == stored {
		if err := sqlTx.Commit(); err != nil {
			db.closeConn()
			fail(wrapError(UnknownError, err))
			return
		}
		f.log.Info("database opened", "database", ds.name, "version", stored, "conn", db.id)
		f.enqueue(func() { req.succeed(db) })
		done()
		return
	}

	// Other connections cannot survive a schema change.
	for _, other := range copyConns(ds.conns) {
		if other != db {
			f.log.Info("closing connection for version change", "database", ds.name, "conn", other.id)
			other.forceClose()
		}
	}

	if err := sqlTx.SetVersion(f.ctx, requested); err != nil {
		sqlTx.Rollback()
		db.closeConn()
		fail(wrapError(UnknownError, err))
		return
	}

	tx := newUpgradeTransaction(db, sqlTx, stored, requested, req, done)
	f.log.Info("database upgrade started", "database", ds.name, "old_version", stored, "new_version", requested, "conn", db.id, "tx", tx.id)

	tx.dispatching++
	f.enqueue(func() {
		tx.dispatching--
		if tx.state == txFinished {
			return
		}
		tx.active = true
		if req.onUpgrade != nil {
			req.onUpgrade(UpgradeEvent{OldVersion: stored, NewVersion: requested, DB: db, Tx: tx})
		}
	})
}

// copyConns copies a connection list so callers may mutate the original while
// iterating.
func copyConns(conns []*Database) []*Database {
	return append([]*Database(nil), conns...)
}

// DeleteRequest is the pending outcome of Factory.DeleteDatabase.
type DeleteRequest struct {
	name string

	done       bool
	oldVersion uint64
	err        *Error

	onSuccess func(oldVersion uint64)
	onError   func(*Error)
}

// OnSuccess registers the success callback. It receives the version the
// database had before deletion, 0 if it did not exist.
func (r *DeleteRequest) OnSuccess(fn func(oldVersion uint64)) { r.onSuccess = fn }

// OnError registers the error callback.
func (r *DeleteRequest) OnError(fn func(err *Error)) { r.onError = fn }

// Done reports whether the request has settled.
func (r *DeleteRequest) Done() bool { return r.done }

// Error returns the failure once the request failed.
func (r *DeleteRequest) Error() *Error { return r.err }

func (r *DeleteRequest) succeed(oldVersion uint64) {
	r.done, r.oldVersion = true, oldVersion
	if r.onSuccess != nil {
		r.onSuccess(oldVersion)
	}
}

func (r *DeleteRequest) fail(err *Error) {
	r.done, r.err = true, err
	if r.onError != nil {
		r.onError(err)
	}
}

// DeleteDatabase requests deletion of the database called name. Open
// connections are closed when the request reaches the head of the
// database's queue. Deleting a missing database succeeds.
// Loop goroutine only.
func (f *Factory) DeleteDatabase(name string) *DeleteRequest {
	req := &DeleteRequest{name: name}
	if name == "" {
		f.enqueue(func() { req.fail(newError(DataError, "database name is required")) })
		return req
	}
	ds := f.database(name)
	f.schedule(ds, job{
		run:    func(done func()) { f.runDelete(ds, req, done) },
		cancel: func(err *Error) { f.enqueue(func() { req.fail(err) }) },
	})
	return req
}

func (f *Factory) runDelete(ds *dbState, req *DeleteRequest, done func()) {
	defer done()

	fail := func(err *Error) {
		f.log.Info("delete database failed", "database", ds.name, "error", err)
		f.enqueue(func() { req.fail(err) })
	}

	for _, conn := range copyConns(ds.conns) {
		f.log.Info("closing connection for delete", "database", ds.name, "conn", conn.id)
		conn.forceClose()
	}

	old, err := f.storedVersion(ds)
	if err != nil {
		fail(wrapError(UnknownError, err))
		return
	}
	if ds.store != nil {
		if err := ds.store.Close(); err != nil {
			fail(wrapError(UnknownError, err))
			return
		}
		ds.store = nil
	}
	if err := store.Destroy(f.cfg, ds.name); err != nil {
		fail(wrapError(UnknownError, err))
		return
	}

	f.log.Info("database deleted", "database", ds.name, "old_version", old)
	f.enqueue(func() { req.succeed(old) })
}

func (f *Factory) storedVersion(ds *dbState) (uint64, error) {
	s, err := f.acquire(ds)
	if err != nil {
		return 0, err
	}
	tx, err := s.Begin(f.ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	return tx.Version(f.ctx)
}
