package engine

import (
	"maps"
	"slices"

	"github.com/roach88/asyncdb/internal/record"
	"github.com/roach88/asyncdb/internal/store"
)

// Database is an open connection to one database.
// Loop goroutine only.
type Database struct {
	f       *Factory
	ds      *dbState
	id      string
	version uint64
	catalog map[string]*store.StoreMeta
	closed  bool

	// upgrade is the running upgrade transaction, if any.
	upgrade *Transaction

	onClose func()
}

func newDatabase(f *Factory, ds *dbState, version uint64, metas []store.StoreMeta) *Database {
	db := &Database{
		f:       f,
		ds:      ds,
		id:      f.ids.Generate(),
		version: version,
		catalog: make(map[string]*store.StoreMeta, len(metas)),
	}
	for _, m := range metas {
		db.catalog[m.Name] = &m
	}
	return db
}

// Name returns the database name.
func (db *Database) Name() string { return db.ds.name }

// Version returns the connection's database version.
func (db *Database) Version() uint64 { return db.version }

// ID returns the connection identifier used in logs.
func (db *Database) ID() string { return db.id }

// Closed reports whether the connection was closed.
func (db *Database) Closed() bool { return db.closed }

// ObjectStoreNames returns the object store names in sorted order.
func (db *Database) ObjectStoreNames() []string {
	return slices.Sorted(maps.Keys(db.catalog))
}

// OnClose registers a callback fired when the engine closes the connection
// itself, for a version change or a delete by another request.
func (db *Database) OnClose(fn func()) { db.onClose = fn }

// Close closes the connection. Transactions already created still finish.
func (db *Database) Close() {
	if db.closed {
		return
	}
	db.f.log.Debug("connection closed", "database", db.ds.name, "conn", db.id)
	db.closeConn()
}

func (db *Database) closeConn() {
	db.closed = true
	db.ds.conns = slices.DeleteFunc(db.ds.conns, func(c *Database) bool { return c == db })
	db.f.release(db.ds)
}

func (db *Database) forceClose() {
	if db.closed {
		return
	}
	db.closeConn()
	if db.onClose != nil {
		fn := db.onClose
		db.f.enqueue(fn)
	}
}

// Transaction creates a transaction over the named object stores.
// Mode must be ReadOnly or ReadWrite.
func (db *Database) Transaction(scope []string, mode Mode) (*Transaction, error) {
	if db.closed {
		return nil, newError(InvalidStateError, "the database connection is closing")
	}
	if db.f.stopping {
		return nil, stoppedError(InvalidStateError)
	}
	if db.upgrade != nil {
		return nil, newError(InvalidStateError, "a version change transaction is running")
	}
	if mode != ReadOnly && mode != ReadWrite {
		return nil, newError(InvalidAccessError, "invalid transaction mode %q", mode)
	}
	if len(scope) == 0 {
		return nil, newError(InvalidAccessError, "the transaction scope is empty")
	}
	scope = slices.Compact(slices.Sorted(slices.Values(scope)))
	for _, name := range scope {
		if _, ok := db.catalog[name]; !ok {
			return nil, newError(NotFoundError, "object store %q not found", name)
		}
	}

	tx := newTransaction(db, scope, mode)
	db.f.schedule(db.ds, job{run: tx.run, cancel: tx.abort})
	return tx, nil
}

// ObjectStoreOptions configures CreateObjectStore.
type ObjectStoreOptions struct {
	// KeyPath names the field holding the primary key. Empty means keys are
	// passed explicitly (out-of-line).
	KeyPath string

	// AutoIncrement enables the key generator.
	AutoIncrement bool
}

// CreateObjectStore adds an object store. Only legal inside an active
// upgrade transaction. The store exists for later requests immediately;
// its creation is applied in order with the transaction's other requests.
func (db *Database) CreateObjectStore(name string, opts ObjectStoreOptions) (*ObjectStore, error) {
	tx, err := db.upgradeTx()
	if err != nil {
		return nil, err
	}
	if _, ok := db.catalog[name]; ok {
		return nil, newError(ConstraintError, "object store %q already exists", name)
	}
	if err := record.ValidateKeyPath(opts.KeyPath); err != nil {
		return nil, wrapError(SyntaxError, err)
	}

	meta := &store.StoreMeta{Name: name, KeyPath: opts.KeyPath, AutoIncrement: opts.AutoIncrement, Indexes: []store.IndexMeta{}}
	db.catalog[name] = meta
	tx.scope = append(tx.scope, name)
	snapshot := cloneMeta(meta)
	tx.internal("createObjectStore", name, func(t *store.Tx) error {
		return t.CreateObjectStore(db.f.ctx, snapshot)
	})
	return &ObjectStore{tx: tx, name: name, meta: meta}, nil
}

// DeleteObjectStore removes an object store and its records. Only legal
// inside an active upgrade transaction.
func (db *Database) DeleteObjectStore(name string) error {
	tx, err := db.upgradeTx()
	if err != nil {
		return err
	}
	if _, ok := db.catalog[name]; !ok {
		return newError(NotFoundError, "object store %q not found", name)
	}
	delete(db.catalog, name)
	tx.scope = slices.DeleteFunc(tx.scope, func(s string) bool { return s == name })
	tx.internal("deleteObjectStore", name, func(t *store.Tx) error {
		return t.DeleteObjectStore(db.f.ctx, name)
	})
	return nil
}

func (db *Database) upgradeTx() (*Transaction, error) {
	tx := db.upgrade
	if tx == nil {
		return nil, newError(InvalidStateError, "schema changes require a version change transaction")
	}
	if !tx.active {
		return nil, newError(TransactionInactiveError, "the version change transaction is not active")
	}
	return tx, nil
}

func cloneMeta(m *store.StoreMeta) store.StoreMeta {
	c := *m
	c.Indexes = slices.Clone(m.Indexes)
	return c
}

func cloneCatalog(c map[string]*store.StoreMeta) map[string]*store.StoreMeta {
	out := make(map[string]*store.StoreMeta, len(c))
	for name, m := range c {
		cm := cloneMeta(m)
		out[name] = &cm
	}
	return out
}
