package asyncdb

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/asyncdb/internal/engine"
)

// TableSpec describes an object store created during upgrade.
type TableSpec struct {
	Name          string      `json:"name" yaml:"name"`
	KeyPath       string      `json:"keyPath,omitempty" yaml:"keyPath,omitempty"`
	AutoIncrement bool        `json:"autoIncrement,omitempty" yaml:"autoIncrement,omitempty"`
	Indices       []IndexSpec `json:"indices,omitempty" yaml:"indices,omitempty"`
}

// IndexSpec describes an index of a TableSpec. Name and KeyPath are required.
type IndexSpec struct {
	Name    string `json:"name" yaml:"name"`
	KeyPath string `json:"keyPath" yaml:"keyPath"`
	Unique  bool   `json:"unique,omitempty" yaml:"unique,omitempty"`
}

// Option configures a Handle.
type Option func(*Handle)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handle) {
		h.log = l
	}
}

// WithTracerProvider sets the tracer provider. Default: the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Handle) {
		h.tracer = tp.Tracer(tracerName)
	}
}

// Handle owns one connection to one database.
//
// Thread-safety: all methods are safe for concurrent use. Connection state is
// guarded by mu; engine objects are only touched on the engine loop.
type Handle struct {
	factory *engine.Factory
	log     *slog.Logger
	tracer  trace.Tracer

	mu      sync.Mutex
	name    string
	version uint64
	tables  []TableSpec
	db      *engine.Database
	opening bool
}

// New creates a Handle over an engine factory. The factory's loop must be
// running for operations to make progress.
func New(factory *engine.Factory, opts ...Option) (*Handle, error) {
	if factory == nil {
		return nil, newError(KindConnection, "new", "", "no storage engine configured")
	}
	h := &Handle{
		factory: factory,
		log:     slog.Default(),
		tracer:  otel.GetTracerProvider().Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Name returns the name of the database the handle was last opened on.
func (h *Handle) Name() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}

// Version returns the version the database was opened at.
func (h *Handle) Version() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.version
}

// Tables returns the table specs passed to Open.
func (h *Handle) Tables() []TableSpec {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.tables)
}

// IsOpen reports whether the handle holds a connection.
func (h *Handle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db != nil
}

// Open connects to the database called name at version, migrating the
// schema to tables when the stored version is lower. Version 0 opens at
// the stored version.
//
// The future resolves with h once the connection is usable. Opening a handle
// that is already open or opening is rejected with OpenError.
func (h *Handle) Open(ctx context.Context, name string, version uint64, tables []TableSpec) *Future[*Handle] {
	const op = "open"
	fut := newFuture[*Handle](op, h.log)
	h.trace(ctx, fut, op, name)

	h.mu.Lock()
	if h.db != nil || h.opening {
		current := h.name
		h.mu.Unlock()
		fut.reject(newError(KindOpen, op, "", "handle is already open on %q", current))
		return fut
	}
	h.opening = true
	h.mu.Unlock()

	fut.onSettle(func(error) {
		h.mu.Lock()
		h.opening = false
		h.mu.Unlock()
	})

	tables = slices.Clone(tables)
	posted := h.factory.Post(func() {
		var m *migrator
		req := h.factory.Open(name, version)

		req.OnUpgradeNeeded(func(ev engine.UpgradeEvent) {
			h.log.Info("database upgrade needed",
				"database", name,
				"old_version", ev.OldVersion,
				"new_version", ev.NewVersion,
				"tables", len(tables),
			)
			m = newMigrator(h.log, ev, tables)
			ev.Tx.OnComplete(func() {
				h.connected(ev.DB, name, tables)
				fut.resolve(h)
			})
			ev.Tx.OnAbort(func(err *engine.Error) {
				m.release()
				if m.err != nil {
					fut.reject(m.err)
					return
				}
				fut.reject(openFailure(op, err))
			})
			m.run()
		})
		req.OnSuccess(func(db *engine.Database) {
			h.connected(db, name, tables)
			fut.resolve(h)
		})
		req.OnError(func(err *engine.Error) {
			if m != nil && m.err != nil {
				fut.reject(m.err)
				return
			}
			fut.reject(openFailure(op, err))
		})
	})
	if !posted {
		fut.reject(newError(KindConnection, op, "", "storage engine is not running"))
	}
	return fut
}

// openFailure wraps an open request failure. An engine that stopped before
// the open settled is reported as ConnectionError.
func openFailure(op string, err *engine.Error) *Error {
	if errors.Is(err, engine.ErrStopped) {
		return wrapError(KindConnection, op, "", err)
	}
	return wrapError(KindOpen, op, "", err)
}

// connected records an open connection. Loop goroutine only.
func (h *Handle) connected(db *engine.Database, name string, tables []TableSpec) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.db == db {
		return
	}
	h.db = db
	h.name = name
	h.version = db.Version()
	h.tables = tables
	db.OnClose(func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.db == db {
			h.db = nil
		}
		h.log.Info("connection closed by engine", "database", name)
	})
	h.log.Info("database opened", "database", name, "version", h.version, "conn", db.ID())
}

// Close releases the connection. Closing a closed handle is a no-op.
func (h *Handle) Close() error {
	h.mu.Lock()
	db := h.db
	h.db = nil
	h.mu.Unlock()
	if db == nil {
		return nil
	}
	if !h.factory.Post(db.Close) {
		return newError(KindConnection, "close", "", "storage engine is not running")
	}
	return nil
}

// DropDatabase deletes the database called name. If the handle is connected
// to it, the connection is released first. The outcome is only logged.
func (h *Handle) DropDatabase(name string) {
	h.mu.Lock()
	db := h.db
	if db != nil && h.name == name {
		h.db = nil
	} else {
		db = nil
	}
	h.mu.Unlock()

	posted := h.factory.Post(func() {
		if db != nil {
			db.Close()
		}
		req := h.factory.DeleteDatabase(name)
		req.OnSuccess(func(oldVersion uint64) {
			h.log.Info("database dropped", "database", name, "old_version", oldVersion)
		})
		req.OnError(func(err *engine.Error) {
			h.log.Warn("drop database failed", "database", name, "error", err)
		})
	})
	if !posted {
		h.log.Warn("drop database not issued: storage engine is not running", "database", name)
	}
}

// conn returns the open connection or nil.
func (h *Handle) conn() *engine.Database {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db
}
