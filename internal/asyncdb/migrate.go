package asyncdb

import (
	"iter"
	"log/slog"
	"slices"

	"github.com/roach88/asyncdb/internal/engine"
)

// migrator creates tables inside an upgrade transaction, one table at a
// time. Each table's schema changes are followed by a checkpoint request;
// the next table is only created from that checkpoint's success callback.
//
// Tables that already exist keep their records. Missing indices are added
// and indices whose keyPath or uniqueness changed are rebuilt, so re-running
// a migration at a higher version is harmless. A table whose keyPath or
// autoIncrement changed cannot be migrated in place and fails with
// SchemaError.
type migrator struct {
	log  *slog.Logger
	ev   engine.UpgradeEvent
	next func() (TableSpec, bool)
	stop func()

	// err is the SchemaError that aborted the upgrade, if any.
	err *Error
}

func newMigrator(log *slog.Logger, ev engine.UpgradeEvent, tables []TableSpec) *migrator {
	next, stop := iter.Pull(slices.Values(tables))
	return &migrator{log: log, ev: ev, next: next, stop: stop}
}

// run starts the chain. It returns once the first table's changes are
// queued; the rest follows from engine callbacks. The owner must call
// release if the upgrade transaction aborts.
func (m *migrator) run() {
	m.step()
}

// release ends the pull iterator. Safe to call more than once.
func (m *migrator) release() {
	m.stop()
}

func (m *migrator) step() {
	spec, ok := m.next()
	if !ok {
		m.stop()
		return
	}
	if err := m.createTable(spec); err != nil {
		m.abort(err)
		return
	}
	cp, err := m.ev.Tx.Checkpoint()
	if err != nil {
		m.abort(wrapError(KindSchema, "open", spec.Name, err))
		return
	}
	cp.OnSuccess(func(any) {
		m.log.Debug("table migrated", "table", spec.Name, "indices", len(spec.Indices))
		m.step()
	})
}

func (m *migrator) createTable(spec TableSpec) *Error {
	if spec.Name == "" {
		return newError(KindSchema, "open", "", "name required")
	}

	var store *engine.ObjectStore
	var err error
	if slices.Contains(m.ev.DB.ObjectStoreNames(), spec.Name) {
		store, err = m.ev.Tx.ObjectStore(spec.Name)
		if err == nil && (store.KeyPath() != spec.KeyPath || store.AutoIncrement() != spec.AutoIncrement) {
			return newError(KindSchema, "open", spec.Name,
				"existing table has keyPath %q autoIncrement %t, requested keyPath %q autoIncrement %t",
				store.KeyPath(), store.AutoIncrement(), spec.KeyPath, spec.AutoIncrement)
		}
	} else {
		store, err = m.ev.DB.CreateObjectStore(spec.Name, engine.ObjectStoreOptions{
			KeyPath:       spec.KeyPath,
			AutoIncrement: spec.AutoIncrement,
		})
	}
	if err != nil {
		return wrapError(KindSchema, "open", spec.Name, err)
	}

	existing := store.IndexNames()
	for _, idx := range spec.Indices {
		if idx.Name == "" || idx.KeyPath == "" {
			return newError(KindSchema, "open", spec.Name, "index requires name and keyPath")
		}
		if slices.Contains(existing, idx.Name) {
			current, err := store.Index(idx.Name)
			if err != nil {
				return wrapError(KindSchema, "open", spec.Name, err)
			}
			if current.KeyPath() == idx.KeyPath && current.Unique() == idx.Unique {
				continue
			}
			m.log.Info("rebuilding index",
				"table", spec.Name,
				"index", idx.Name,
				"key_path", idx.KeyPath,
				"unique", idx.Unique,
			)
			if err := store.DeleteIndex(idx.Name); err != nil {
				return wrapError(KindSchema, "open", spec.Name, err)
			}
		}
		if _, err := store.CreateIndex(idx.Name, idx.KeyPath, idx.Unique); err != nil {
			return wrapError(KindSchema, "open", spec.Name, err)
		}
	}
	return nil
}

func (m *migrator) abort(err *Error) {
	m.err = err
	m.stop()
	m.log.Info("schema migration failed", "error", err)
	if !m.ev.Tx.Finished() {
		m.ev.Tx.Abort()
	}
}
