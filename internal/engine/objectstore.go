package engine

import (
	"math"
	"slices"

	"github.com/roach88/asyncdb/internal/queryir"
	"github.com/roach88/asyncdb/internal/record"
	"github.com/roach88/asyncdb/internal/store"
)

// ObjectStore is a transaction-bound handle to one object store.
// Loop goroutine only.
type ObjectStore struct {
	tx   *Transaction
	name string
	meta *store.StoreMeta
}

// Name returns the store name.
func (s *ObjectStore) Name() string { return s.name }

// KeyPath returns the in-line key path, empty for out-of-line keys.
func (s *ObjectStore) KeyPath() string { return s.meta.KeyPath }

// AutoIncrement reports whether the store has a key generator.
func (s *ObjectStore) AutoIncrement() bool { return s.meta.AutoIncrement }

// Transaction returns the transaction the handle is bound to.
func (s *ObjectStore) Transaction() *Transaction { return s.tx }

// IndexNames returns the index names in sorted order.
func (s *ObjectStore) IndexNames() []string {
	names := make([]string, 0, len(s.meta.Indexes))
	for _, idx := range s.meta.Indexes {
		names = append(names, idx.Name)
	}
	slices.Sort(names)
	return names
}

// Index returns a handle to a named index.
func (s *ObjectStore) Index(name string) (*Index, error) {
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	meta, ok := s.meta.Index(name)
	if !ok {
		return nil, newError(NotFoundError, "index %q not found on object store %q", name, s.name)
	}
	return &Index{store: s, meta: meta}, nil
}

// Add inserts value. It fails with ConstraintError if the key exists.
// key must be nil for stores with a key path.
func (s *ObjectStore) Add(value record.Object, key record.Key) (*Request, error) {
	return s.write("add", value, key, false)
}

// Put inserts or replaces value.
// key must be nil for stores with a key path.
func (s *ObjectStore) Put(value record.Object, key record.Key) (*Request, error) {
	return s.write("put", value, key, true)
}

func (s *ObjectStore) write(op string, value record.Object, key record.Key, overwrite bool) (*Request, error) {
	if err := s.tx.checkWritable(); err != nil {
		return nil, err
	}
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	if value == nil {
		return nil, newError(DataError, "the value is not an object")
	}
	meta := cloneMeta(s.meta)
	rec := value.Clone()

	inline := meta.KeyPath != ""
	switch {
	case inline && key != nil:
		return nil, newError(DataError, "object store %q uses in-line keys and the key parameter was provided", s.name)
	case !inline && key == nil && !meta.AutoIncrement:
		return nil, newError(DataError, "object store %q uses out-of-line keys and has no key generator and the key parameter was not provided", s.name)
	case key != nil:
		if err := record.ValidateKey(key); err != nil {
			return nil, wrapError(DataError, err)
		}
	case inline:
		if k, ok := record.Extract(rec, meta.KeyPath); ok {
			if err := record.ValidateKey(k); err != nil {
				return nil, newError(DataError, "evaluating key path %q yielded an invalid key: %v", meta.KeyPath, err)
			}
			key = k
		} else if !meta.AutoIncrement {
			return nil, newError(DataError, "evaluating key path %q did not yield a value", meta.KeyPath)
		} else if err := record.Inject(rec.Clone(), meta.KeyPath, record.Int(0)); err != nil {
			return nil, wrapError(DataError, err)
		}
	}

	ctx := s.tx.db.f.ctx
	return s.tx.issue(op, s.name, func(t *store.Tx) (any, *Error) {
		k := key
		if k == nil {
			n, err := t.GenerateKey(ctx, meta.Name)
			if err != nil {
				return nil, storeError(err)
			}
			k = record.Int(n)
			if inline {
				if err := record.Inject(rec, meta.KeyPath, k); err != nil {
					return nil, wrapError(DataError, err)
				}
			}
		} else if n, ok := generatorFloor(k); ok && meta.AutoIncrement && n > 0 {
			if err := t.BumpKey(ctx, meta.Name, n); err != nil {
				return nil, storeError(err)
			}
		}
		if err := t.Put(ctx, meta, k, rec, overwrite); err != nil {
			return nil, storeError(err)
		}
		return k, nil
	}), nil
}

// Get reads the record stored under key.
func (s *ObjectStore) Get(key record.Key) (*Request, error) {
	if err := s.readable(); err != nil {
		return nil, err
	}
	if err := record.ValidateKey(key); err != nil {
		return nil, wrapError(DataError, err)
	}
	name, ctx := s.name, s.tx.db.f.ctx
	return s.tx.issue("get", name, func(t *store.Tx) (any, *Error) {
		obj, ok, err := t.Get(ctx, name, key)
		if err != nil {
			return nil, storeError(err)
		}
		if !ok {
			return record.Object(nil), nil
		}
		return obj, nil
	}), nil
}

// GetAll reads the records whose keys fall in r, in key order. A nil range
// reads every record; limit 0 means unbounded.
func (s *ObjectStore) GetAll(r *queryir.KeyRange, limit int) (*Request, error) {
	return s.getAll(queryir.Scan{Store: s.name, Range: r, Limit: limit})
}

func (s *ObjectStore) getAll(scan queryir.Scan) (*Request, error) {
	if err := s.readable(); err != nil {
		return nil, err
	}
	if err := scan.Validate(); err != nil {
		return nil, wrapError(DataError, err)
	}
	ctx := s.tx.db.f.ctx
	return s.tx.issue("getAll", sourceName(scan), func(t *store.Tx) (any, *Error) {
		rows, err := t.Scan(ctx, scan)
		if err != nil {
			return nil, storeError(err)
		}
		out := make([]record.Object, len(rows))
		for i, row := range rows {
			out[i] = row.Value
		}
		return out, nil
	}), nil
}

// Count counts the records whose keys fall in r.
func (s *ObjectStore) Count(r *queryir.KeyRange) (*Request, error) {
	return s.count(queryir.Scan{Store: s.name, Range: r})
}

func (s *ObjectStore) count(scan queryir.Scan) (*Request, error) {
	if err := s.readable(); err != nil {
		return nil, err
	}
	if err := scan.Validate(); err != nil {
		return nil, wrapError(DataError, err)
	}
	ctx := s.tx.db.f.ctx
	return s.tx.issue("count", sourceName(scan), func(t *store.Tx) (any, *Error) {
		n, err := t.Count(ctx, scan)
		if err != nil {
			return nil, storeError(err)
		}
		return n, nil
	}), nil
}

// Delete removes the record under key. Deleting a missing key succeeds.
func (s *ObjectStore) Delete(key record.Key) (*Request, error) {
	if err := s.tx.checkWritable(); err != nil {
		return nil, err
	}
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	if err := record.ValidateKey(key); err != nil {
		return nil, wrapError(DataError, err)
	}
	name, ctx := s.name, s.tx.db.f.ctx
	return s.tx.issue("delete", name, func(t *store.Tx) (any, *Error) {
		if _, err := t.Delete(ctx, name, key); err != nil {
			return nil, storeError(err)
		}
		return nil, nil
	}), nil
}

// Clear removes every record.
func (s *ObjectStore) Clear() (*Request, error) {
	if err := s.tx.checkWritable(); err != nil {
		return nil, err
	}
	if err := s.checkLive(); err != nil {
		return nil, err
	}
	name, ctx := s.name, s.tx.db.f.ctx
	return s.tx.issue("clear", name, func(t *store.Tx) (any, *Error) {
		if err := t.Clear(ctx, name); err != nil {
			return nil, storeError(err)
		}
		return nil, nil
	}), nil
}

// OpenCursor iterates the records whose keys fall in r. The request's
// OnSuccess fires with a *Cursor for each record and with nil at the end.
func (s *ObjectStore) OpenCursor(r *queryir.KeyRange, dir queryir.Direction) (*Request, error) {
	return s.openCursor(queryir.Scan{Store: s.name, Range: r, Direction: dir})
}

func (s *ObjectStore) openCursor(scan queryir.Scan) (*Request, error) {
	if err := s.readable(); err != nil {
		return nil, err
	}
	d, err := queryir.ParseDirection(string(scan.Direction))
	if err != nil {
		return nil, newError(DataError, "%v", err)
	}
	scan.Direction = d
	if err := scan.Validate(); err != nil {
		return nil, wrapError(DataError, err)
	}
	c := &Cursor{scan: scan, direction: d}
	c.req = s.tx.issue("openCursor", sourceName(scan), c.step(s.tx.db.f))
	return c.req, nil
}

// CreateIndex adds an index and populates it from existing records. Only
// legal inside an active upgrade transaction.
func (s *ObjectStore) CreateIndex(name, keyPath string, unique bool) (*Index, error) {
	if err := s.checkUpgrade(); err != nil {
		return nil, err
	}
	if _, ok := s.meta.Index(name); ok {
		return nil, newError(ConstraintError, "index %q already exists on object store %q", name, s.name)
	}
	if keyPath == "" {
		return nil, newError(SyntaxError, "index %q requires a key path", name)
	}
	if err := record.ValidateKeyPath(keyPath); err != nil {
		return nil, wrapError(SyntaxError, err)
	}

	meta := store.IndexMeta{Name: name, KeyPath: keyPath, Unique: unique}
	s.meta.Indexes = append(s.meta.Indexes, meta)
	storeName, ctx := s.name, s.tx.db.f.ctx
	s.tx.internal("createIndex", storeName+"."+name, func(t *store.Tx) error {
		return t.CreateIndex(ctx, storeName, meta)
	})
	return &Index{store: s, meta: meta}, nil
}

// DeleteIndex removes an index. Only legal inside an active upgrade
// transaction.
func (s *ObjectStore) DeleteIndex(name string) error {
	if err := s.checkUpgrade(); err != nil {
		return err
	}
	if _, ok := s.meta.Index(name); !ok {
		return newError(NotFoundError, "index %q not found on object store %q", name, s.name)
	}
	s.meta.Indexes = slices.DeleteFunc(s.meta.Indexes, func(m store.IndexMeta) bool { return m.Name == name })
	storeName, ctx := s.name, s.tx.db.f.ctx
	s.tx.internal("deleteIndex", storeName+"."+name, func(t *store.Tx) error {
		return t.DeleteIndex(ctx, storeName, name)
	})
	return nil
}

func (s *ObjectStore) readable() error {
	if err := s.tx.checkActive(); err != nil {
		return err
	}
	return s.checkLive()
}

// checkLive fails when the store was deleted after the handle was taken.
func (s *ObjectStore) checkLive() error {
	if s.tx.db.catalog[s.name] != s.meta {
		return newError(InvalidStateError, "object store %q has been deleted", s.name)
	}
	return nil
}

func (s *ObjectStore) checkUpgrade() error {
	if s.tx.mode != VersionChange {
		return newError(InvalidStateError, "schema changes require a version change transaction")
	}
	if err := s.tx.checkActive(); err != nil {
		return err
	}
	return s.checkLive()
}

func sourceName(scan queryir.Scan) string {
	if scan.Index != "" {
		return scan.Store + "." + scan.Index
	}
	return scan.Store
}

// generatorFloor returns the integer part of a numeric key.
func generatorFloor(k record.Key) (int64, bool) {
	switch n := k.(type) {
	case record.Int:
		return int64(n), true
	case record.Float:
		return int64(math.Floor(float64(n))), true
	}
	return 0, false
}
