package asyncdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/asyncdb/internal/engine"
	"github.com/roach88/asyncdb/internal/record"
	"github.com/roach88/asyncdb/internal/testutil"
)

var customersTables = []TableSpec{
	{
		Name:          "customers",
		KeyPath:       "id",
		AutoIncrement: true,
		Indices: []IndexSpec{
			{Name: "name", KeyPath: "name"},
			{Name: "email", KeyPath: "email", Unique: true},
			{Name: "age", KeyPath: "age"},
		},
	},
}

// newHandle starts an engine and returns an unopened handle over it.
func newHandle(t *testing.T) (*Handle, *engine.Factory) {
	t.Helper()
	f := testutil.StartEngine(t)
	h, err := New(f)
	require.NoError(t, err)
	return h, f
}

// openCustomers returns a handle opened on CustomersDB at version 1.
func openCustomers(t *testing.T) (*Handle, *engine.Factory) {
	t.Helper()
	h, f := newHandle(t)
	_, err := await(t, h.Open(context.Background(), "CustomersDB", 1, customersTables))
	require.NoError(t, err)
	return h, f
}

func await[T any](t *testing.T, fut *Future[T]) (T, error) {
	t.Helper()
	return testutil.Await(t, fut.Await)
}

func obj(t *testing.T, m map[string]any) record.Record {
	t.Helper()
	o, err := record.ObjectFromGo(m)
	require.NoError(t, err)
	return o
}

func canonical(t *testing.T, v record.Value) string {
	t.Helper()
	b, err := record.MarshalCanonical(v)
	require.NoError(t, err)
	return string(b)
}

func canonicalAll(t *testing.T, recs []record.Record) []string {
	t.Helper()
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = canonical(t, r)
	}
	return out
}

// onLoop runs fn on the engine loop and waits for done.
func onLoop(t *testing.T, f *engine.Factory, fn func(done func())) {
	t.Helper()
	ch := make(chan struct{})
	require.True(t, f.Post(func() { fn(func() { close(ch) }) }))
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for engine loop")
	}
}

// tableInfo is what the engine reports about one object store.
type tableInfo struct {
	keyPath       string
	autoIncrement bool
	indices       map[string]bool   // name -> unique
	indexPaths    map[string]string // name -> keyPath
}

// describe opens a second connection at the stored version and reports
// every table.
func describe(t *testing.T, f *engine.Factory, name string) (uint64, map[string]tableInfo) {
	t.Helper()
	var version uint64
	tables := map[string]tableInfo{}
	onLoop(t, f, func(done func()) {
		req := f.Open(name, 0)
		req.OnError(func(*engine.Error) { done() })
		req.OnSuccess(func(db *engine.Database) {
			defer done()
			defer db.Close()
			version = db.Version()
			names := db.ObjectStoreNames()
			if len(names) == 0 {
				return
			}
			tx, err := db.Transaction(names, engine.ReadOnly)
			if err != nil {
				return
			}
			for _, n := range names {
				s, err := tx.ObjectStore(n)
				if err != nil {
					continue
				}
				info := tableInfo{
					keyPath:       s.KeyPath(),
					autoIncrement: s.AutoIncrement(),
					indices:       map[string]bool{},
					indexPaths:    map[string]string{},
				}
				for _, in := range s.IndexNames() {
					idx, err := s.Index(in)
					if err == nil {
						info.indices[in] = idx.Unique()
						info.indexPaths[in] = idx.KeyPath()
					}
				}
				tables[n] = info
			}
		})
	})
	return version, tables
}
