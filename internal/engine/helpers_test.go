package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/asyncdb/internal/record"
)

// testLoop runs a Factory loop for the duration of a test.
type testLoop struct {
	t *testing.T
	f *Factory
}

func newTestLoop(t *testing.T) *testLoop {
	t.Helper()
	f, err := NewFactory(Config{Driver: "sqlite3", Dir: t.TempDir()}, WithIDGenerator(NewSequenceGenerator("id")))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		f.Run(ctx)
	}()
	t.Cleanup(func() {
		f.Stop()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Error("engine loop did not stop")
		}
		cancel()
	})
	return &testLoop{t: t, f: f}
}

// run posts fn and blocks until fn (or one of its callbacks) calls done.
// Callbacks must not call require: failures are recorded with assert.
func (l *testLoop) run(fn func(done func())) {
	l.t.Helper()
	ch := make(chan struct{})
	var closed bool
	done := func() {
		if !closed {
			closed = true
			close(ch)
		}
	}
	require.True(l.t, l.f.Post(func() { fn(done) }))
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		l.t.Fatal("timed out waiting for loop")
	}
}

// open opens name at version, running upgrade inside the upgrade
// transaction. It fails the test on open errors.
func (l *testLoop) open(name string, version uint64, upgrade func(ev UpgradeEvent)) *Database {
	l.t.Helper()
	var db *Database
	var openErr *Error
	l.run(func(done func()) {
		req := l.f.Open(name, version)
		req.OnUpgradeNeeded(func(ev UpgradeEvent) {
			if upgrade != nil {
				upgrade(ev)
			}
		})
		req.OnSuccess(func(d *Database) { db = d; done() })
		req.OnError(func(err *Error) { openErr = err; done() })
	})
	require.Nil(l.t, openErr)
	require.NotNil(l.t, db)
	return db
}

// customersSchema creates the customers store used across tests.
func customersSchema(ev UpgradeEvent) {
	s, err := ev.DB.CreateObjectStore("customers", ObjectStoreOptions{KeyPath: "id"})
	if err != nil {
		panic(err)
	}
	if _, err := s.CreateIndex("by_name", "name", false); err != nil {
		panic(err)
	}
	if _, err := s.CreateIndex("by_email", "email", true); err != nil {
		panic(err)
	}
}

func customer(id int64, name, email string) record.Object {
	return record.Object{
		"id":    record.Int(id),
		"name":  record.String(name),
		"email": record.String(email),
	}
}

// txResult captures how a transaction ended.
type txResult struct {
	completed bool
	aborted   bool
	err       *Error
}

func watch(tx *Transaction, res *txResult, done func()) {
	tx.OnComplete(func() { res.completed = true; done() })
	tx.OnAbort(func(err *Error) { res.aborted = true; res.err = err; done() })
}
