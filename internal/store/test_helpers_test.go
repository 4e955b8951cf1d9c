package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/asyncdb/internal/queryir"
	"github.com/roach88/asyncdb/internal/record"
)

// createTestStore opens a file-backed store in a temp dir.
func createTestStore(t *testing.T, codec Codec) *Store {
	t.Helper()
	cfg := Config{Driver: DriverMattn, Dir: t.TempDir(), Codec: codec}
	s, err := Open(context.Background(), cfg, "test")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// withTx runs fn in a transaction and commits it.
func withTx(t *testing.T, s *Store, fn func(tx *Tx)) {
	t.Helper()
	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()
	fn(tx)
	require.NoError(t, tx.Commit())
}

var customers = StoreMeta{
	Name:    "customers",
	KeyPath: "id",
	Indexes: []IndexMeta{
		{Name: "by_name", KeyPath: "name"},
		{Name: "by_email", KeyPath: "email", Unique: true},
	},
}

func customer(id int64, name, email string) record.Object {
	return record.Object{
		"id":    record.Int(id),
		"name":  record.String(name),
		"email": record.String(email),
	}
}

// seedCustomers creates the customers store with three records.
func seedCustomers(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	withTx(t, s, func(tx *Tx) {
		require.NoError(t, tx.CreateObjectStore(ctx, customers))
		for _, idx := range customers.Indexes {
			require.NoError(t, tx.CreateIndex(ctx, customers.Name, idx))
		}
		require.NoError(t, tx.Put(ctx, customers, record.Int(2), customer(2, "bob", "bob@example.com"), false))
		require.NoError(t, tx.Put(ctx, customers, record.Int(1), customer(1, "alice", "alice@example.com"), false))
		require.NoError(t, tx.Put(ctx, customers, record.Int(3), customer(3, "alice", "alice2@example.com"), false))
	})
}

func primaryKeys(rows []Row) []record.Key {
	keys := make([]record.Key, len(rows))
	for i, r := range rows {
		keys[i] = r.PrimaryKey
	}
	return keys
}

func mustRange(t *testing.T) func(*queryir.KeyRange, error) *queryir.KeyRange {
	return func(r *queryir.KeyRange, err error) *queryir.KeyRange {
		t.Helper()
		require.NoError(t, err)
		return r
	}
}
