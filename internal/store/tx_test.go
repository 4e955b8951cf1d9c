package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asyncdb/internal/queryir"
	"github.com/roach88/asyncdb/internal/record"
)

func TestCatalog_CreateAndList(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, CodecNone)
	seedCustomers(t, s)

	withTx(t, s, func(tx *Tx) {
		stores, err := tx.ObjectStores(ctx)
		require.NoError(t, err)
		require.Len(t, stores, 1)
		assert.Equal(t, "customers", stores[0].Name)
		assert.Equal(t, "id", stores[0].KeyPath)
		assert.Equal(t, []IndexMeta{
			{Name: "by_email", KeyPath: "email", Unique: true},
			{Name: "by_name", KeyPath: "name"},
		}, stores[0].Indexes)
	})
}

func TestCatalog_DuplicateObjectStore(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, CodecNone)
	seedCustomers(t, s)

	withTx(t, s, func(tx *Tx) {
		err := tx.CreateObjectStore(ctx, StoreMeta{Name: "customers"})
		assert.ErrorIs(t, err, ErrObjectStoreExists)
		err = tx.CreateIndex(ctx, "customers", IndexMeta{Name: "by_name", KeyPath: "name"})
		assert.ErrorIs(t, err, ErrIndexExists)
		err = tx.CreateIndex(ctx, "missing", IndexMeta{Name: "x", KeyPath: "x"})
		assert.ErrorIs(t, err, ErrNoObjectStore)
	})
}

func TestCatalog_RollbackDiscardsSchema(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, CodecNone)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.CreateObjectStore(ctx, StoreMeta{Name: "scratch"}))
	require.NoError(t, tx.Rollback())

	withTx(t, s, func(tx *Tx) {
		stores, err := tx.ObjectStores(ctx)
		require.NoError(t, err)
		assert.Empty(t, stores)
	})
}

func TestCatalog_DeleteObjectStoreCascades(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, CodecNone)
	seedCustomers(t, s)

	withTx(t, s, func(tx *Tx) {
		require.NoError(t, tx.DeleteObjectStore(ctx, "customers"))
		n, err := tx.Count(ctx, queryir.Scan{Store: "customers"})
		require.NoError(t, err)
		assert.Zero(t, n)
		n, err = tx.Count(ctx, queryir.Scan{Store: "customers", Index: "by_name"})
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestPut_AddRejectsExistingKey(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, CodecNone)
	seedCustomers(t, s)

	withTx(t, s, func(tx *Tx) {
		err := tx.Put(ctx, customers, record.Int(1), customer(1, "again", "again@example.com"), false)
		assert.ErrorIs(t, err, ErrKeyExists)
	})
}

func TestPut_UniqueIndexViolationLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, CodecNone)
	seedCustomers(t, s)

	withTx(t, s, func(tx *Tx) {
		err := tx.Put(ctx, customers, record.Int(9), customer(9, "eve", "bob@example.com"), false)
		assert.ErrorIs(t, err, ErrUniqueViolation)

		_, ok, err := tx.Get(ctx, "customers", record.Int(9))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestPut_OverwriteReindexes(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, CodecNone)
	seedCustomers(t, s)

	withTx(t, s, func(tx *Tx) {
		// Keeping its own unique value is not a violation.
		require.NoError(t, tx.Put(ctx, customers, record.Int(2), customer(2, "robert", "bob@example.com"), true))

		rows, err := tx.Scan(ctx, queryir.Scan{
			Store: "customers",
			Index: "by_name",
			Range: mustRange(t)(queryir.Only(record.String("bob"))),
		})
		require.NoError(t, err)
		assert.Empty(t, rows)

		rows, err = tx.Scan(ctx, queryir.Scan{
			Store: "customers",
			Index: "by_name",
			Range: mustRange(t)(queryir.Only(record.String("robert"))),
		})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, record.Int(2), rows[0].PrimaryKey)
	})
}

func TestScan_IndexOrderAndDirections(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, CodecSnappy)
	seedCustomers(t, s)

	tests := []struct {
		dir  queryir.Direction
		want []record.Key
	}{
		{queryir.Next, []record.Key{record.Int(1), record.Int(3), record.Int(2)}},
		{queryir.Prev, []record.Key{record.Int(2), record.Int(3), record.Int(1)}},
		{queryir.NextUnique, []record.Key{record.Int(1), record.Int(2)}},
		{queryir.PrevUnique, []record.Key{record.Int(2), record.Int(1)}},
	}

	for _, tt := range tests {
		t.Run(string(tt.dir), func(t *testing.T) {
			withTx(t, s, func(tx *Tx) {
				rows, err := tx.Scan(ctx, queryir.Scan{Store: "customers", Index: "by_name", Direction: tt.dir})
				require.NoError(t, err)
				assert.Equal(t, tt.want, primaryKeys(rows))
			})
		})
	}
}

func TestScan_ResumesAfterPosition(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, CodecNone)
	seedCustomers(t, s)

	withTx(t, s, func(tx *Tx) {
		scan := queryir.Scan{Store: "customers", Index: "by_name", Limit: 1}
		var seen []record.Key
		for {
			rows, err := tx.Scan(ctx, scan)
			require.NoError(t, err)
			if len(rows) == 0 {
				break
			}
			seen = append(seen, rows[0].PrimaryKey)
			pos := rows[0].Position
			scan.After = &pos
		}
		assert.Equal(t, []record.Key{record.Int(1), record.Int(3), record.Int(2)}, seen)
	})
}

func TestScan_StoreRange(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, CodecNone)
	seedCustomers(t, s)

	withTx(t, s, func(tx *Tx) {
		rows, err := tx.Scan(ctx, queryir.Scan{
			Store: "customers",
			Range: mustRange(t)(queryir.Bound(record.Int(1), record.Int(3), true, false)),
		})
		require.NoError(t, err)
		assert.Equal(t, []record.Key{record.Int(2), record.Int(3)}, primaryKeys(rows))
		assert.Equal(t, record.String("bob"), rows[0].Value["name"])

		n, err := tx.Count(ctx, queryir.Scan{Store: "customers", Index: "by_name", Range: mustRange(t)(queryir.Only(record.String("alice")))})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}

func TestDelete_RemovesRecordAndEntries(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, CodecNone)
	seedCustomers(t, s)

	withTx(t, s, func(tx *Tx) {
		ok, err := tx.Delete(ctx, "customers", record.Int(2))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.Delete(ctx, "customers", record.Int(2))
		require.NoError(t, err)
		assert.False(t, ok)

		// The unique email is free again.
		require.NoError(t, tx.Put(ctx, customers, record.Int(4), customer(4, "bobby", "bob@example.com"), false))
	})
}

func TestClear_KeepsCatalog(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, CodecNone)
	seedCustomers(t, s)

	withTx(t, s, func(tx *Tx) {
		require.NoError(t, tx.Clear(ctx, "customers"))
		n, err := tx.Count(ctx, queryir.Scan{Store: "customers"})
		require.NoError(t, err)
		assert.Zero(t, n)
		stores, err := tx.ObjectStores(ctx)
		require.NoError(t, err)
		assert.Len(t, stores, 1)
	})
}

func TestCreateIndex_BackfillsAndChecksUniqueness(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, CodecNone)
	seedCustomers(t, s)

	withTx(t, s, func(tx *Tx) {
		err := tx.CreateIndex(ctx, "customers", IndexMeta{Name: "unique_name", KeyPath: "name", Unique: true})
		assert.ErrorIs(t, err, ErrUniqueViolation)

		// The failed index leaves no catalog row behind.
		stores, err := tx.ObjectStores(ctx)
		require.NoError(t, err)
		_, ok := stores[0].Index("unique_name")
		assert.False(t, ok)
	})

	withTx(t, s, func(tx *Tx) {
		require.NoError(t, tx.CreateIndex(ctx, "customers", IndexMeta{Name: "by_id", KeyPath: "id"}))
		n, err := tx.Count(ctx, queryir.Scan{Store: "customers", Index: "by_id"})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestKeyGenerator(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t, CodecNone)

	withTx(t, s, func(tx *Tx) {
		require.NoError(t, tx.CreateObjectStore(ctx, StoreMeta{Name: "events", KeyPath: "seq", AutoIncrement: true}))

		k, err := tx.GenerateKey(ctx, "events")
		require.NoError(t, err)
		assert.Equal(t, int64(1), k)

		require.NoError(t, tx.BumpKey(ctx, "events", 10))
		require.NoError(t, tx.BumpKey(ctx, "events", 5))

		k, err = tx.GenerateKey(ctx, "events")
		require.NoError(t, err)
		assert.Equal(t, int64(11), k)

		_, err = tx.GenerateKey(ctx, "missing")
		assert.ErrorIs(t, err, ErrNoObjectStore)
	})
}
