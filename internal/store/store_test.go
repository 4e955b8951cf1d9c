package store

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/asyncdb/internal/record"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	cfg := Config{Driver: DriverMattn, Dir: t.TempDir()}

	s, err := Open(context.Background(), cfg, "customers db")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(s.Path()); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	assert.Contains(t, s.Path(), "customers%20db.sqlite")
}

func TestOpen_Idempotent(t *testing.T) {
	cfg := Config{Driver: DriverMattn, Dir: t.TempDir()}

	for i := 0; i < 3; i++ {
		s, err := Open(context.Background(), cfg, "test")
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_PragmasApplied(t *testing.T) {
	s := createTestStore(t, CodecNone)

	tests := []struct {
		name     string
		expected string
	}{
		{"journal_mode", "wal"},
		{"synchronous", "1"}, // NORMAL = 1
		{"busy_timeout", "5000"},
		{"foreign_keys", "1"},
		{"user_version", "1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.verifyPragma(tt.name, tt.expected); err != nil {
				t.Error(err)
			}
		})
	}
}

func TestOpen_RejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "postgres"}, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not available")
}

func TestOpen_ModerncDriver(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Driver: DriverModernc, Dir: t.TempDir(), Codec: CodecSnappy}
	s, err := Open(ctx, cfg, "pure")
	require.NoError(t, err)
	defer s.Close()

	seedCustomers(t, s)

	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	got, ok, err := tx.Get(ctx, "customers", record.Int(1))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, record.String("alice"), got["name"])
}

func TestOpen_InMemoryDatabasesAreIsolatedByName(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Driver: DriverMattn}

	a, err := Open(ctx, cfg, "mem-a")
	require.NoError(t, err)
	defer a.Close()
	b, err := Open(ctx, cfg, "mem-b")
	require.NoError(t, err)
	defer b.Close()

	assert.Empty(t, a.Path())
	seedCustomers(t, a)

	tx, err := b.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	stores, err := tx.ObjectStores(ctx)
	require.NoError(t, err)
	assert.Empty(t, stores)
}

func TestDestroy_RemovesFiles(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Driver: DriverMattn, Dir: t.TempDir()}
	s, err := Open(ctx, cfg, "gone")
	require.NoError(t, err)
	path := s.Path()
	require.NoError(t, s.Close())

	require.NoError(t, Destroy(cfg, "gone"))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// Second destroy is a no-op.
	require.NoError(t, Destroy(cfg, "gone"))
}

func TestVersion_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Driver: DriverMattn, Dir: t.TempDir()}

	s, err := Open(ctx, cfg, "versioned")
	require.NoError(t, err)
	withTx(t, s, func(tx *Tx) {
		v, err := tx.Version(ctx)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), v)
		require.NoError(t, tx.SetVersion(ctx, 3))
	})
	require.NoError(t, s.Close())

	s, err = Open(ctx, cfg, "versioned")
	require.NoError(t, err)
	defer s.Close()
	tx, err := s.Begin(ctx)
	require.NoError(t, err)
	defer tx.Rollback()
	v, err := tx.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), v)
}
