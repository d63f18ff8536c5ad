package pebblestore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/bookkeep/internal/storage"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	t.Helper()
	dir, err := os.MkdirTemp("", "pebblestore-test-*")
	require.NoError(t, err)

	store, err := Open(dir)
	require.NoError(t, err)

	cleanup := func() {
		_ = store.Close()
		_ = os.RemoveAll(dir)
	}
	return store, cleanup
}

func TestInsertFindDeleteRoundTrip(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.Insert(ctx, "accounts", storage.Row{"id": "a1", "name": "cash"})
	require.NoError(t, err)

	got, ok, err := store.Find(ctx, "accounts", "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cash", got["name"])

	require.NoError(t, store.Delete(ctx, "accounts", "a1"))
	_, ok, err = store.Find(ctx, "accounts", "a1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateMergesFields(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.Insert(ctx, "accounts", storage.Row{"id": "a1", "name": "cash", "active": true})
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, "accounts", "a1", storage.Row{"active": false}))

	got, ok, err := store.Find(ctx, "accounts", "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cash", got["name"])
	assert.Equal(t, false, got["active"])
}

func TestRowRoundTripPreservesBytesAndIntegers(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	nonce := []byte{0x01, 0x02, 0xff, 0x00}
	_, err := store.Insert(ctx, "entries", storage.Row{
		"id":     "e1",
		"nonce":  nonce,
		"amount": int64(1_000_000),
	})
	require.NoError(t, err)

	got, ok, err := store.Find(ctx, "entries", "e1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, nonce, got["nonce"], "[]byte column must not flatten to a base64 string")
	assert.Equal(t, int64(1_000_000), got["amount"], "integer column must not flatten to a float64")
}

func TestQueryScansOnlyMatchingTablePrefix(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, _ = store.Insert(ctx, "accounts", storage.Row{"id": "a1"})
	_, _ = store.Insert(ctx, "accounts", storage.Row{"id": "a2"})
	_, _ = store.Insert(ctx, "entries", storage.Row{"id": "e1"})

	rows, err := store.Query("accounts", nil).Get(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestQueryContainsAndIsIn(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, _ = store.Insert(ctx, "transactions", storage.Row{"id": "t1", "entry_ids": "e1,e2"})
	_, _ = store.Insert(ctx, "transactions", storage.Row{"id": "t2", "entry_ids": "e3,e4"})

	rows, err := store.Query("transactions", nil).Contains("entry_ids", "e2").Get(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "t1", rows[0]["id"])

	rows, err = store.Query("transactions", nil).IsIn("id", []string{"t1", "missing"}).Get(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestArchiveAndDeletedModels(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	require.NoError(t, store.Archive(ctx, "Entry", "e1", []byte("compressed")))

	rows, err := store.DeletedModels("Entry").IsIn("record_id", []string{"e1"}).Get(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []byte("compressed"), rows[0]["record"])
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	_, err := store.Insert(ctx, "accounts", storage.Row{"id": "a1"})
	require.NoError(t, err)

	err = store.WithTransaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		if _, err := tx.Insert(ctx, "accounts", storage.Row{"id": "a2"}); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.Error(t, err)

	_, ok, err := store.Find(ctx, "accounts", "a2")
	require.NoError(t, err)
	assert.False(t, ok, "batch must be discarded when fn returns an error")
}

func TestWithTransactionCommitsOnSuccess(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	err := store.WithTransaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		_, err := tx.Insert(ctx, "accounts", storage.Row{"id": "a1"})
		return err
	})
	require.NoError(t, err)

	_, ok, err := store.Find(ctx, "accounts", "a1")
	require.NoError(t, err)
	assert.True(t, ok)
}
