package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/bookkeep/internal/storage"
)

func TestInsertFindDeleteRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	row := storage.Row{"id": "a1", "name": "cash"}
	_, err := s.Insert(ctx, "accounts", row)
	require.NoError(t, err)

	got, ok, err := s.Find(ctx, "accounts", "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cash", got["name"])

	require.NoError(t, s.Delete(ctx, "accounts", "a1"))
	_, ok, err = s.Find(ctx, "accounts", "a1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Insert(ctx, "accounts", storage.Row{"id": "a1"})
	require.NoError(t, err)
	_, err = s.Insert(ctx, "accounts", storage.Row{"id": "a1"})
	assert.Error(t, err)
}

func TestUpdateMergesFields(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.Insert(ctx, "accounts", storage.Row{"id": "a1", "name": "cash", "active": true})
	require.NoError(t, err)
	require.NoError(t, s.Update(ctx, "accounts", "a1", storage.Row{"active": false}))

	got, ok, err := s.Find(ctx, "accounts", "a1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cash", got["name"])
	assert.Equal(t, false, got["active"])
}

func TestQueryContainsAndIsIn(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, _ = s.Insert(ctx, "transactions", storage.Row{"id": "t1", "entry_ids": "e1,e2"})
	_, _ = s.Insert(ctx, "transactions", storage.Row{"id": "t2", "entry_ids": "e3,e4"})

	rows, err := s.Query("transactions", nil).Contains("entry_ids", "e2").Get(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "t1", rows[0]["id"])

	rows, err = s.Query("transactions", nil).IsIn("id", []string{"t1", "t2", "missing"}).Get(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestQueryChunkPaginatesAllRows(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		_, _ = s.Insert(ctx, "entries", storage.Row{"id": string(rune('a' + i))})
	}

	var total int
	err := s.Query("entries", nil).Chunk(ctx, 3, func(batch []storage.Row) error {
		total += len(batch)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
}

func TestArchiveAndDeletedModels(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Archive(ctx, "Entry", "e1", []byte("compressed-bytes")))

	rows, err := s.DeletedModels("Entry").IsIn("record_id", []string{"e1"}).Get(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []byte("compressed-bytes"), rows[0]["record"])
}

func TestWithTransactionRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Insert(ctx, "accounts", storage.Row{"id": "a1", "name": "cash"})
	require.NoError(t, err)

	failure := errors.New("boom")
	err = s.WithTransaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		if _, err := tx.Insert(ctx, "accounts", storage.Row{"id": "a2", "name": "payables"}); err != nil {
			return err
		}
		return failure
	})
	assert.ErrorIs(t, err, failure)

	_, ok, err := s.Find(ctx, "accounts", "a2")
	require.NoError(t, err)
	assert.False(t, ok, "a2 must not be visible after the transaction's function returned an error")
}

func TestWithTransactionCommitsOnSuccess(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithTransaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		_, err := tx.Insert(ctx, "accounts", storage.Row{"id": "a1", "name": "cash"})
		return err
	})
	require.NoError(t, err)

	_, ok, err := s.Find(ctx, "accounts", "a1")
	require.NoError(t, err)
	assert.True(t, ok)
}
