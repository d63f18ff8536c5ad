// Package storage is the persistence contract the ledger core consumes:
// insert/insert_many/update/delete/find plus a query builder exposing
// contains/is_in/count/get/chunk, and a DeletedModel tombstone mechanism for
// archive-then-delete. The relational schema itself is an implementation
// choice; this package only fixes the shape callers rely on.
//
// Modeled on a relational-repository package style: a
// repository-manager-style backend handle threaded explicitly through
// constructors (never package state), and
// WithTransaction for atomic multi-step writes (used by TxRollup.Trim's
// archive+delete pairing).
package storage

import (
	"context"

	"github.com/LeJamon/bookkeep/internal/bkerrors"
)

// Row is a generic persisted record: column name to value. Every ledger
// model marshals itself to/from a Row at the storage boundary.
type Row = map[string]any

// Backend is the storage contract consumed by the core.
type Backend interface {
	Insert(ctx context.Context, table string, row Row) (Row, error)
	InsertMany(ctx context.Context, table string, rows []Row) error
	Update(ctx context.Context, table string, id string, updates Row) error
	Delete(ctx context.Context, table string, id string) error
	Find(ctx context.Context, table string, id string) (Row, bool, error)
	Query(table string, conditions Row) QueryBuilder

	// Archive moves row into the DeletedModel tombstone table under
	// modelClass, recording its canonical byte form for later restore.
	Archive(ctx context.Context, modelClass string, recordID string, record []byte) error
	// DeletedModels returns a query builder over tombstones for modelClass.
	DeletedModels(modelClass string) QueryBuilder

	// WithTransaction runs fn within a single storage transaction; if fn
	// returns an error, every write it performed is rolled back.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Backend) error) error
}

// QueryBuilder narrows a table query with conditional filters before
// materializing results.
type QueryBuilder interface {
	Contains(col, needle string) QueryBuilder
	IsIn(col string, values []string) QueryBuilder
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context) ([]Row, error)
	// Chunk invokes fn with successive pages of size n until the query is
	// exhausted or fn returns an error: a paginated Get loop, so large
	// balance scans never materialize an entire table at once.
	Chunk(ctx context.Context, n int, fn func([]Row) error) error
}

// DeletedModel is a tombstone row: the class name, the archived record's
// original ID, and its canonical byte form, so it can be restored.
type DeletedModel struct {
	ModelClass string
	RecordID   string
	Record     []byte
}

// WrapErr normalizes a backend-specific error into a bkerrors.StorageError.
func WrapErr(op string, err error) error {
	return bkerrors.NewStorage(op, err)
}
