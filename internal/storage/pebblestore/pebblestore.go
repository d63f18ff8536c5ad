// Package pebblestore implements storage.Backend on an embedded
// cockroachdb/pebble LSM tree — a single-process, no-server-required
// deployment option alongside the SQL-backed stores, keyed by
// table-name-prefixed row IDs so a table scan is a plain prefix iteration.
package pebblestore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage"
)

// rowSerializer packs/unpacks a whole storage.Row as one blob using the
// project's canonical byte-serializer, so []byte and integer columns (e.g.
// Account.locking_scripts, TxRollup.tx_root/balances) round-trip with their
// original Go types instead of flattening through encoding/json, which would
// turn every []byte into a base64 string and every number into a float64.
var rowSerializer = serializer.NewCBOR()

func packRow(row storage.Row) ([]byte, error) {
	return rowSerializer.Pack(map[string]any(row))
}

func unpackRow(b []byte) (storage.Row, error) {
	v, err := rowSerializer.Unpack(b)
	if err != nil {
		return nil, err
	}
	m, _ := v.(map[string]any)
	return storage.Row(m), nil
}

const (
	rowPrefix       = "row/"
	tombstonePrefix = "tomb/"
)

// Store is a storage.Backend backed by an embedded Pebble database.
type Store struct {
	mu sync.Mutex
	db *pebble.DB
}

// Open opens (creating if necessary) a Pebble database at dir.
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, storage.WrapErr("pebblestore.Open", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func rowKey(table, id string) []byte {
	return []byte(rowPrefix + table + "/" + id)
}

func rowPrefixKey(table string) []byte {
	return []byte(rowPrefix + table + "/")
}

func tombKey(modelClass, recordID string) []byte {
	return []byte(tombstonePrefix + modelClass + "/" + recordID)
}

func tombPrefixKey(modelClass string) []byte {
	return []byte(tombstonePrefix + modelClass + "/")
}

func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix was all 0xff, unbounded
}

func (s *Store) Insert(ctx context.Context, table string, row storage.Row) (storage.Row, error) {
	id, _ := row["id"].(string)
	payload, err := packRow(row)
	if err != nil {
		return nil, storage.WrapErr("pebblestore.Insert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Set(rowKey(table, id), payload, pebble.Sync); err != nil {
		return nil, storage.WrapErr("pebblestore.Insert", err)
	}
	return row, nil
}

func (s *Store) InsertMany(ctx context.Context, table string, rows []storage.Row) error {
	for _, r := range rows {
		if _, err := s.Insert(ctx, table, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Update(ctx context.Context, table string, id string, updates storage.Row) error {
	row, ok, err := s.Find(ctx, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return storage.WrapErr("pebblestore.Update", fmt.Errorf("id %q not found in %q", id, table))
	}
	for k, v := range updates {
		row[k] = v
	}
	payload, err := packRow(row)
	if err != nil {
		return storage.WrapErr("pebblestore.Update", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Set(rowKey(table, id), payload, pebble.Sync); err != nil {
		return storage.WrapErr("pebblestore.Update", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Delete(rowKey(table, id), pebble.Sync); err != nil {
		return storage.WrapErr("pebblestore.Delete", err)
	}
	return nil
}

func (s *Store) Find(ctx context.Context, table string, id string) (storage.Row, bool, error) {
	s.mu.Lock()
	v, closer, err := s.db.Get(rowKey(table, id))
	s.mu.Unlock()
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.WrapErr("pebblestore.Find", err)
	}
	defer closer.Close()
	row, err := unpackRow(v)
	if err != nil {
		return nil, false, storage.WrapErr("pebblestore.Find", err)
	}
	return row, true, nil
}

func (s *Store) scanRows(table string) ([]storage.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := rowPrefixKey(table)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, storage.WrapErr("pebblestore.Query", err)
	}
	defer iter.Close()

	var out []storage.Row
	for iter.First(); iter.Valid(); iter.Next() {
		row, err := unpackRow(iter.Value())
		if err != nil {
			return nil, storage.WrapErr("pebblestore.Query", err)
		}
		out = append(out, row)
	}
	if err := iter.Error(); err != nil {
		return nil, storage.WrapErr("pebblestore.Query", err)
	}
	return out, nil
}

func (s *Store) scanTombstones(modelClass string) ([]storage.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prefix := tombPrefixKey(modelClass)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, storage.WrapErr("pebblestore.DeletedModels", err)
	}
	defer iter.Close()

	var out []storage.Row
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		recordID := strings.TrimPrefix(string(key), string(prefix))
		record := append([]byte(nil), iter.Value()...)
		out = append(out, storage.Row{"model_class": modelClass, "record_id": recordID, "record": record})
	}
	if err := iter.Error(); err != nil {
		return nil, storage.WrapErr("pebblestore.DeletedModels", err)
	}
	return out, nil
}

func (s *Store) Query(table string, conditions storage.Row) storage.QueryBuilder {
	return &queryBuilder{store: s, table: table, conditions: conditions}
}

func (s *Store) Archive(ctx context.Context, modelClass string, recordID string, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.db.Set(tombKey(modelClass, recordID), record, pebble.Sync); err != nil {
		return storage.WrapErr("pebblestore.Archive", err)
	}
	return nil
}

func (s *Store) DeletedModels(modelClass string) storage.QueryBuilder {
	return &tombstoneQuery{store: s, modelClass: modelClass}
}

// WithTransaction wraps fn in a single Pebble batch, applied atomically on
// success and discarded on error.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Backend) error) error {
	s.mu.Lock()
	batch := s.db.NewIndexedBatch()
	s.mu.Unlock()

	txStore := &txBackend{store: s, batch: batch}
	if err := fn(ctx, txStore); err != nil {
		_ = batch.Close()
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := batch.Commit(pebble.Sync); err != nil {
		return storage.WrapErr("pebblestore.WithTransaction", err)
	}
	return nil
}

type queryBuilder struct {
	store      *Store
	table      string
	conditions storage.Row
	contains   []struct{ col, needle string }
	isIn       []struct {
		col    string
		values map[string]bool
	}
}

func (q *queryBuilder) Contains(col, needle string) storage.QueryBuilder {
	q.contains = append(q.contains, struct{ col, needle string }{col, needle})
	return q
}

func (q *queryBuilder) IsIn(col string, values []string) storage.QueryBuilder {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	q.isIn = append(q.isIn, struct {
		col    string
		values map[string]bool
	}{col, set})
	return q
}

func (q *queryBuilder) rows() ([]storage.Row, error) {
	all, err := q.store.scanRows(q.table)
	if err != nil {
		return nil, err
	}
	var out []storage.Row
	for _, row := range all {
		if q.matches(row) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (q *queryBuilder) matches(row storage.Row) bool {
	for k, want := range q.conditions {
		if row[k] != want {
			return false
		}
	}
	for _, c := range q.contains {
		s, _ := row[c.col].(string)
		if !strings.Contains(s, c.needle) {
			return false
		}
	}
	for _, f := range q.isIn {
		s, _ := row[f.col].(string)
		if !f.values[s] {
			return false
		}
	}
	return true
}

func (q *queryBuilder) Count(ctx context.Context) (int, error) {
	rows, err := q.rows()
	return len(rows), err
}
func (q *queryBuilder) Get(ctx context.Context) ([]storage.Row, error) { return q.rows() }
func (q *queryBuilder) Chunk(ctx context.Context, n int, fn func([]storage.Row) error) error {
	all, err := q.rows()
	if err != nil {
		return err
	}
	return chunk(all, n, fn)
}

func chunk(all []storage.Row, n int, fn func([]storage.Row) error) error {
	if n <= 0 {
		n = len(all)
	}
	if n == 0 {
		return nil
	}
	for i := 0; i < len(all); i += n {
		end := i + n
		if end > len(all) {
			end = len(all)
		}
		if err := fn(all[i:end]); err != nil {
			return err
		}
	}
	return nil
}

type tombstoneQuery struct {
	store      *Store
	modelClass string
	isIn       []struct {
		col    string
		values map[string]bool
	}
}

func (q *tombstoneQuery) Contains(string, string) storage.QueryBuilder { return q }
func (q *tombstoneQuery) IsIn(col string, values []string) storage.QueryBuilder {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	q.isIn = append(q.isIn, struct {
		col    string
		values map[string]bool
	}{col, set})
	return q
}

func (q *tombstoneQuery) rows() ([]storage.Row, error) {
	all, err := q.store.scanTombstones(q.modelClass)
	if err != nil {
		return nil, err
	}
	var out []storage.Row
	for _, row := range all {
		matched := true
		for _, f := range q.isIn {
			s, _ := row[f.col].(string)
			if !f.values[s] {
				matched = false
			}
		}
		if matched {
			out = append(out, row)
		}
	}
	return out, nil
}

func (q *tombstoneQuery) Count(ctx context.Context) (int, error) {
	rows, err := q.rows()
	return len(rows), err
}
func (q *tombstoneQuery) Get(ctx context.Context) ([]storage.Row, error) { return q.rows() }
func (q *tombstoneQuery) Chunk(ctx context.Context, n int, fn func([]storage.Row) error) error {
	all, err := q.rows()
	if err != nil {
		return err
	}
	return chunk(all, n, fn)
}

// txBackend is the Backend view handed to a WithTransaction callback: row
// reads see the batch's own uncommitted writes via Pebble's indexed batch,
// falling back to the store for reads/scans outside the batch's own keys.
type txBackend struct {
	store *Store
	batch *pebble.Batch
}

func (t *txBackend) Insert(ctx context.Context, table string, row storage.Row) (storage.Row, error) {
	id, _ := row["id"].(string)
	payload, err := packRow(row)
	if err != nil {
		return nil, storage.WrapErr("pebblestore.Insert", err)
	}
	if err := t.batch.Set(rowKey(table, id), payload, nil); err != nil {
		return nil, storage.WrapErr("pebblestore.Insert", err)
	}
	return row, nil
}

func (t *txBackend) InsertMany(ctx context.Context, table string, rows []storage.Row) error {
	for _, r := range rows {
		if _, err := t.Insert(ctx, table, r); err != nil {
			return err
		}
	}
	return nil
}

func (t *txBackend) Update(ctx context.Context, table string, id string, updates storage.Row) error {
	row, ok, err := t.Find(ctx, table, id)
	if err != nil {
		return err
	}
	if !ok {
		return storage.WrapErr("pebblestore.Update", fmt.Errorf("id %q not found in %q", id, table))
	}
	for k, v := range updates {
		row[k] = v
	}
	payload, err := packRow(row)
	if err != nil {
		return storage.WrapErr("pebblestore.Update", err)
	}
	if err := t.batch.Set(rowKey(table, id), payload, nil); err != nil {
		return storage.WrapErr("pebblestore.Update", err)
	}
	return nil
}

func (t *txBackend) Delete(ctx context.Context, table string, id string) error {
	if err := t.batch.Delete(rowKey(table, id), nil); err != nil {
		return storage.WrapErr("pebblestore.Delete", err)
	}
	return nil
}

func (t *txBackend) Find(ctx context.Context, table string, id string) (storage.Row, bool, error) {
	v, closer, err := t.batch.Get(rowKey(table, id))
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.WrapErr("pebblestore.Find", err)
	}
	defer closer.Close()
	row, err := unpackRow(v)
	if err != nil {
		return nil, false, storage.WrapErr("pebblestore.Find", err)
	}
	return row, true, nil
}

func (t *txBackend) Query(table string, conditions storage.Row) storage.QueryBuilder {
	return &txQueryBuilder{tx: t, table: table, conditions: conditions}
}

func (t *txBackend) Archive(ctx context.Context, modelClass string, recordID string, record []byte) error {
	if err := t.batch.Set(tombKey(modelClass, recordID), record, nil); err != nil {
		return storage.WrapErr("pebblestore.Archive", err)
	}
	return nil
}

func (t *txBackend) DeletedModels(modelClass string) storage.QueryBuilder {
	return &txTombstoneQuery{tx: t, modelClass: modelClass}
}

func (t *txBackend) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Backend) error) error {
	return fn(ctx, t)
}

type txQueryBuilder struct {
	tx         *txBackend
	table      string
	conditions storage.Row
}

func (q *txQueryBuilder) Contains(string, string) storage.QueryBuilder     { return q }
func (q *txQueryBuilder) IsIn(string, []string) storage.QueryBuilder       { return q }

func (q *txQueryBuilder) rows() ([]storage.Row, error) {
	prefix := rowPrefixKey(q.table)
	iter, err := q.tx.batch.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, storage.WrapErr("pebblestore.Query", err)
	}
	defer iter.Close()

	var out []storage.Row
	for iter.First(); iter.Valid(); iter.Next() {
		row, err := unpackRow(iter.Value())
		if err != nil {
			return nil, storage.WrapErr("pebblestore.Query", err)
		}
		matched := true
		for k, want := range q.conditions {
			if row[k] != want {
				matched = false
			}
		}
		if matched {
			out = append(out, row)
		}
	}
	return out, iter.Error()
}

func (q *txQueryBuilder) Count(ctx context.Context) (int, error) {
	rows, err := q.rows()
	return len(rows), err
}
func (q *txQueryBuilder) Get(ctx context.Context) ([]storage.Row, error) { return q.rows() }
func (q *txQueryBuilder) Chunk(ctx context.Context, n int, fn func([]storage.Row) error) error {
	all, err := q.rows()
	if err != nil {
		return err
	}
	return chunk(all, n, fn)
}

type txTombstoneQuery struct {
	tx         *txBackend
	modelClass string
}

func (q *txTombstoneQuery) Contains(string, string) storage.QueryBuilder { return q }
func (q *txTombstoneQuery) IsIn(string, []string) storage.QueryBuilder   { return q }

func (q *txTombstoneQuery) rows() ([]storage.Row, error) {
	prefix := tombPrefixKey(q.modelClass)
	iter, err := q.tx.batch.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, storage.WrapErr("pebblestore.DeletedModels", err)
	}
	defer iter.Close()

	var out []storage.Row
	for iter.First(); iter.Valid(); iter.Next() {
		recordID := strings.TrimPrefix(string(iter.Key()), string(prefix))
		record := append([]byte(nil), iter.Value()...)
		out = append(out, storage.Row{"model_class": q.modelClass, "record_id": recordID, "record": record})
	}
	return out, iter.Error()
}

func (q *txTombstoneQuery) Count(ctx context.Context) (int, error) {
	rows, err := q.rows()
	return len(rows), err
}
func (q *txTombstoneQuery) Get(ctx context.Context) ([]storage.Row, error) { return q.rows() }
func (q *txTombstoneQuery) Chunk(ctx context.Context, n int, fn func([]storage.Row) error) error {
	all, err := q.rows()
	if err != nil {
		return err
	}
	return chunk(all, n, fn)
}
