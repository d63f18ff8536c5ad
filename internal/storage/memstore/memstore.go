// Package memstore is an in-memory storage.Backend, used by the engine's
// own tests and by the CLI's demo mode. It implements the full storage
// contract (including Archive/DeletedModels and WithTransaction) without any
// external dependency, the way a reference fixture should.
package memstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/LeJamon/bookkeep/internal/bkerrors"
	"github.com/LeJamon/bookkeep/internal/storage"
)

// Store is an in-memory, mutex-guarded storage.Backend.
type Store struct {
	mu         sync.RWMutex
	tables     map[string]map[string]storage.Row
	order      map[string][]string
	tombstones map[string][]storage.DeletedModel
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		tables:     make(map[string]map[string]storage.Row),
		order:      make(map[string][]string),
		tombstones: make(map[string][]storage.DeletedModel),
	}
}

func cloneRow(r storage.Row) storage.Row {
	out := make(storage.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func (s *Store) Insert(_ context.Context, table string, row storage.Row) (storage.Row, error) {
	id, _ := row["id"].(string)
	if id == "" {
		return nil, bkerrors.NewValue("memstore.Insert", "row must have a non-empty id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables[table] == nil {
		s.tables[table] = make(map[string]storage.Row)
	}
	if _, exists := s.tables[table][id]; exists {
		return nil, bkerrors.NewValue("memstore.Insert", fmt.Sprintf("duplicate id %q in table %q", id, table))
	}
	stored := cloneRow(row)
	s.tables[table][id] = stored
	s.order[table] = append(s.order[table], id)
	return cloneRow(stored), nil
}

func (s *Store) InsertMany(ctx context.Context, table string, rows []storage.Row) error {
	for _, r := range rows {
		if _, err := s.Insert(ctx, table, r); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Update(_ context.Context, table string, id string, updates storage.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.tables[table]
	if rows == nil {
		return bkerrors.NewValue("memstore.Update", fmt.Sprintf("table %q not found", table))
	}
	row, ok := rows[id]
	if !ok {
		return bkerrors.NewValue("memstore.Update", fmt.Sprintf("id %q not found in %q", id, table))
	}
	merged := cloneRow(row)
	for k, v := range updates {
		merged[k] = v
	}
	rows[id] = merged
	return nil
}

func (s *Store) Delete(_ context.Context, table string, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.tables[table]
	if rows == nil {
		return nil
	}
	delete(rows, id)
	ord := s.order[table]
	for i, oid := range ord {
		if oid == id {
			s.order[table] = append(ord[:i], ord[i+1:]...)
			break
		}
	}
	return nil
}

func (s *Store) Find(_ context.Context, table string, id string) (storage.Row, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.tables[table]
	if rows == nil {
		return nil, false, nil
	}
	row, ok := rows[id]
	if !ok {
		return nil, false, nil
	}
	return cloneRow(row), true, nil
}

func (s *Store) Query(table string, conditions storage.Row) storage.QueryBuilder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []storage.Row
	for _, id := range s.order[table] {
		row := s.tables[table][id]
		if matches(row, conditions) {
			rows = append(rows, cloneRow(row))
		}
	}
	return &queryBuilder{rows: rows}
}

func matches(row storage.Row, conditions storage.Row) bool {
	for k, want := range conditions {
		if row[k] != want {
			return false
		}
	}
	return true
}

func (s *Store) Archive(_ context.Context, modelClass string, recordID string, record []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tombstones[modelClass] = append(s.tombstones[modelClass], storage.DeletedModel{
		ModelClass: modelClass,
		RecordID:   recordID,
		Record:     append([]byte(nil), record...),
	})
	return nil
}

func (s *Store) DeletedModels(modelClass string) storage.QueryBuilder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []storage.Row
	for _, tomb := range s.tombstones[modelClass] {
		rows = append(rows, storage.Row{
			"model_class": tomb.ModelClass,
			"record_id":   tomb.RecordID,
			"record":      tomb.Record,
		})
	}
	return &queryBuilder{rows: rows}
}

// WithTransaction clones the store's full state, runs fn against the clone,
// and atomically swaps it in only if fn succeeds — giving Trim's
// archive-then-delete pairing all-or-nothing semantics.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Backend) error) error {
	s.mu.Lock()
	clone := &Store{
		tables:     make(map[string]map[string]storage.Row, len(s.tables)),
		order:      make(map[string][]string, len(s.order)),
		tombstones: make(map[string][]storage.DeletedModel, len(s.tombstones)),
	}
	for t, rows := range s.tables {
		nr := make(map[string]storage.Row, len(rows))
		for id, r := range rows {
			nr[id] = cloneRow(r)
		}
		clone.tables[t] = nr
	}
	for t, ord := range s.order {
		clone.order[t] = append([]string(nil), ord...)
	}
	for mc, tombs := range s.tombstones {
		clone.tombstones[mc] = append([]storage.DeletedModel(nil), tombs...)
	}
	s.mu.Unlock()

	if err := fn(ctx, clone); err != nil {
		return err
	}

	s.mu.Lock()
	s.tables = clone.tables
	s.order = clone.order
	s.tombstones = clone.tombstones
	s.mu.Unlock()
	return nil
}

type queryBuilder struct {
	rows []storage.Row
}

func (q *queryBuilder) Contains(col, needle string) storage.QueryBuilder {
	var out []storage.Row
	for _, r := range q.rows {
		if s, ok := r[col].(string); ok && strings.Contains(s, needle) {
			out = append(out, r)
		}
	}
	return &queryBuilder{rows: out}
}

func (q *queryBuilder) IsIn(col string, values []string) storage.QueryBuilder {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	var out []storage.Row
	for _, r := range q.rows {
		if s, ok := r[col].(string); ok && set[s] {
			out = append(out, r)
		}
	}
	return &queryBuilder{rows: out}
}

func (q *queryBuilder) Count(context.Context) (int, error) {
	return len(q.rows), nil
}

func (q *queryBuilder) Get(context.Context) ([]storage.Row, error) {
	out := make([]storage.Row, len(q.rows))
	copy(out, q.rows)
	return out, nil
}

func (q *queryBuilder) Chunk(_ context.Context, n int, fn func([]storage.Row) error) error {
	if n <= 0 {
		n = len(q.rows)
		if n == 0 {
			return nil
		}
	}
	for i := 0; i < len(q.rows); i += n {
		end := i + n
		if end > len(q.rows) {
			end = len(q.rows)
		}
		if err := fn(q.rows[i:end]); err != nil {
			return err
		}
	}
	return nil
}
