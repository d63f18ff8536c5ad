// Package postgresstore implements storage.Backend on top of a Postgres
// database, generalizing a single `rows(table_name, id, payload jsonb)`
// layout so every ledger record type shares one physical schema — the
// relational persistence layer is explicitly out of this engine's scope;
// on-disk schema shape is an implementation choice, not a contract.
package postgresstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

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

// Store is a storage.Backend backed by Postgres via lib/pq.
type Store struct {
	db *sql.DB
}

// Open connects to dsn (a postgres:// URL or libpq keyword string) and
// ensures the backing table/indexes exist.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, storage.WrapErr("postgresstore.Open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, storage.WrapErr("postgresstore.Open", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS ledger_rows (
	table_name TEXT NOT NULL,
	id TEXT NOT NULL,
	payload BYTEA NOT NULL,
	PRIMARY KEY (table_name, id)
);
CREATE TABLE IF NOT EXISTS ledger_tombstones (
	model_class TEXT NOT NULL,
	record_id TEXT NOT NULL,
	record BYTEA NOT NULL,
	PRIMARY KEY (model_class, record_id)
);
`)
	if err != nil {
		return storage.WrapErr("postgresstore.migrate", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Insert(ctx context.Context, table string, row storage.Row) (storage.Row, error) {
	id, _ := row["id"].(string)
	payload, err := packRow(row)
	if err != nil {
		return nil, storage.WrapErr("postgresstore.Insert", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ledger_rows (table_name, id, payload) VALUES ($1, $2, $3)`,
		table, id, payload)
	if err != nil {
		return nil, storage.WrapErr("postgresstore.Insert", err)
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
		return storage.WrapErr("postgresstore.Update", fmt.Errorf("id %q not found in %q", id, table))
	}
	for k, v := range updates {
		row[k] = v
	}
	payload, err := packRow(row)
	if err != nil {
		return storage.WrapErr("postgresstore.Update", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE ledger_rows SET payload = $1 WHERE table_name = $2 AND id = $3`,
		payload, table, id)
	if err != nil {
		return storage.WrapErr("postgresstore.Update", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM ledger_rows WHERE table_name = $1 AND id = $2`, table, id)
	if err != nil {
		return storage.WrapErr("postgresstore.Delete", err)
	}
	return nil
}

func (s *Store) Find(ctx context.Context, table string, id string) (storage.Row, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM ledger_rows WHERE table_name = $1 AND id = $2`, table, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.WrapErr("postgresstore.Find", err)
	}
	row, err := unpackRow(payload)
	if err != nil {
		return nil, false, storage.WrapErr("postgresstore.Find", err)
	}
	return row, true, nil
}

func (s *Store) Query(table string, conditions storage.Row) storage.QueryBuilder {
	return &queryBuilder{store: s, table: table, conditions: conditions}
}

func (s *Store) Archive(ctx context.Context, modelClass string, recordID string, record []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_tombstones (model_class, record_id, record) VALUES ($1, $2, $3)`,
		modelClass, recordID, record)
	if err != nil {
		return storage.WrapErr("postgresstore.Archive", err)
	}
	return nil
}

func (s *Store) DeletedModels(modelClass string) storage.QueryBuilder {
	return &tombstoneQuery{store: s, modelClass: modelClass}
}

// WithTransaction runs fn inside a single Postgres transaction, rolling
// back on any error fn returns.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Backend) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.WrapErr("postgresstore.WithTransaction", err)
	}
	txStore := &txBackend{db: sqlTx}
	if err := fn(ctx, txStore); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return storage.WrapErr("postgresstore.WithTransaction", err)
	}
	return nil
}

// queryBuilder lazily loads all rows for table matching conditions, then
// narrows in Go — simple and correct, since Contains/IsIn only ever see
// query results from the engine's own chunked scans, not ad hoc reports.
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

func (q *queryBuilder) rows(ctx context.Context) ([]storage.Row, error) {
	rows, err := q.store.db.QueryContext(ctx,
		`SELECT payload FROM ledger_rows WHERE table_name = $1`, q.table)
	if err != nil {
		return nil, storage.WrapErr("postgresstore.Query", err)
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, storage.WrapErr("postgresstore.Query", err)
		}
		row, err := unpackRow(payload)
		if err != nil {
			return nil, storage.WrapErr("postgresstore.Query", err)
		}
		if !q.matches(row) {
			continue
		}
		out = append(out, row)
	}
	return out, rows.Err()
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
	rows, err := q.rows(ctx)
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (q *queryBuilder) Get(ctx context.Context) ([]storage.Row, error) {
	return q.rows(ctx)
}

func (q *queryBuilder) Chunk(ctx context.Context, n int, fn func([]storage.Row) error) error {
	all, err := q.rows(ctx)
	if err != nil {
		return err
	}
	if n <= 0 {
		n = len(all)
		if n == 0 {
			return nil
		}
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

func (q *tombstoneQuery) rows(ctx context.Context) ([]storage.Row, error) {
	rows, err := q.store.db.QueryContext(ctx,
		`SELECT record_id, record FROM ledger_tombstones WHERE model_class = $1`, q.modelClass)
	if err != nil {
		return nil, storage.WrapErr("postgresstore.DeletedModels", err)
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		var recordID string
		var record []byte
		if err := rows.Scan(&recordID, &record); err != nil {
			return nil, storage.WrapErr("postgresstore.DeletedModels", err)
		}
		row := storage.Row{"model_class": q.modelClass, "record_id": recordID, "record": record}
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
	return out, rows.Err()
}

func (q *tombstoneQuery) Count(ctx context.Context) (int, error) {
	rows, err := q.rows(ctx)
	return len(rows), err
}
func (q *tombstoneQuery) Get(ctx context.Context) ([]storage.Row, error) { return q.rows(ctx) }
func (q *tombstoneQuery) Chunk(ctx context.Context, n int, fn func([]storage.Row) error) error {
	all, err := q.rows(ctx)
	if err != nil {
		return err
	}
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

// txBackend is the Backend view handed to a WithTransaction callback: the
// same operations, scoped to one *sql.Tx.
type txBackend struct {
	db *sql.Tx
}

func (t *txBackend) Insert(ctx context.Context, table string, row storage.Row) (storage.Row, error) {
	id, _ := row["id"].(string)
	payload, err := packRow(row)
	if err != nil {
		return nil, storage.WrapErr("postgresstore.Insert", err)
	}
	_, err = t.db.ExecContext(ctx,
		`INSERT INTO ledger_rows (table_name, id, payload) VALUES ($1, $2, $3)`, table, id, payload)
	if err != nil {
		return nil, storage.WrapErr("postgresstore.Insert", err)
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
		return storage.WrapErr("postgresstore.Update", fmt.Errorf("id %q not found in %q", id, table))
	}
	for k, v := range updates {
		row[k] = v
	}
	payload, err := packRow(row)
	if err != nil {
		return storage.WrapErr("postgresstore.Update", err)
	}
	_, err = t.db.ExecContext(ctx,
		`UPDATE ledger_rows SET payload = $1 WHERE table_name = $2 AND id = $3`, payload, table, id)
	if err != nil {
		return storage.WrapErr("postgresstore.Update", err)
	}
	return nil
}

func (t *txBackend) Delete(ctx context.Context, table string, id string) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM ledger_rows WHERE table_name = $1 AND id = $2`, table, id)
	if err != nil {
		return storage.WrapErr("postgresstore.Delete", err)
	}
	return nil
}

func (t *txBackend) Find(ctx context.Context, table string, id string) (storage.Row, bool, error) {
	var payload []byte
	err := t.db.QueryRowContext(ctx,
		`SELECT payload FROM ledger_rows WHERE table_name = $1 AND id = $2`, table, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.WrapErr("postgresstore.Find", err)
	}
	row, err := unpackRow(payload)
	if err != nil {
		return nil, false, storage.WrapErr("postgresstore.Find", err)
	}
	return row, true, nil
}

func (t *txBackend) Query(table string, conditions storage.Row) storage.QueryBuilder {
	return &txQueryBuilder{tx: t, table: table, conditions: conditions}
}

func (t *txBackend) Archive(ctx context.Context, modelClass string, recordID string, record []byte) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO ledger_tombstones (model_class, record_id, record) VALUES ($1, $2, $3)`,
		modelClass, recordID, record)
	if err != nil {
		return storage.WrapErr("postgresstore.Archive", err)
	}
	return nil
}

func (t *txBackend) DeletedModels(modelClass string) storage.QueryBuilder {
	return &txTombstoneQuery{tx: t, modelClass: modelClass}
}

func (t *txBackend) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Backend) error) error {
	// Postgres doesn't nest real transactions here; a nested call just
	// reuses the same *sql.Tx, matching the "single storage transaction"
	// requirement for trim's archive+delete pairing.
	return fn(ctx, t)
}

type txQueryBuilder struct {
	tx         *txBackend
	table      string
	conditions storage.Row
}

func (q *txQueryBuilder) Contains(col, needle string) storage.QueryBuilder { return q }
func (q *txQueryBuilder) IsIn(col string, values []string) storage.QueryBuilder { return q }

func (q *txQueryBuilder) rows(ctx context.Context) ([]storage.Row, error) {
	rows, err := q.tx.db.QueryContext(ctx,
		`SELECT payload FROM ledger_rows WHERE table_name = $1`, q.table)
	if err != nil {
		return nil, storage.WrapErr("postgresstore.Query", err)
	}
	defer rows.Close()
	var out []storage.Row
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, storage.WrapErr("postgresstore.Query", err)
		}
		row, err := unpackRow(payload)
		if err != nil {
			return nil, storage.WrapErr("postgresstore.Query", err)
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
	return out, rows.Err()
}

func (q *txQueryBuilder) Count(ctx context.Context) (int, error) {
	rows, err := q.rows(ctx)
	return len(rows), err
}
func (q *txQueryBuilder) Get(ctx context.Context) ([]storage.Row, error) { return q.rows(ctx) }
func (q *txQueryBuilder) Chunk(ctx context.Context, n int, fn func([]storage.Row) error) error {
	all, err := q.rows(ctx)
	if err != nil {
		return err
	}
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

type txTombstoneQuery struct {
	tx         *txBackend
	modelClass string
}

func (q *txTombstoneQuery) Contains(string, string) storage.QueryBuilder  { return q }
func (q *txTombstoneQuery) IsIn(string, []string) storage.QueryBuilder    { return q }
func (q *txTombstoneQuery) Count(ctx context.Context) (int, error) {
	rows, err := q.Get(ctx)
	return len(rows), err
}
func (q *txTombstoneQuery) Get(ctx context.Context) ([]storage.Row, error) {
	rows, err := q.tx.db.QueryContext(ctx,
		`SELECT record_id, record FROM ledger_tombstones WHERE model_class = $1`, q.modelClass)
	if err != nil {
		return nil, storage.WrapErr("postgresstore.DeletedModels", err)
	}
	defer rows.Close()
	var out []storage.Row
	for rows.Next() {
		var recordID string
		var record []byte
		if err := rows.Scan(&recordID, &record); err != nil {
			return nil, storage.WrapErr("postgresstore.DeletedModels", err)
		}
		out = append(out, storage.Row{"model_class": q.modelClass, "record_id": recordID, "record": record})
	}
	return out, rows.Err()
}
func (q *txTombstoneQuery) Chunk(ctx context.Context, n int, fn func([]storage.Row) error) error {
	all, err := q.Get(ctx)
	if err != nil {
		return err
	}
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
