// Package sqlitestore implements storage.Backend on a local SQLite file
// via modernc.org/sqlite, a pure-Go driver so bookkeepd never needs cgo to
// run a single-node embedded deployment.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

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

// Store is a storage.Backend backed by a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the SQLite database at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, storage.WrapErr("sqlitestore.Open", err)
	}
	// SQLite serializes writers; a single connection avoids
	// "database is locked" errors under this Backend's own mutex-free
	// design, which assumes the driver handles its own concurrency.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, storage.WrapErr("sqlitestore.Open", err)
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
	payload BLOB NOT NULL,
	PRIMARY KEY (table_name, id)
);
CREATE TABLE IF NOT EXISTS ledger_tombstones (
	model_class TEXT NOT NULL,
	record_id TEXT NOT NULL,
	record BLOB NOT NULL,
	PRIMARY KEY (model_class, record_id)
);
`)
	if err != nil {
		return storage.WrapErr("sqlitestore.migrate", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Insert(ctx context.Context, table string, row storage.Row) (storage.Row, error) {
	id, _ := row["id"].(string)
	payload, err := packRow(row)
	if err != nil {
		return nil, storage.WrapErr("sqlitestore.Insert", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ledger_rows (table_name, id, payload) VALUES (?, ?, ?)`, table, id, payload)
	if err != nil {
		return nil, storage.WrapErr("sqlitestore.Insert", err)
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
		return storage.WrapErr("sqlitestore.Update", fmt.Errorf("id %q not found in %q", id, table))
	}
	for k, v := range updates {
		row[k] = v
	}
	payload, err := packRow(row)
	if err != nil {
		return storage.WrapErr("sqlitestore.Update", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE ledger_rows SET payload = ? WHERE table_name = ? AND id = ?`, payload, table, id)
	if err != nil {
		return storage.WrapErr("sqlitestore.Update", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table string, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM ledger_rows WHERE table_name = ? AND id = ?`, table, id)
	if err != nil {
		return storage.WrapErr("sqlitestore.Delete", err)
	}
	return nil
}

func (s *Store) Find(ctx context.Context, table string, id string) (storage.Row, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM ledger_rows WHERE table_name = ? AND id = ?`, table, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.WrapErr("sqlitestore.Find", err)
	}
	row, err := unpackRow(payload)
	if err != nil {
		return nil, false, storage.WrapErr("sqlitestore.Find", err)
	}
	return row, true, nil
}

func (s *Store) Query(table string, conditions storage.Row) storage.QueryBuilder {
	return &queryBuilder{db: s.db, table: table, conditions: conditions}
}

func (s *Store) Archive(ctx context.Context, modelClass string, recordID string, record []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_tombstones (model_class, record_id, record) VALUES (?, ?, ?)`,
		modelClass, recordID, record)
	if err != nil {
		return storage.WrapErr("sqlitestore.Archive", err)
	}
	return nil
}

func (s *Store) DeletedModels(modelClass string) storage.QueryBuilder {
	return &tombstoneQuery{db: s.db, modelClass: modelClass}
}

// WithTransaction runs fn inside a single SQLite transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Backend) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storage.WrapErr("sqlitestore.WithTransaction", err)
	}
	txStore := &txBackend{db: sqlTx}
	if err := fn(ctx, txStore); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return storage.WrapErr("sqlitestore.WithTransaction", err)
	}
	return nil
}

// dbLike covers the *sql.DB/*sql.Tx query surface this backend needs, so
// the query builders work unmodified inside and outside a transaction.
type dbLike interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type queryBuilder struct {
	db         dbLike
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
	rows, err := q.db.QueryContext(ctx, `SELECT payload FROM ledger_rows WHERE table_name = ?`, q.table)
	if err != nil {
		return nil, storage.WrapErr("sqlitestore.Query", err)
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, storage.WrapErr("sqlitestore.Query", err)
		}
		row, err := unpackRow(payload)
		if err != nil {
			return nil, storage.WrapErr("sqlitestore.Query", err)
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
	return len(rows), err
}
func (q *queryBuilder) Get(ctx context.Context) ([]storage.Row, error) { return q.rows(ctx) }
func (q *queryBuilder) Chunk(ctx context.Context, n int, fn func([]storage.Row) error) error {
	return chunkRows(q.rows, ctx, n, fn)
}

func chunkRows(load func(context.Context) ([]storage.Row, error), ctx context.Context, n int, fn func([]storage.Row) error) error {
	all, err := load(ctx)
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

type tombstoneQuery struct {
	db         dbLike
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
	rows, err := q.db.QueryContext(ctx,
		`SELECT record_id, record FROM ledger_tombstones WHERE model_class = ?`, q.modelClass)
	if err != nil {
		return nil, storage.WrapErr("sqlitestore.DeletedModels", err)
	}
	defer rows.Close()

	var out []storage.Row
	for rows.Next() {
		var recordID string
		var record []byte
		if err := rows.Scan(&recordID, &record); err != nil {
			return nil, storage.WrapErr("sqlitestore.DeletedModels", err)
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
	return chunkRows(q.rows, ctx, n, fn)
}

// txBackend is the Backend view handed to a WithTransaction callback.
type txBackend struct {
	db *sql.Tx
}

func (t *txBackend) Insert(ctx context.Context, table string, row storage.Row) (storage.Row, error) {
	id, _ := row["id"].(string)
	payload, err := packRow(row)
	if err != nil {
		return nil, storage.WrapErr("sqlitestore.Insert", err)
	}
	_, err = t.db.ExecContext(ctx,
		`INSERT INTO ledger_rows (table_name, id, payload) VALUES (?, ?, ?)`, table, id, payload)
	if err != nil {
		return nil, storage.WrapErr("sqlitestore.Insert", err)
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
		return storage.WrapErr("sqlitestore.Update", fmt.Errorf("id %q not found in %q", id, table))
	}
	for k, v := range updates {
		row[k] = v
	}
	payload, err := packRow(row)
	if err != nil {
		return storage.WrapErr("sqlitestore.Update", err)
	}
	_, err = t.db.ExecContext(ctx,
		`UPDATE ledger_rows SET payload = ? WHERE table_name = ? AND id = ?`, payload, table, id)
	if err != nil {
		return storage.WrapErr("sqlitestore.Update", err)
	}
	return nil
}

func (t *txBackend) Delete(ctx context.Context, table string, id string) error {
	_, err := t.db.ExecContext(ctx, `DELETE FROM ledger_rows WHERE table_name = ? AND id = ?`, table, id)
	if err != nil {
		return storage.WrapErr("sqlitestore.Delete", err)
	}
	return nil
}

func (t *txBackend) Find(ctx context.Context, table string, id string) (storage.Row, bool, error) {
	var payload []byte
	err := t.db.QueryRowContext(ctx,
		`SELECT payload FROM ledger_rows WHERE table_name = ? AND id = ?`, table, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, storage.WrapErr("sqlitestore.Find", err)
	}
	row, err := unpackRow(payload)
	if err != nil {
		return nil, false, storage.WrapErr("sqlitestore.Find", err)
	}
	return row, true, nil
}

func (t *txBackend) Query(table string, conditions storage.Row) storage.QueryBuilder {
	return &queryBuilder{db: t.db, table: table, conditions: conditions}
}

func (t *txBackend) Archive(ctx context.Context, modelClass string, recordID string, record []byte) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO ledger_tombstones (model_class, record_id, record) VALUES (?, ?, ?)`,
		modelClass, recordID, record)
	if err != nil {
		return storage.WrapErr("sqlitestore.Archive", err)
	}
	return nil
}

func (t *txBackend) DeletedModels(modelClass string) storage.QueryBuilder {
	return &tombstoneQuery{db: t.db, modelClass: modelClass}
}

func (t *txBackend) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx storage.Backend) error) error {
	return fn(ctx, t)
}
