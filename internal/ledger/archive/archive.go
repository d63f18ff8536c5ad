// Package archive implements the post-trim immutable snapshot of a rolled-up
// Transaction/Entry: the ArchivedTransaction/ArchivedEntry records that keep
// the same ID as the live row they replace, so Merkle inclusion proofs
// computed against the original tx_ids stay valid after trim.
//
// Archived payloads are compressed with pierrec/lz4 before being handed to
// storage.Backend.Archive, the same compress-before-persist idiom the
// teacher's storage/nodestore layer uses for its node blobs.
package archive

import (
	"bytes"
	"context"
	"io"

	"github.com/pierrec/lz4"

	"github.com/LeJamon/bookkeep/internal/ledger/entry"
	"github.com/LeJamon/bookkeep/internal/ledger/transaction"
	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage"
)

const (
	ClassTransaction = "Transaction"
	ClassEntry       = "Entry"
)

// Service archives Transactions and Entries as lz4-compressed tombstones.
type Service struct {
	backend storage.Backend
	ser     serializer.Serializer
}

func NewService(backend storage.Backend, ser serializer.Serializer) *Service {
	return &Service{backend: backend, ser: ser}
}

// ArchiveTransaction writes txn's canonical row, compressed, as a
// DeletedModel tombstone keyed by txn.ID.
func (s *Service) ArchiveTransaction(ctx context.Context, txn *transaction.Transaction) error {
	row, err := txn.Row(s.ser)
	if err != nil {
		return err
	}
	packed, err := s.ser.Pack(rowToAny(row))
	if err != nil {
		return err
	}
	compressed, err := compress(packed)
	if err != nil {
		return err
	}
	if err := s.backend.Archive(ctx, ClassTransaction, txn.ID, compressed); err != nil {
		return storage.WrapErr("archive.ArchiveTransaction", err)
	}
	return nil
}

// ArchiveEntry writes e's canonical row, compressed, as a DeletedModel
// tombstone keyed by e.ID.
func (s *Service) ArchiveEntry(ctx context.Context, e *entry.Entry) error {
	row, err := e.Row(s.ser)
	if err != nil {
		return err
	}
	packed, err := s.ser.Pack(rowToAny(row))
	if err != nil {
		return err
	}
	compressed, err := compress(packed)
	if err != nil {
		return err
	}
	if err := s.backend.Archive(ctx, ClassEntry, e.ID, compressed); err != nil {
		return storage.WrapErr("archive.ArchiveEntry", err)
	}
	return nil
}

// RestoreEntry reads back and decompresses an archived Entry's row.
func (s *Service) RestoreEntry(ctx context.Context, id string) (*entry.Entry, bool, error) {
	rows, err := s.backend.DeletedModels(ClassEntry).IsIn("record_id", []string{id}).Get(ctx)
	if err != nil {
		return nil, false, storage.WrapErr("archive.RestoreEntry", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	compressed, _ := rows[0]["record"].([]byte)
	packed, err := decompress(compressed)
	if err != nil {
		return nil, false, err
	}
	unpacked, err := s.ser.Unpack(packed)
	if err != nil {
		return nil, false, err
	}
	row, ok := unpacked.(map[string]any)
	if !ok {
		return nil, false, nil
	}
	e, err := entry.FromRow(anyToRow(row), s.ser)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// RestoreTransaction reads back and decompresses an archived Transaction's
// row, the same fallback path RestoreEntry gives entries.
func (s *Service) RestoreTransaction(ctx context.Context, id string) (*transaction.Transaction, bool, error) {
	rows, err := s.backend.DeletedModels(ClassTransaction).IsIn("record_id", []string{id}).Get(ctx)
	if err != nil {
		return nil, false, storage.WrapErr("archive.RestoreTransaction", err)
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	compressed, _ := rows[0]["record"].([]byte)
	packed, err := decompress(compressed)
	if err != nil {
		return nil, false, err
	}
	unpacked, err := s.ser.Unpack(packed)
	if err != nil {
		return nil, false, err
	}
	row, ok := unpacked.(map[string]any)
	if !ok {
		return nil, false, nil
	}
	txn, err := transaction.FromRow(anyToRow(row), s.ser)
	if err != nil {
		return nil, false, err
	}
	return txn, true, nil
}

func rowToAny(row storage.Row) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func anyToRow(m map[string]any) storage.Row {
	out := make(storage.Row, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func compress(b []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(b); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(b []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(b))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return out, nil
}
