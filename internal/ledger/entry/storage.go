package entry

import (
	"context"

	"github.com/LeJamon/bookkeep/internal/ledger/types"
	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage"
)

// TableEntries is the entries table name used across the engine.
const TableEntries = "entries"

// Service wires Entry's storage-facing operations to an explicit backend
// and serializer.
type Service struct {
	backend storage.Backend
	ser     serializer.Serializer
}

func NewService(backend storage.Backend, ser serializer.Serializer) *Service {
	return &Service{backend: backend, ser: ser}
}

// Row packs e for storage: details is serialized via ser, everything else
// stored as its native Go scalar.
func (e *Entry) Row(ser serializer.Serializer) (storage.Row, error) {
	packedDetails, err := ser.Pack(e.Details)
	if err != nil {
		return nil, err
	}
	return storage.Row{
		"id":         e.ID,
		"type":       string(e.Type.Code()),
		"amount":     e.Amount,
		"nonce":      e.Nonce,
		"account_id": e.AccountID,
		"details":    packedDetails,
	}, nil
}

// Insert persists e's row. Callers are expected to have already called
// Prepare to stamp e.ID.
func (s *Service) Insert(ctx context.Context, e *Entry) error {
	row, err := e.Row(s.ser)
	if err != nil {
		return err
	}
	if _, err := s.backend.Insert(ctx, TableEntries, row); err != nil {
		return storage.WrapErr("entry.Insert", err)
	}
	return nil
}

// GetByID loads an Entry by id.
func (s *Service) GetByID(ctx context.Context, id string) (*Entry, bool, error) {
	row, ok, err := s.backend.Find(ctx, TableEntries, id)
	if err != nil {
		return nil, false, storage.WrapErr("entry.GetByID", err)
	}
	if !ok {
		return nil, false, nil
	}
	e, err := FromRow(row, s.ser)
	if err != nil {
		return nil, false, err
	}
	return e, true, nil
}

// FromRow reconstructs an Entry from its stored row.
func FromRow(row storage.Row, ser serializer.Serializer) (*Entry, error) {
	e := &Entry{
		ID:        asString(row["id"]),
		AccountID: asString(row["account_id"]),
	}
	if code := asString(row["type"]); code != "" {
		if et, ok := types.EntryTypeFromCode(code[0]); ok {
			e.Type = et
		}
	}
	e.Amount = toInt64(row["amount"])
	if nonce, ok := row["nonce"].([]byte); ok {
		e.Nonce = nonce
	}
	if packed, ok := row["details"].([]byte); ok {
		details, err := ser.Unpack(packed)
		if err != nil {
			return nil, err
		}
		e.Details = details
	}
	return e, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
