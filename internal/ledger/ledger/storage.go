package ledger

import (
	"context"

	"github.com/LeJamon/bookkeep/internal/hashedrecord"
	"github.com/LeJamon/bookkeep/internal/ledger/types"
	"github.com/LeJamon/bookkeep/internal/storage"
)

// TableLedgers is the ledgers table name used across the engine.
const TableLedgers = "ledgers"

// Service wires Ledger's storage-facing operations to an explicit backend.
type Service struct {
	backend storage.Backend
}

func NewService(backend storage.Backend) *Service {
	return &Service{backend: backend}
}

// Row packs l for storage.
func (l *Ledger) Row() storage.Row {
	return storage.Row{
		"id":          l.ID,
		"name":        l.Name,
		"type":        string(l.Type),
		"identity_id": l.IdentityID,
		"currency_id": l.CurrencyID,
	}
}

// Insert stamps l.ID and persists it.
func (s *Service) Insert(ctx context.Context, l *Ledger) error {
	if err := l.Prepare(); err != nil {
		return err
	}
	if _, err := s.backend.Insert(ctx, TableLedgers, l.Row()); err != nil {
		return storage.WrapErr("ledger.Insert", err)
	}
	return nil
}

// GetByID loads a Ledger by id.
func (s *Service) GetByID(ctx context.Context, id string) (*Ledger, bool, error) {
	row, ok, err := s.backend.Find(ctx, TableLedgers, id)
	if err != nil {
		return nil, false, storage.WrapErr("ledger.GetByID", err)
	}
	if !ok {
		return nil, false, nil
	}
	return fromRow(row), true, nil
}

func fromRow(row storage.Row) *Ledger {
	return &Ledger{
		ID:         asString(row["id"]),
		Name:       asString(row["name"]),
		Type:       types.LedgerType(asString(row["type"])),
		IdentityID: asString(row["identity_id"]),
		CurrencyID: asString(row["currency_id"]),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// VerifyID reports whether l's stored ID matches its recomputed content hash.
func VerifyID(l *Ledger) (bool, error) {
	return hashedrecord.VerifyID(l, l.ID)
}
