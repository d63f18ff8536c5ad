package currency

import (
	"context"

	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage"
)

// TableCurrencies is the currencies table name used across the engine.
const TableCurrencies = "currencies"

// Service wires Currency's storage-facing operations to an explicit
// backend and serializer.
type Service struct {
	backend storage.Backend
	ser     serializer.Serializer
}

func NewService(backend storage.Backend, ser serializer.Serializer) *Service {
	return &Service{backend: backend, ser: ser}
}

// Row packs c for storage.
func (c *Currency) Row(ser serializer.Serializer) (storage.Row, error) {
	packedDetails, err := ser.Pack(c.Details)
	if err != nil {
		return nil, err
	}
	return storage.Row{
		"id":            c.ID,
		"name":          c.Name,
		"prefix_symbol": c.PrefixSymbol,
		"fx_symbol":     c.FxSymbol,
		"base":          int64(c.Base),
		"decimals":      int64(c.Decimals),
		"vendor_id":     c.VendorID,
		"details":       packedDetails,
	}, nil
}

// Insert validates, stamps c.ID and persists it.
func (s *Service) Insert(ctx context.Context, c *Currency) error {
	if err := c.Prepare(); err != nil {
		return err
	}
	row, err := c.Row(s.ser)
	if err != nil {
		return err
	}
	if _, err := s.backend.Insert(ctx, TableCurrencies, row); err != nil {
		return storage.WrapErr("currency.Insert", err)
	}
	return nil
}

// GetByID loads a Currency by id.
func (s *Service) GetByID(ctx context.Context, id string) (*Currency, bool, error) {
	row, ok, err := s.backend.Find(ctx, TableCurrencies, id)
	if err != nil {
		return nil, false, storage.WrapErr("currency.GetByID", err)
	}
	if !ok {
		return nil, false, nil
	}
	c := &Currency{
		ID:           asString(row["id"]),
		Name:         asString(row["name"]),
		PrefixSymbol: asString(row["prefix_symbol"]),
		FxSymbol:     asString(row["fx_symbol"]),
		VendorID:     asString(row["vendor_id"]),
		Base:         int(toInt64(row["base"])),
		Decimals:     int(toInt64(row["decimals"])),
	}
	if packed, ok := row["details"].([]byte); ok {
		details, err := s.ser.Unpack(packed)
		if err != nil {
			return nil, false, err
		}
		c.Details = details
	}
	return c, true, nil
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
