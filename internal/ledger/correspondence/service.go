package correspondence

import (
	"context"
	"strings"

	"github.com/LeJamon/bookkeep/internal/hashedrecord"
	"github.com/LeJamon/bookkeep/internal/ledger/account"
	"github.com/LeJamon/bookkeep/internal/ledger/identity"
	"github.com/LeJamon/bookkeep/internal/ledger/types"
	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage"
)

const TableCorrespondences = "correspondences"

// scannedTypes is scanned for bilateral nostro/vostro discovery,
// alongside plain ASSET/LIABILITY per the core contract.
var scannedTypes = []types.AccountType{
	types.Asset, types.Liability, types.NostroAsset, types.VostroLiability,
}

// Service wires Correspondence's storage-facing operations to an explicit
// backend and serializer.
type Service struct {
	backend storage.Backend
	ser     serializer.Serializer
}

func NewService(backend storage.Backend, ser serializer.Serializer) *Service {
	return &Service{backend: backend, ser: ser}
}

// Row packs c for storage.
func (c *Correspondence) Row(ser serializer.Serializer) (storage.Row, error) {
	packedDetails, err := ser.Pack(c.Details)
	if err != nil {
		return nil, err
	}
	return storage.Row{
		"id":           c.ID,
		"identity_ids": strings.Join(sortedCopy(c.IdentityIDs), ","),
		"details":      packedDetails,
		"ledger_ids":   strings.Join(sortedCopy(c.LedgerIDs), ","),
	}, nil
}

// Prepare stamps c.ID and persists it.
func (s *Service) Prepare(ctx context.Context, c *Correspondence) error {
	id, err := hashedrecord.GenerateID(c)
	if err != nil {
		return err
	}
	c.ID = id
	row, err := c.Row(s.ser)
	if err != nil {
		return err
	}
	if _, err := s.backend.Insert(ctx, TableCorrespondences, row); err != nil {
		return storage.WrapErr("correspondence.Prepare", err)
	}
	return nil
}

// GetAccounts gathers the nostro/vostro accounts surfacing the bilateral
// relationship between a and b: every Asset/Liability/NostroAsset/
// VostroLiability account whose counterparty_identity_id exactly matches
// either identity, falling back to a substring-on-name scan (the legacy
// behavior) for accounts predating that column. Results are de-duplicated
// by account ID.
func (s *Service) GetAccounts(ctx context.Context, a, b *identity.Identity) ([]*account.Account, error) {
	svc := account.NewService(s.backend, s.ser)
	seen := map[string]bool{}
	var out []*account.Account

	for _, at := range scannedTypes {
		rows, err := s.backend.Query(account.TableAccounts, storage.Row{"type": string(at)}).Get(ctx)
		if err != nil {
			return nil, storage.WrapErr("correspondence.GetAccounts", err)
		}
		for _, row := range rows {
			id, _ := row["id"].(string)
			if id == "" || seen[id] {
				continue
			}
			counterparty, _ := row["counterparty_identity_id"].(string)
			name, _ := row["name"].(string)
			matches := counterparty == a.ID || counterparty == b.ID
			if !matches && counterparty == "" {
				matches = strings.Contains(name, a.ID) || strings.Contains(name, b.ID)
			}
			if !matches {
				continue
			}
			acc, ok, err := svc.GetByID(ctx, id)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			seen[id] = true
			out = append(out, acc)
		}
	}
	return out, nil
}
