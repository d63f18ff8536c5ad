package identity

import (
	"context"

	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage"
)

const TableIdentities = "identities"

// Service wires Identity's storage-facing operations to an explicit
// backend and serializer.
type Service struct {
	backend storage.Backend
	ser     serializer.Serializer
}

func NewService(backend storage.Backend, ser serializer.Serializer) *Service {
	return &Service{backend: backend, ser: ser}
}

// Row packs i for storage.
func (i *Identity) Row(ser serializer.Serializer) (storage.Row, error) {
	packedDetails, err := ser.Pack(i.Details)
	if err != nil {
		return nil, err
	}
	packedSecret, err := ser.Pack(i.SecretDetails)
	if err != nil {
		return nil, err
	}
	return storage.Row{
		"id":             i.ID,
		"name":           i.Name,
		"details":        packedDetails,
		"pubkey":         i.Pubkey,
		"seed":           i.Seed,
		"secret_details": packedSecret,
	}, nil
}

// Insert stamps i.ID and persists it.
func (s *Service) Insert(ctx context.Context, i *Identity) error {
	if err := i.Prepare(); err != nil {
		return err
	}
	row, err := i.Row(s.ser)
	if err != nil {
		return err
	}
	if _, err := s.backend.Insert(ctx, TableIdentities, row); err != nil {
		return storage.WrapErr("identity.Insert", err)
	}
	return nil
}

// UpdateMutable rewrites seed/secret_details in place without touching i.ID,
// the one field group excluded from the hash.
func (s *Service) UpdateMutable(ctx context.Context, id string, seed []byte, secretDetails any) error {
	packedSecret, err := s.ser.Pack(secretDetails)
	if err != nil {
		return err
	}
	err = s.backend.Update(ctx, TableIdentities, id, storage.Row{
		"seed":           seed,
		"secret_details": packedSecret,
	})
	if err != nil {
		return storage.WrapErr("identity.UpdateMutable", err)
	}
	return nil
}

// GetByID loads an Identity by id.
func (s *Service) GetByID(ctx context.Context, id string) (*Identity, bool, error) {
	row, ok, err := s.backend.Find(ctx, TableIdentities, id)
	if err != nil {
		return nil, false, storage.WrapErr("identity.GetByID", err)
	}
	if !ok {
		return nil, false, nil
	}
	i := &Identity{
		ID:   asString(row["id"]),
		Name: asString(row["name"]),
	}
	if pk, ok := row["pubkey"].([]byte); ok {
		i.Pubkey = pk
	}
	if seed, ok := row["seed"].([]byte); ok {
		i.Seed = seed
	}
	if packed, ok := row["details"].([]byte); ok {
		details, err := s.ser.Unpack(packed)
		if err != nil {
			return nil, false, err
		}
		i.Details = details
	}
	if packed, ok := row["secret_details"].([]byte); ok {
		secret, err := s.ser.Unpack(packed)
		if err != nil {
			return nil, false, err
		}
		i.SecretDetails = secret
	}
	return i, true, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
