// Package identity defines Identity, the owner of Ledgers. Identity is the
// one record whose seed/secret_details may be mutated locally without
// invalidating its ID.
package identity

import "github.com/LeJamon/bookkeep/internal/hashedrecord"

// Identity owns zero or more Ledgers. Seed and SecretDetails are excluded
// from the hash: they can be rotated (key derivation material, local notes)
// without changing ID, the only record with that property.
type Identity struct {
	ID            string
	Name          string
	Details       any
	Pubkey        []byte
	Seed          []byte
	SecretDetails any
}

var columns = []string{"id", "name", "details", "pubkey", "seed", "secret_details"}
var excluded = []string{"seed", "secret_details"}

func (i *Identity) Columns() []string  { return columns }
func (i *Identity) Excluded() []string { return excluded }

func (i *Identity) Fields() map[string]any {
	return map[string]any{
		"id":             i.ID,
		"name":           i.Name,
		"details":        i.Details,
		"pubkey":         i.Pubkey,
		"seed":           i.Seed,
		"secret_details": i.SecretDetails,
	}
}

// Prepare stamps i.ID from its hashable fields.
func (i *Identity) Prepare() error {
	id, err := hashedrecord.GenerateID(i)
	if err != nil {
		return err
	}
	i.ID = id
	return nil
}

// PublicFields returns the hashable half of i's fields — everything except
// id and the excluded seed/secret_details — so a caller can clone an
// Identity's public half onto a fresh seed/secret pair.
func (i *Identity) PublicFields() map[string]any {
	out := make(map[string]any, len(columns))
	skip := map[string]bool{"id": true}
	for _, c := range excluded {
		skip[c] = true
	}
	for k, v := range i.Fields() {
		if skip[k] {
			continue
		}
		out[k] = v
	}
	return out
}
