// Package ledger defines Ledger, the scoping container owned by exactly
// one Identity that Accounts, Entries and Transactions all ultimately
// belong to.
package ledger

import (
	"github.com/LeJamon/bookkeep/internal/hashedrecord"
	"github.com/LeJamon/bookkeep/internal/ledger/types"
)

// Ledger scopes a chart of accounts to one Identity and one Currency.
type Ledger struct {
	ID         string
	Name       string
	Type       types.LedgerType
	IdentityID string
	CurrencyID string
}

var columns = []string{"id", "name", "type", "identity_id", "currency_id"}

func (l *Ledger) Columns() []string  { return columns }
func (l *Ledger) Excluded() []string { return nil }

func (l *Ledger) Fields() map[string]any {
	return map[string]any{
		"id":          l.ID,
		"name":        l.Name,
		"type":        string(l.Type),
		"identity_id": l.IdentityID,
		"currency_id": l.CurrencyID,
	}
}

// Prepare stamps l.ID from its hashable fields.
func (l *Ledger) Prepare() error {
	id, err := hashedrecord.GenerateID(l)
	if err != nil {
		return err
	}
	l.ID = id
	return nil
}
