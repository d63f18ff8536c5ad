// Package rollup implements TxRollup: height-chained Merkle aggregation of
// Transactions, folding of entry amounts into per-account net balances,
// inclusion proofs, validation, and trim/archive of the rolled-up rows.
package rollup

import (
	"github.com/LeJamon/bookkeep/internal/ledger/account"
	"github.com/LeJamon/bookkeep/internal/ledger/types"
)

// TxRollup is a height-chained, Merkle-rooted snapshot of a batch of
// Transactions plus the resulting account balances. TxIDs and AuthScript
// are excluded from the hash: trim may remove the underlying transactions
// without invalidating the rollup's own ID, and the same rollup may be
// re-signed without changing ID.
type TxRollup struct {
	ID               string
	Height           int64
	ParentID         string // "" means genesis
	TxIDs            []string // sorted
	TxRoot           [32]byte
	CorrespondenceID string // exactly one of CorrespondenceID/LedgerID is set
	LedgerID         string
	Balances         map[string]account.RolledBalance
	Timestamp        string
	AuthScript       []byte
}

var columns = []string{
	"id", "height", "parent_id", "tx_ids", "tx_root",
	"correspondence_id", "ledger_id", "balances", "timestamp", "auth_script",
}
var excluded = []string{"tx_ids", "auth_script"}

func (r *TxRollup) Columns() []string  { return columns }
func (r *TxRollup) Excluded() []string { return excluded }

func (r *TxRollup) Fields() map[string]any {
	return map[string]any{
		"id":                r.ID,
		"height":            r.Height,
		"parent_id":         r.ParentID,
		"tx_ids":            stringsToAny(r.TxIDs),
		"tx_root":           append([]byte(nil), r.TxRoot[:]...),
		"correspondence_id": r.CorrespondenceID,
		"ledger_id":         r.LedgerID,
		"balances":          balancesToCanonical(r.Balances),
		"timestamp":         r.Timestamp,
		"auth_script":       r.AuthScript,
	}
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// balancesToCanonical converts the EntryType-keyed balance map to its
// canonical wire shape: account_id -> [single-char code, amount], never
// letting the enum variant leak into the hashed byte form.
func balancesToCanonical(balances map[string]account.RolledBalance) map[string]any {
	out := make(map[string]any, len(balances))
	for aid, rb := range balances {
		out[aid] = []any{string(rb.Type.Code()), rb.Amount}
	}
	return out
}

// fold applies one entry's signed amount onto balances[aid], reconstituting
// the two-sided pair from the single stored (EntryType, amount), adding the
// entry's amount to its own side, then collapsing back to a net signed
// value.
func fold(balances map[string]account.RolledBalance, aid string, et types.EntryType, amount int64) {
	creditSigned := int64(0)
	if rb, ok := balances[aid]; ok {
		if rb.Type == types.Credit {
			creditSigned = rb.Amount
		} else {
			creditSigned = -rb.Amount
		}
	}
	if et == types.Credit {
		creditSigned += amount
	} else {
		creditSigned -= amount
	}
	if creditSigned >= 0 {
		balances[aid] = account.RolledBalance{Type: types.Credit, Amount: creditSigned}
	} else {
		balances[aid] = account.RolledBalance{Type: types.Debit, Amount: -creditSigned}
	}
}

func copyBalances(src map[string]account.RolledBalance) map[string]account.RolledBalance {
	out := make(map[string]account.RolledBalance, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

func balancesEqual(a, b map[string]account.RolledBalance) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}
