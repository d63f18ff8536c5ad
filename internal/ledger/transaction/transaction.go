// Package transaction implements Transaction, the bundle of entries that
// must balance across every ledger it touches and that carries per-account
// auth scripts gating its entries' locking scripts.
package transaction

import "sort"

// Transaction bundles a balanced set of Entries. AuthScripts is excluded
// from the hash: the same transaction may be re-authorized without
// changing its ID.
type Transaction struct {
	ID          string
	EntryIDs    []string // sorted
	LedgerIDs   []string // sorted
	Timestamp   string
	Details     any
	AuthScripts map[string][]byte // account_id -> auth bytecode
}

var columns = []string{"id", "entry_ids", "ledger_ids", "timestamp", "details", "auth_scripts"}
var excluded = []string{"auth_scripts"}

func (t *Transaction) Columns() []string  { return columns }
func (t *Transaction) Excluded() []string { return excluded }

func (t *Transaction) Fields() map[string]any {
	return map[string]any{
		"id":           t.ID,
		"entry_ids":    stringsToAny(t.EntryIDs),
		"ledger_ids":   stringsToAny(t.LedgerIDs),
		"timestamp":    t.Timestamp,
		"details":      t.Details,
		"auth_scripts": t.AuthScripts,
	}
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func sortedUnique(ss []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(ss))
	for _, s := range ss {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
