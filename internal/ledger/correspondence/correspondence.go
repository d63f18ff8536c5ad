// Package correspondence implements Correspondence: a bilateral agreement
// between two Identities, nostro/vostro account discovery between them, and
// the joint authorization policy consumed by TxRollup validation.
package correspondence

import "sort"

// Correspondence links exactly two Identities. Details may carry a
// txru_lock script requiring joint authorization of rollups scoped to
// this correspondence.
type Correspondence struct {
	ID          string
	IdentityIDs []string // exactly two, sorted
	Details     any
	LedgerIDs   []string
}

var columns = []string{"id", "identity_ids", "details", "ledger_ids"}

func (c *Correspondence) Columns() []string  { return columns }
func (c *Correspondence) Excluded() []string { return nil }

func (c *Correspondence) Fields() map[string]any {
	return map[string]any{
		"id":           c.ID,
		"identity_ids": stringsToAny(sortedCopy(c.IdentityIDs)),
		"details":      c.Details,
		"ledger_ids":   stringsToAny(sortedCopy(c.LedgerIDs)),
	}
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func sortedCopy(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

// TxruLock extracts details.txru_lock if present, as raw bytes.
func (c *Correspondence) TxruLock() []byte {
	m, ok := c.Details.(map[string]any)
	if !ok {
		return nil
	}
	lock, ok := m["txru_lock"].([]byte)
	if !ok {
		return nil
	}
	return lock
}
