// Package hashedrecord provides the content-addressing base every ledger
// record embeds: computing a record's ID as the hash of its own canonical
// fields, minus the fields that record type excludes from the hash, minus
// the id field itself.
//
// This follows a keylet-style "the ID is a pure function of content"
// convention, generalized from a single space+payload hash into an
// arbitrary field map.
package hashedrecord

import "github.com/LeJamon/bookkeep/internal/codec"

// Fielder is implemented by every record type. Columns lists every
// persisted column name (excluding "id"); Excluded lists the subset of
// Columns that must never be included when computing the ID (mutable
// metadata such as Identity.seed or Account.active); Fields returns the
// current value for every name in Columns, using nil for an absent value.
type Fielder interface {
	Columns() []string
	Excluded() []string
	Fields() map[string]any
}

// GenerateID builds the canonical map of Fielder's hashable columns and
// returns its hex-encoded SHA-256 digest. It never includes "id" itself or
// any column named in Excluded().
func GenerateID(f Fielder) (string, error) {
	excluded := make(map[string]bool, len(f.Excluded()))
	for _, c := range f.Excluded() {
		excluded[c] = true
	}
	excluded["id"] = true

	fields := f.Fields()
	m := make(map[string]any, len(fields))
	for _, col := range f.Columns() {
		if excluded[col] {
			continue
		}
		m[col] = fields[col]
	}
	return codec.IDOf(m)
}

// VerifyID recomputes f's ID and reports whether it equals id: every record's
// stored ID must equal generate_id(fields \ excluded).
func VerifyID(f Fielder, id string) (bool, error) {
	got, err := GenerateID(f)
	if err != nil {
		return false, err
	}
	return got == id, nil
}
