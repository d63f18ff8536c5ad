// Package entry defines Entry, the immutable single-sided posting that
// Transactions bundle together. An Entry's ID commits to its type (as a
// single-character disk code), amount, nonce, account and details; once
// hashed it never changes.
package entry

import (
	"encoding/hex"
	"sync"

	"github.com/LeJamon/bookkeep/internal/bkerrors"
	"github.com/LeJamon/bookkeep/internal/hashedrecord"
	"github.com/LeJamon/bookkeep/internal/ledger/types"
)

// Entry is a single-sided posting against one account. Nonce guarantees ID
// distinctness between otherwise-identical postings (same account, type,
// amount).
type Entry struct {
	ID        string
	Type      types.EntryType
	Amount    int64
	Nonce     []byte
	AccountID string
	Details   any
}

var columns = []string{"id", "type", "amount", "nonce", "account_id", "details"}

func (e *Entry) Columns() []string  { return columns }
func (e *Entry) Excluded() []string { return nil }

func (e *Entry) Fields() map[string]any {
	return map[string]any{
		"id":         e.ID,
		"type":       string(e.Type.Code()),
		"amount":     e.Amount,
		"nonce":      e.Nonce,
		"account_id": e.AccountID,
		"details":    e.Details,
	}
}

// Prepare validates e's type/amount and stamps e.ID.
func (e *Entry) Prepare() error {
	if !e.Type.Valid() {
		return bkerrors.NewValue("entry.Prepare", "invalid entry type")
	}
	if e.Amount < 0 {
		return bkerrors.NewValue("entry.Prepare", "amount must be non-negative")
	}
	id, err := hashedrecord.GenerateID(e)
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// sigfieldPlugins lets a caller override GetSigFields for a given entry
// type, e.g. to bind an additional sigfield for a multi-leg script. Absent
// a plug-in, sigfield1 is always bytes.fromhex(entry.id).
var (
	pluginsMu sync.RWMutex
	plugins   = map[types.EntryType]func(*Entry) (map[string][]byte, error){}
)

// RegisterSigFieldPlugin installs fn as the sigfield source for entries of
// type t, replacing the default sigfield1=id binding.
func RegisterSigFieldPlugin(t types.EntryType, fn func(*Entry) (map[string][]byte, error)) {
	pluginsMu.Lock()
	defer pluginsMu.Unlock()
	plugins[t] = fn
}

// GetSigFields returns the cache map fed to the script runtime's signature
// opcodes: {sigfield1: fromhex(e.ID)} unless a plug-in is registered for
// e.Type.
func (e *Entry) GetSigFields() (map[string][]byte, error) {
	pluginsMu.RLock()
	fn, ok := plugins[e.Type]
	pluginsMu.RUnlock()
	if ok {
		return fn(e)
	}
	raw, err := hex.DecodeString(e.ID)
	if err != nil {
		return nil, bkerrors.NewEncoding("entry.GetSigFields", err.Error())
	}
	return map[string][]byte{"sigfield1": raw}, nil
}
