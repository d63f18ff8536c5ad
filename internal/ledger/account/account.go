// Package account implements the chart-of-accounts node: per-entry-type
// locking scripts, tree-shaped sub-accounts, and balance computation with
// sign convention by account type.
package account

import (
	"context"

	"github.com/LeJamon/bookkeep/internal/bkerrors"
	"github.com/LeJamon/bookkeep/internal/cache"
	"github.com/LeJamon/bookkeep/internal/hashedrecord"
	"github.com/LeJamon/bookkeep/internal/ledger/types"
	"github.com/LeJamon/bookkeep/internal/script"
	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage"
)

const (
	TableAccounts = "accounts"
	TableEntries  = "entries"

	chunkSize = 500
)

// Account is a chart-of-accounts node: exactly one ledger, an optional
// parent forming a tree, and per-direction locking scripts gating entries.
type Account struct {
	ID        string
	Name      string
	Type      types.AccountType
	LedgerID  string
	ParentID  string // "" means root
	Code      string
	LockingScripts map[types.EntryType][]byte
	CategoryID string
	Details    any
	Active     bool

	// CounterpartyIdentityID is a discovery aid for Correspondence.GetAccounts,
	// not part of the hashable record (like Active).
	CounterpartyIdentityID string
}

var columns = []string{
	"id", "name", "type", "ledger_id", "parent_id", "code",
	"locking_scripts", "category_id", "details", "active", "counterparty_identity_id",
}
var excluded = []string{"active", "counterparty_identity_id"}

func (a *Account) Columns() []string  { return columns }
func (a *Account) Excluded() []string { return excluded }

func (a *Account) Fields() map[string]any {
	return map[string]any{
		"id":                       a.ID,
		"name":                     a.Name,
		"type":                     string(a.Type),
		"ledger_id":                a.LedgerID,
		"parent_id":                a.ParentID,
		"code":                     a.Code,
		"locking_scripts":          lockingScriptsToCanonical(a.LockingScripts),
		"category_id":              a.CategoryID,
		"details":                  a.Details,
		"active":                   a.Active,
		"counterparty_identity_id": a.CounterpartyIdentityID,
	}
}

// lockingScriptsToCanonical converts the EntryType-keyed map to its
// single-char-code-keyed canonical form, so the enum variant never leaks
// into the hashed byte form.
func lockingScriptsToCanonical(m map[types.EntryType][]byte) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[string(k.Code())] = v
	}
	return out
}

// Row packs a for storage: locking_scripts is serialized via ser, everything
// else stored as its native Go scalar.
func (a *Account) Row(ser serializer.Serializer) (storage.Row, error) {
	lockMap := make(map[string]any, len(a.LockingScripts))
	for k, v := range a.LockingScripts {
		lockMap[string(k.Code())] = v
	}
	packedLocks, err := ser.Pack(lockMap)
	if err != nil {
		return nil, err
	}
	packedDetails, err := ser.Pack(a.Details)
	if err != nil {
		return nil, err
	}
	return storage.Row{
		"id":                       a.ID,
		"name":                     a.Name,
		"type":                     string(a.Type),
		"ledger_id":                a.LedgerID,
		"parent_id":                a.ParentID,
		"code":                     a.Code,
		"locking_scripts":          packedLocks,
		"category_id":              a.CategoryID,
		"details":                  packedDetails,
		"active":                   a.Active,
		"counterparty_identity_id": a.CounterpartyIdentityID,
	}, nil
}

// Service wires an Account's storage-facing operations to an explicit
// backend and serializer — no ambient/package-level state.
type Service struct {
	backend storage.Backend
	ser     serializer.Serializer
	cache   *cache.Cache[*Account]
}

func NewService(backend storage.Backend, ser serializer.Serializer) *Service {
	return &Service{backend: backend, ser: ser}
}

// NewServiceWithCache wires a read-through LRU cache of the given size in
// front of GetByID, so repeated lookups of the same account don't refetch
// and re-unpack it from storage every time. Balance does not go through
// the cache: it queries entries and child accounts from the backend.
func NewServiceWithCache(backend storage.Backend, ser serializer.Serializer, size int) (*Service, error) {
	s := &Service{backend: backend, ser: ser}
	c, err := cache.New(size, func(ctx context.Context, id string) (*Account, bool, error) {
		return s.getByIDUncached(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	s.cache = c
	return s, nil
}

// Insert validates a.Type, detects cycles in the parent chain, computes
// a.ID and persists the row.
func (s *Service) Insert(ctx context.Context, a *Account) error {
	if !a.Type.Valid() {
		return bkerrors.NewValue("account.Insert", "invalid account type")
	}
	if a.ParentID != "" {
		if err := s.detectCycle(ctx, a.ID, a.ParentID); err != nil {
			return err
		}
	}
	id, err := hashedrecord.GenerateID(a)
	if err != nil {
		return err
	}
	a.ID = id
	row, err := a.Row(s.ser)
	if err != nil {
		return err
	}
	if _, err := s.backend.Insert(ctx, TableAccounts, row); err != nil {
		return storage.WrapErr("account.Insert", err)
	}
	return nil
}

// detectCycle walks the parent chain from parentID, failing if selfID (once
// assigned) would be revisited — the tree-acyclicity invariant balance
// recursion depends on.
func (s *Service) detectCycle(ctx context.Context, selfID, parentID string) error {
	seen := map[string]bool{}
	cur := parentID
	for cur != "" {
		if seen[cur] || cur == selfID {
			return bkerrors.NewValue("account.Insert", "cyclic parent_id reference")
		}
		seen[cur] = true
		row, ok, err := s.backend.Find(ctx, TableAccounts, cur)
		if err != nil {
			return storage.WrapErr("account.Insert", err)
		}
		if !ok {
			return nil
		}
		next, _ := row["parent_id"].(string)
		cur = next
	}
	return nil
}

// RolledBalance is a prior rollup's net position for one account, seeded
// into Balance before scanning live entries.
type RolledBalance struct {
	Type   types.EntryType
	Amount int64
}

// Balance computes a's signed balance: live entries plus, when includeSub,
// every descendant's balance. rolledUp seeds the running totals from a
// prior TxRollup's folded balances.
func (s *Service) Balance(ctx context.Context, a *Account, includeSub bool, rolledUp map[string]RolledBalance) (int64, error) {
	var creditTotal, debitTotal int64

	if rb, ok := rolledUp[a.ID]; ok {
		if rb.Type == types.Credit {
			creditTotal += rb.Amount
		} else {
			debitTotal += rb.Amount
		}
	}

	q := s.backend.Query(TableEntries, storage.Row{"account_id": a.ID})
	err := q.Chunk(ctx, chunkSize, func(rows []storage.Row) error {
		for _, row := range rows {
			amt := toInt64(row["amount"])
			code, _ := row["type"].(string)
			if code == "" {
				continue
			}
			et, ok := types.EntryTypeFromCode(code[0])
			if !ok {
				continue
			}
			if et == types.Credit {
				creditTotal += amt
			} else {
				debitTotal += amt
			}
		}
		return nil
	})
	if err != nil {
		return 0, storage.WrapErr("account.Balance", err)
	}

	total := debitTotal - creditTotal
	if !a.Type.IsDebitPositive() {
		total = creditTotal - debitTotal
	}

	if includeSub {
		children, err := s.backend.Query(TableAccounts, storage.Row{"parent_id": a.ID}).Get(ctx)
		if err != nil {
			return 0, storage.WrapErr("account.Balance", err)
		}
		for _, row := range children {
			child, err := fromRow(row)
			if err != nil {
				return 0, err
			}
			childBal, err := s.Balance(ctx, child, true, rolledUp)
			if err != nil {
				return 0, err
			}
			total += childBal
		}
	}
	return total, nil
}

// GetByID loads an Account by id, through the read-through cache when one
// is configured.
func (s *Service) GetByID(ctx context.Context, id string) (*Account, bool, error) {
	if s.cache != nil {
		return s.cache.Get(ctx, id)
	}
	return s.getByIDUncached(ctx, id)
}

func (s *Service) getByIDUncached(ctx context.Context, id string) (*Account, bool, error) {
	row, ok, err := s.backend.Find(ctx, TableAccounts, id)
	if err != nil {
		return nil, false, storage.WrapErr("account.GetByID", err)
	}
	if !ok {
		return nil, false, nil
	}
	a, err := fromRowFull(row)
	if err != nil {
		return nil, false, err
	}
	if packed, ok := row["locking_scripts"].([]byte); ok {
		unpacked, err := s.ser.Unpack(packed)
		if err != nil {
			return nil, false, err
		}
		if m, ok := unpacked.(map[string]any); ok {
			locks := make(map[types.EntryType][]byte, len(m))
			for code, v := range m {
				if len(code) != 1 {
					continue
				}
				et, ok := types.EntryTypeFromCode(code[0])
				if !ok {
					continue
				}
				b, _ := v.([]byte)
				locks[et] = b
			}
			a.LockingScripts = locks
		}
	}
	if packed, ok := row["details"].([]byte); ok {
		details, err := s.ser.Unpack(packed)
		if err != nil {
			return nil, false, err
		}
		a.Details = details
	}
	return a, true, nil
}

func fromRowFull(row storage.Row) (*Account, error) {
	a, err := fromRow(row)
	if err != nil {
		return nil, err
	}
	a.CategoryID = asString(row["category_id"])
	a.CounterpartyIdentityID = asString(row["counterparty_identity_id"])
	if active, ok := row["active"].(bool); ok {
		a.Active = active
	}
	a.LockingScripts = map[types.EntryType][]byte{}
	return a, nil
}

func fromRow(row storage.Row) (*Account, error) {
	a := &Account{
		ID:       asString(row["id"]),
		Name:     asString(row["name"]),
		Type:     types.AccountType(asString(row["type"])),
		LedgerID: asString(row["ledger_id"]),
		ParentID: asString(row["parent_id"]),
		Code:     asString(row["code"]),
	}
	return a, nil
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

// ValidateScript concatenates auth with a's locking script for entryType
// (missing locking script treated as empty bytes) and delegates to runtime.
// Any runtime failure — panic or false return — resolves to false.
func (a *Account) ValidateScript(entryType types.EntryType, auth []byte, runtime script.Runtime, cache, contracts map[string][]byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	lock := a.LockingScripts[entryType]
	combined := make([]byte, 0, len(auth)+len(lock))
	combined = append(combined, auth...)
	combined = append(combined, lock...)
	return runtime.Verify(combined, cache, contracts)
}
