package transaction

import (
	"context"
	"strings"

	"github.com/LeJamon/bookkeep/internal/bkerrors"
	"github.com/LeJamon/bookkeep/internal/hashedrecord"
	"github.com/LeJamon/bookkeep/internal/ledger/account"
	"github.com/LeJamon/bookkeep/internal/ledger/entry"
	"github.com/LeJamon/bookkeep/internal/script"
	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage"
)

const TableTransactions = "transactions"

// Service wires Transaction's prepare/validate/persist operations to an
// explicit backend, serializer, and the Account/Entry services they
// delegate to — no package-level state.
type Service struct {
	backend  storage.Backend
	ser      serializer.Serializer
	accounts *account.Service
	entries  *entry.Service
}

func NewService(backend storage.Backend, ser serializer.Serializer) *Service {
	return &Service{
		backend:  backend,
		ser:      ser,
		accounts: account.NewService(backend, ser),
		entries:  entry.NewService(backend, ser),
	}
}

// Row packs t for storage.
func (t *Transaction) Row(ser serializer.Serializer) (storage.Row, error) {
	packedDetails, err := ser.Pack(t.Details)
	if err != nil {
		return nil, err
	}
	authMap := make(map[string]any, len(t.AuthScripts))
	for k, v := range t.AuthScripts {
		authMap[k] = v
	}
	packedAuth, err := ser.Pack(authMap)
	if err != nil {
		return nil, err
	}
	return storage.Row{
		"id":           t.ID,
		"entry_ids":    strings.Join(t.EntryIDs, ","),
		"ledger_ids":   strings.Join(t.LedgerIDs, ","),
		"timestamp":    t.Timestamp,
		"details":      packedDetails,
		"auth_scripts": packedAuth,
	}, nil
}

// Prepare validates and stamps a new Transaction from entries, persisting
// the entries and the transaction atomically on success. Each entry's owning
// Account is loaded once by AccountID through the account service; a missing
// account is an error.
func (s *Service) Prepare(
	ctx context.Context,
	entries []*entry.Entry,
	timestamp string,
	authScripts map[string][]byte,
	details any,
	runtime script.Runtime,
	baseCache map[string][]byte,
	contracts map[string][]byte,
) (*Transaction, error) {
	if timestamp == "" {
		return nil, bkerrors.NewType("transaction.Prepare", "timestamp must be a non-empty string")
	}
	if len(entries) == 0 {
		return nil, bkerrors.NewType("transaction.Prepare", "entries must be non-empty")
	}
	if authScripts == nil {
		authScripts = map[string][]byte{}
	}

	accountsByID := map[string]*account.Account{}
	for _, e := range entries {
		if _, ok := accountsByID[e.AccountID]; ok {
			continue
		}
		a, ok, err := s.accounts.GetByID(ctx, e.AccountID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, bkerrors.Valuef("transaction.Prepare", "account %s not found", e.AccountID)
		}
		accountsByID[e.AccountID] = a
	}

	// 2. ID stamp.
	for _, e := range entries {
		if err := e.Prepare(); err != nil {
			return nil, err
		}
	}

	// 3. Uniqueness.
	for _, e := range entries {
		n, err := s.backend.Query(TableTransactions, nil).Contains("entry_ids", e.ID).Count(ctx)
		if err != nil {
			return nil, storage.WrapErr("transaction.Prepare", err)
		}
		if n > 0 {
			return nil, bkerrors.Valuef("transaction.Prepare", "entry %s already contained within a Transaction", e.ID)
		}
	}

	// 4. Scope collection.
	var ledgerIDs []string
	for _, e := range entries {
		ledgerIDs = append(ledgerIDs, accountsByID[e.AccountID].LedgerID)
	}
	ledgerIDs = sortedUnique(ledgerIDs)

	// 5. Auth presence.
	if err := checkAuthPresence(entries, accountsByID, authScripts); err != nil {
		return nil, err
	}

	// 6. Balance.
	if err := checkBalance(entries, accountsByID); err != nil {
		return nil, err
	}

	// 7. Build.
	var entryIDs []string
	for _, e := range entries {
		entryIDs = append(entryIDs, e.ID)
	}
	txn := &Transaction{
		EntryIDs:    sortedUnique(entryIDs),
		LedgerIDs:   ledgerIDs,
		Timestamp:   timestamp,
		Details:     details,
		AuthScripts: authScripts,
	}

	// 8. Script authorization.
	if err := s.authorize(entries, accountsByID, authScripts, runtime, baseCache, contracts); err != nil {
		return nil, err
	}

	// 9. Compute and assign ID.
	id, err := hashedrecord.GenerateID(txn)
	if err != nil {
		return nil, err
	}
	txn.ID = id

	if err := s.persist(ctx, txn, entries); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *Service) persist(ctx context.Context, txn *Transaction, entries []*entry.Entry) error {
	return s.backend.WithTransaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		for _, e := range entries {
			row, err := e.Row(s.ser)
			if err != nil {
				return err
			}
			if _, err := tx.Insert(ctx, entry.TableEntries, row); err != nil {
				return storage.WrapErr("transaction.Prepare", err)
			}
		}
		row, err := txn.Row(s.ser)
		if err != nil {
			return err
		}
		if _, err := tx.Insert(ctx, TableTransactions, row); err != nil {
			return storage.WrapErr("transaction.Prepare", err)
		}
		return nil
	})
}

func checkAuthPresence(entries []*entry.Entry, accountsByID map[string]*account.Account, authScripts map[string][]byte) error {
	for _, e := range entries {
		a := accountsByID[e.AccountID]
		if len(a.LockingScripts[e.Type]) == 0 {
			continue
		}
		if _, ok := authScripts[a.ID]; !ok {
			return bkerrors.Valuef("transaction.Prepare", "missing auth script for account %s", a.ID)
		}
	}
	return nil
}

func checkBalance(entries []*entry.Entry, accountsByID map[string]*account.Account) error {
	totals := map[string]map[string]int64{} // ledger_id -> {"credit","debit"} -> sum
	for _, e := range entries {
		ledgerID := accountsByID[e.AccountID].LedgerID
		if totals[ledgerID] == nil {
			totals[ledgerID] = map[string]int64{"credit": 0, "debit": 0}
		}
		if e.Type.Code() == 'c' {
			totals[ledgerID]["credit"] += e.Amount
		} else {
			totals[ledgerID]["debit"] += e.Amount
		}
	}
	for ledgerID, sums := range totals {
		if sums["credit"] != sums["debit"] {
			return bkerrors.Valuef("transaction.Prepare", "ledger %s unbalanced: credit=%d debit=%d", ledgerID, sums["credit"], sums["debit"])
		}
	}
	return nil
}

func (s *Service) authorize(
	entries []*entry.Entry,
	accountsByID map[string]*account.Account,
	authScripts map[string][]byte,
	runtime script.Runtime,
	baseCache map[string][]byte,
	contracts map[string][]byte,
) error {
	if runtime == nil {
		runtime = script.AllowAll
	}
	for _, e := range entries {
		a := accountsByID[e.AccountID]
		if len(a.LockingScripts[e.Type]) == 0 {
			continue
		}
		sigfields, err := e.GetSigFields()
		if err != nil {
			return err
		}
		cache := mergeCache(baseCache, sigfields)
		if !a.ValidateScript(e.Type, authScripts[a.ID], runtime, cache, contracts) {
			return bkerrors.NewAuth("transaction.Prepare", "validation failed")
		}
	}
	return nil
}

func mergeCache(base map[string][]byte, extra map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// GetByID loads a Transaction by id.
func (s *Service) GetByID(ctx context.Context, id string) (*Transaction, bool, error) {
	row, ok, err := s.backend.Find(ctx, TableTransactions, id)
	if err != nil {
		return nil, false, storage.WrapErr("transaction.GetByID", err)
	}
	if !ok {
		return nil, false, nil
	}
	txn, err := FromRow(row, s.ser)
	if err != nil {
		return nil, false, err
	}
	return txn, true, nil
}

// FromRow reconstructs a Transaction from its stored row.
func FromRow(row storage.Row, ser serializer.Serializer) (*Transaction, error) {
	txn := &Transaction{
		ID:        asString(row["id"]),
		Timestamp: asString(row["timestamp"]),
	}
	if csv, ok := row["entry_ids"].(string); ok && csv != "" {
		txn.EntryIDs = strings.Split(csv, ",")
	}
	if csv, ok := row["ledger_ids"].(string); ok && csv != "" {
		txn.LedgerIDs = strings.Split(csv, ",")
	}
	if packed, ok := row["details"].([]byte); ok {
		details, err := ser.Unpack(packed)
		if err != nil {
			return nil, err
		}
		txn.Details = details
	}
	if packed, ok := row["auth_scripts"].([]byte); ok {
		unpacked, err := ser.Unpack(packed)
		if err != nil {
			return nil, err
		}
		if m, ok := unpacked.(map[string]any); ok {
			auth := make(map[string][]byte, len(m))
			for k, v := range m {
				b, _ := v.([]byte)
				auth[k] = b
			}
			txn.AuthScripts = auth
		}
	}
	return txn, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// Validate re-runs the auth-presence, balance and script-authorization
// checks against the persisted entries (optionally reloading accounts) and
// reports whether they all pass. Only storage failures surface as an error;
// semantic mismatches, including a referenced entry or account that no
// longer exists, resolve to (false, nil).
func (s *Service) Validate(ctx context.Context, txn *Transaction, runtime script.Runtime, baseCache, contracts map[string][]byte, reload bool) (bool, error) {
	entries := make([]*entry.Entry, 0, len(txn.EntryIDs))
	accountsByID := map[string]*account.Account{}
	for _, id := range txn.EntryIDs {
		e, ok, err := s.entries.GetByID(ctx, id)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		entries = append(entries, e)
		if _, known := accountsByID[e.AccountID]; known && !reload {
			continue
		}
		a, ok, err := s.accounts.GetByID(ctx, e.AccountID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		accountsByID[e.AccountID] = a
	}

	if err := checkAuthPresence(entries, accountsByID, txn.AuthScripts); err != nil {
		return false, nil
	}
	if err := checkBalance(entries, accountsByID); err != nil {
		return false, nil
	}
	if err := s.authorize(entries, accountsByID, txn.AuthScripts, runtime, baseCache, contracts); err != nil {
		return false, nil
	}
	return true, nil
}
