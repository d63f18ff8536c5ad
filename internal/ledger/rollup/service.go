package rollup

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/LeJamon/bookkeep/internal/bkerrors"
	"github.com/LeJamon/bookkeep/internal/hashedrecord"
	"github.com/LeJamon/bookkeep/internal/ledger/account"
	"github.com/LeJamon/bookkeep/internal/ledger/archive"
	"github.com/LeJamon/bookkeep/internal/ledger/correspondence"
	"github.com/LeJamon/bookkeep/internal/ledger/entry"
	"github.com/LeJamon/bookkeep/internal/ledger/identity"
	"github.com/LeJamon/bookkeep/internal/ledger/transaction"
	"github.com/LeJamon/bookkeep/internal/ledger/types"
	"github.com/LeJamon/bookkeep/internal/merkle"
	"github.com/LeJamon/bookkeep/internal/script"
	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage"
)

const TableRollups = "tx_rollups"

// Service wires TxRollup's prepare/validate/trim operations to an explicit
// backend and the Account/Entry/Transaction/Correspondence services they
// delegate to.
type Service struct {
	backend  storage.Backend
	ser      serializer.Serializer
	txs      *transaction.Service
	entries  *entry.Service
	accounts *account.Service
	corresp  *correspondence.Service
	idents   *identity.Service
	archiver *archive.Service

	// Now supplies the rollup timestamp; overridable in tests.
	Now func() string
}

func NewService(backend storage.Backend, ser serializer.Serializer) *Service {
	return &Service{
		backend:  backend,
		ser:      ser,
		txs:      transaction.NewService(backend, ser),
		entries:  entry.NewService(backend, ser),
		accounts: account.NewService(backend, ser),
		corresp:  correspondence.NewService(backend, ser),
		idents:   identity.NewService(backend, ser),
		archiver: archive.NewService(backend, ser),
		Now:      func() string { return strconv.FormatInt(time.Now().Unix(), 10) },
	}
}

// Row packs r for storage.
func (r *TxRollup) Row(ser serializer.Serializer) (storage.Row, error) {
	balMap := balancesToCanonical(r.Balances)
	packedBalances, err := ser.Pack(balMap)
	if err != nil {
		return nil, err
	}
	return storage.Row{
		"id":                r.ID,
		"height":            r.Height,
		"parent_id":         r.ParentID,
		"tx_ids":            strings.Join(r.TxIDs, ","),
		"tx_root":           append([]byte(nil), r.TxRoot[:]...),
		"correspondence_id": r.CorrespondenceID,
		"ledger_id":         r.LedgerID,
		"balances":          packedBalances,
		"timestamp":         r.Timestamp,
		"auth_script":       r.AuthScript,
	}, nil
}

// GetByID loads a TxRollup by id.
func (s *Service) GetByID(ctx context.Context, id string) (*TxRollup, bool, error) {
	row, ok, err := s.backend.Find(ctx, TableRollups, id)
	if err != nil {
		return nil, false, storage.WrapErr("rollup.GetByID", err)
	}
	if !ok {
		return nil, false, nil
	}
	r, err := fromRow(row, s.ser)
	if err != nil {
		return nil, false, err
	}
	return r, true, nil
}

func fromRow(row storage.Row, ser serializer.Serializer) (*TxRollup, error) {
	r := &TxRollup{
		ID:               asString(row["id"]),
		ParentID:         asString(row["parent_id"]),
		CorrespondenceID: asString(row["correspondence_id"]),
		LedgerID:         asString(row["ledger_id"]),
		Timestamp:        asString(row["timestamp"]),
	}
	r.Height = toInt64(row["height"])
	if csv, ok := row["tx_ids"].(string); ok && csv != "" {
		r.TxIDs = strings.Split(csv, ",")
	}
	if root, ok := row["tx_root"].([]byte); ok && len(root) == 32 {
		copy(r.TxRoot[:], root)
	}
	if script, ok := row["auth_script"].([]byte); ok {
		r.AuthScript = script
	}
	if packed, ok := row["balances"].([]byte); ok {
		unpacked, err := ser.Unpack(packed)
		if err != nil {
			return nil, err
		}
		r.Balances = canonicalToBalances(unpacked)
	} else {
		r.Balances = map[string]account.RolledBalance{}
	}
	return r, nil
}

func canonicalToBalances(v any) map[string]account.RolledBalance {
	out := map[string]account.RolledBalance{}
	m, ok := v.(map[string]any)
	if !ok {
		return out
	}
	for aid, pair := range m {
		list, ok := pair.([]any)
		if !ok || len(list) != 2 {
			continue
		}
		code, _ := list[0].(string)
		amt := toInt64(list[1])
		if code == "" {
			continue
		}
		et, ok := types.EntryTypeFromCode(code[0])
		if !ok {
			continue
		}
		out[aid] = account.RolledBalance{Type: et, Amount: amt}
	}
	return out
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

// Prepare folds txns onto parent's balances (or {} for a genesis rollup),
// enforcing the scope rule (single ledger, or a correspondence's account
// set) before computing tx_root and persisting.
func (s *Service) Prepare(ctx context.Context, txns []*transaction.Transaction, parentID string, corr *correspondence.Correspondence) (*TxRollup, error) {
	if len(txns) == 0 {
		return nil, bkerrors.NewType("rollup.Prepare", "txns must be non-empty")
	}

	entriesByTxn, err := s.loadEntries(ctx, txns)
	if err != nil {
		return nil, err
	}

	if err := s.checkScope(ctx, txns, entriesByTxn, corr); err != nil {
		return nil, err
	}

	txIDs := make([]string, len(txns))
	for i, t := range txns {
		txIDs[i] = t.ID
	}
	sortStrings(txIDs)
	leaves := make([][32]byte, len(txIDs))
	for i, tid := range txIDs {
		b, err := hex.DecodeString(tid)
		if err != nil || len(b) != 32 {
			return nil, bkerrors.Valuef("rollup.Prepare", "transaction id %q is not a 32-byte hex hash", tid)
		}
		copy(leaves[i][:], b)
	}
	tree := merkle.FromLeaves(leaves)

	r := &TxRollup{TxIDs: txIDs, TxRoot: tree.Root()}

	if parentID != "" {
		parent, ok, err := s.GetByID(ctx, parentID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, bkerrors.Valuef("rollup.Prepare", "parent rollup %s not found", parentID)
		}
		r.ParentID = parentID
		r.Height = parent.Height + 1
		r.Balances = copyBalances(parent.Balances)
	} else {
		r.Height = 0
		r.Balances = map[string]account.RolledBalance{}
	}

	for _, t := range txns {
		for _, e := range entriesByTxn[t.ID] {
			fold(r.Balances, e.AccountID, e.Type, e.Amount)
		}
	}

	if corr != nil {
		r.CorrespondenceID = corr.ID
	} else {
		r.LedgerID = txns[0].LedgerIDs[0]
	}
	r.Timestamp = s.Now()

	id, err := hashedrecord.GenerateID(r)
	if err != nil {
		return nil, err
	}
	r.ID = id

	row, err := r.Row(s.ser)
	if err != nil {
		return nil, err
	}
	if _, err := s.backend.Insert(ctx, TableRollups, row); err != nil {
		return nil, storage.WrapErr("rollup.Prepare", err)
	}
	return r, nil
}

func sortStrings(ss []string) {
	for i := 1; i < len(ss); i++ {
		for j := i; j > 0 && ss[j-1] > ss[j]; j-- {
			ss[j-1], ss[j] = ss[j], ss[j-1]
		}
	}
}

func (s *Service) loadEntries(ctx context.Context, txns []*transaction.Transaction) (map[string][]*entry.Entry, error) {
	out := make(map[string][]*entry.Entry, len(txns))
	for _, t := range txns {
		var es []*entry.Entry
		for _, eid := range t.EntryIDs {
			e, ok, err := s.entries.GetByID(ctx, eid)
			if err != nil {
				return nil, err
			}
			if !ok {
				archived, ok, err := s.archiver.RestoreEntry(ctx, eid)
				if err != nil {
					return nil, err
				}
				if !ok {
					return nil, bkerrors.Valuef("rollup.Prepare", "entry %s not found", eid)
				}
				e = archived
			}
			es = append(es, e)
		}
		out[t.ID] = es
	}
	return out, nil
}

// loadTxns loads each transaction by id, falling back to the archived
// snapshot (same RestoreEntry fallback loadEntries already gives trimmed
// entries) so a trimmed rollup's Validate still sees its rolled-up
// transactions after Trim has deleted them from the live table.
func (s *Service) loadTxns(ctx context.Context, txIDs []string) ([]*transaction.Transaction, bool, error) {
	out := make([]*transaction.Transaction, 0, len(txIDs))
	for _, tid := range txIDs {
		t, ok, err := s.txs.GetByID(ctx, tid)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			archived, ok, err := s.archiver.RestoreTransaction(ctx, tid)
			if err != nil {
				return nil, false, err
			}
			if !ok {
				return nil, false, nil
			}
			t = archived
		}
		out = append(out, t)
	}
	return out, true, nil
}

// checkScope enforces that every entry's account must belong to the
// correspondence's discovered account set, or (absent a correspondence) to
// the same ledger as the first entry.
func (s *Service) checkScope(ctx context.Context, txns []*transaction.Transaction, entriesByTxn map[string][]*entry.Entry, corr *correspondence.Correspondence) error {
	if corr != nil {
		if len(corr.IdentityIDs) != 2 {
			return bkerrors.NewValue("rollup.Prepare", "correspondence must reference exactly two identities")
		}
		a, ok, err := s.idents.GetByID(ctx, corr.IdentityIDs[0])
		if err != nil {
			return err
		}
		if !ok {
			return bkerrors.Valuef("rollup.Prepare", "identity %s not found", corr.IdentityIDs[0])
		}
		b, ok, err := s.idents.GetByID(ctx, corr.IdentityIDs[1])
		if err != nil {
			return err
		}
		if !ok {
			return bkerrors.Valuef("rollup.Prepare", "identity %s not found", corr.IdentityIDs[1])
		}
		accounts, err := s.corresp.GetAccounts(ctx, a, b)
		if err != nil {
			return err
		}
		allowed := map[string]bool{}
		for _, acc := range accounts {
			allowed[acc.ID] = true
		}
		for _, es := range entriesByTxn {
			for _, e := range es {
				if !allowed[e.AccountID] {
					return bkerrors.Valuef("rollup.Prepare", "account %s is outside the correspondence's scope", e.AccountID)
				}
			}
		}
		return nil
	}

	if len(txns[0].LedgerIDs) == 0 {
		return bkerrors.NewValue("rollup.Prepare", "first transaction has no ledger scope")
	}
	ledgerID := txns[0].LedgerIDs[0]
	for _, t := range txns {
		for _, lid := range t.LedgerIDs {
			if lid != ledgerID {
				return bkerrors.Valuef("rollup.Prepare", "transaction %s touches ledger %s outside rollup scope %s", t.ID, lid, ledgerID)
			}
		}
	}
	return nil
}

// Validate reports whether r's height, folded balances and authorization
// (when scoped to a correspondence) are all consistent with its referenced
// transactions and parent. Only infrastructure failures surface as an
// error; inconsistencies resolve to (false, nil).
func (s *Service) Validate(ctx context.Context, r *TxRollup, runtime script.Runtime) (bool, error) {
	var parent *TxRollup
	if r.ParentID != "" {
		p, ok, err := s.GetByID(ctx, r.ParentID)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
		parent = p
		if r.Height != parent.Height+1 {
			return false, nil
		}
	} else if r.Height != 0 {
		return false, nil
	}

	txns, ok, err := s.loadTxns(ctx, r.TxIDs)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	entriesByTxn, err := s.loadEntries(ctx, txns)
	if err != nil {
		return false, err
	}

	seed := map[string]account.RolledBalance{}
	if parent != nil {
		seed = copyBalances(parent.Balances)
	}
	for _, t := range txns {
		for _, e := range entriesByTxn[t.ID] {
			fold(seed, e.AccountID, e.Type, e.Amount)
		}
	}
	if !balancesEqual(seed, r.Balances) {
		return false, nil
	}

	if r.CorrespondenceID != "" {
		ok, err := s.validateCorrespondenceAuth(ctx, r, runtime)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}

	return true, nil
}

// validateCorrespondenceAuth implements the joint-auth policy: prefer
// correspondence.details.txru_lock, else synthesize an all-pubkeys multisig
// lock when every identity has one, else authorize by default.
func (s *Service) validateCorrespondenceAuth(ctx context.Context, r *TxRollup, runtime script.Runtime) (bool, error) {
	corr, ok, err := s.loadCorrespondence(ctx, r.CorrespondenceID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	lock := corr.TxruLock()
	if lock == nil {
		pubkeys, complete, err := s.correspondencePubkeys(ctx, corr)
		if err != nil {
			return false, err
		}
		if !complete {
			return true, nil
		}
		keys := make([]ed25519.PublicKey, len(pubkeys))
		for i, pk := range pubkeys {
			keys[i] = ed25519.PublicKey(pk)
		}
		lock = script.MakeMultisigLock(keys)
	}

	if runtime == nil {
		runtime = script.StackMachine{}
	}
	idBytes, err := hex.DecodeString(r.ID)
	if err != nil {
		return false, bkerrors.NewEncoding("rollup.Validate", err.Error())
	}
	combined := append(append([]byte(nil), r.AuthScript...), lock...)
	return runtime.Verify(combined, map[string][]byte{"sigfield1": idBytes}, nil), nil
}

func (s *Service) loadCorrespondence(ctx context.Context, id string) (*correspondence.Correspondence, bool, error) {
	row, ok, err := s.backend.Find(ctx, correspondence.TableCorrespondences, id)
	if err != nil {
		return nil, false, storage.WrapErr("rollup.Validate", err)
	}
	if !ok {
		return nil, false, nil
	}
	c := &correspondence.Correspondence{ID: asString(row["id"])}
	if csv, ok := row["identity_ids"].(string); ok && csv != "" {
		c.IdentityIDs = strings.Split(csv, ",")
	}
	if csv, ok := row["ledger_ids"].(string); ok && csv != "" {
		c.LedgerIDs = strings.Split(csv, ",")
	}
	if packed, ok := row["details"].([]byte); ok {
		details, err := s.ser.Unpack(packed)
		if err != nil {
			return nil, false, err
		}
		c.Details = details
	}
	return c, true, nil
}

func (s *Service) correspondencePubkeys(ctx context.Context, corr *correspondence.Correspondence) ([][]byte, bool, error) {
	var pubkeys [][]byte
	for _, idID := range corr.IdentityIDs {
		id, ok, err := s.idents.GetByID(ctx, idID)
		if err != nil {
			return nil, false, err
		}
		if !ok || len(id.Pubkey) == 0 {
			return nil, false, nil
		}
		pubkeys = append(pubkeys, id.Pubkey)
	}
	return pubkeys, true, nil
}

// ProveInclusion returns an inclusion proof for txID against r.TxRoot.
func (r *TxRollup) ProveInclusion(txID string) ([]byte, bool) {
	leaf, err := hex.DecodeString(txID)
	if err != nil || len(leaf) != 32 {
		return nil, false
	}
	var leaves [][32]byte
	for _, tid := range r.TxIDs {
		b, err := hex.DecodeString(tid)
		if err != nil || len(b) != 32 {
			return nil, false
		}
		var arr [32]byte
		copy(arr[:], b)
		leaves = append(leaves, arr)
	}
	tree := merkle.FromLeaves(leaves)
	var leafArr [32]byte
	copy(leafArr[:], leaf)
	return tree.Prove(leafArr)
}

// VerifyInclusion reports whether proof demonstrates txID's membership in r.
func (r *TxRollup) VerifyInclusion(txID string, proof []byte) bool {
	leaf, err := hex.DecodeString(txID)
	if err != nil || len(leaf) != 32 {
		return false
	}
	var leafArr [32]byte
	copy(leafArr[:], leaf)
	return merkle.Verify(r.TxRoot, leafArr, proof)
}

// Trim requires r to validate, then archives (when archive is true) and
// deletes every rolled-up Transaction and its Entries, each pairing wrapped
// in a single storage transaction so cancellation between archive and
// delete can never leave a half-removed record. Returns the number of
// transactions removed.
func (s *Service) Trim(ctx context.Context, r *TxRollup, runtime script.Runtime, archiveFirst bool) (int, error) {
	ok, err := s.Validate(ctx, r, runtime)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, bkerrors.NewValue("rollup.Trim", "rollup does not validate")
	}

	count := 0
	for _, tid := range r.TxIDs {
		txn, ok, err := s.txs.GetByID(ctx, tid)
		if err != nil {
			return count, err
		}
		if !ok {
			continue
		}
		err = s.backend.WithTransaction(ctx, func(ctx context.Context, tx storage.Backend) error {
			scopedEntries := entry.NewService(tx, s.ser)
			scopedArchiver := archive.NewService(tx, s.ser)
			for _, eid := range txn.EntryIDs {
				e, ok, err := scopedEntries.GetByID(ctx, eid)
				if err != nil {
					return err
				}
				if !ok {
					continue
				}
				if archiveFirst {
					if err := scopedArchiver.ArchiveEntry(ctx, e); err != nil {
						return err
					}
				}
				if err := tx.Delete(ctx, entry.TableEntries, eid); err != nil {
					return storage.WrapErr("rollup.Trim", err)
				}
			}
			if archiveFirst {
				if err := scopedArchiver.ArchiveTransaction(ctx, txn); err != nil {
					return err
				}
			}
			if err := tx.Delete(ctx, transaction.TableTransactions, txn.ID); err != nil {
				return storage.WrapErr("rollup.Trim", err)
			}
			return nil
		})
		if err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
