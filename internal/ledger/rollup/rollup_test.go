package rollup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/bookkeep/internal/ledger/account"
	"github.com/LeJamon/bookkeep/internal/ledger/entry"
	"github.com/LeJamon/bookkeep/internal/ledger/transaction"
	"github.com/LeJamon/bookkeep/internal/ledger/types"
	"github.com/LeJamon/bookkeep/internal/script"
	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage"
	"github.com/LeJamon/bookkeep/internal/storage/memstore"
)

type rollupFixture struct {
	backend  storage.Backend
	accounts *account.Service
	txns     *transaction.Service
	rollups  *Service
}

func newRollupFixture() *rollupFixture {
	backend := memstore.New()
	ser := serializer.NewCBOR()
	svc := NewService(backend, ser)

	n := 0
	svc.Now = func() string {
		n++
		return []string{"2026-01-01T00:00:00Z", "2026-01-02T00:00:00Z", "2026-01-03T00:00:00Z"}[n-1]
	}

	return &rollupFixture{
		backend:  backend,
		accounts: account.NewService(backend, ser),
		txns:     transaction.NewService(backend, ser),
		rollups:  svc,
	}
}

func (f *rollupFixture) account(t *testing.T, name string, at types.AccountType) *account.Account {
	t.Helper()
	a := &account.Account{Name: name, Type: at, LedgerID: "ledger-1"}
	require.NoError(t, f.accounts.Insert(context.Background(), a))
	return a
}

func (f *rollupFixture) transaction(t *testing.T, entries []*entry.Entry, ts string) *transaction.Transaction {
	t.Helper()
	txn, err := f.txns.Prepare(context.Background(), entries, ts, nil, nil, script.AllowAll, nil, nil)
	require.NoError(t, err)
	return txn
}

func TestRollupGenesisAndChainedHeight(t *testing.T) {
	f := newRollupFixture()
	ctx := context.Background()

	cash := f.account(t, "Cash", types.Asset)
	capital := f.account(t, "Capital", types.Equity)

	tx1 := f.transaction(t, []*entry.Entry{
		{Type: types.Debit, Amount: 1000, AccountID: cash.ID},
		{Type: types.Credit, Amount: 1000, AccountID: capital.ID},
	}, "2025-12-31T00:00:00Z")

	r0, err := f.rollups.Prepare(ctx, []*transaction.Transaction{tx1}, "", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), r0.Height)
	assert.Equal(t, int64(1000), r0.Balances[cash.ID].Amount)
	assert.Equal(t, types.Debit, r0.Balances[cash.ID].Type)
	assert.Equal(t, int64(1000), r0.Balances[capital.ID].Amount)
	assert.Equal(t, types.Credit, r0.Balances[capital.ID].Type)

	tx2 := f.transaction(t, []*entry.Entry{
		{Type: types.Debit, Amount: 500, AccountID: cash.ID},
		{Type: types.Credit, Amount: 500, AccountID: capital.ID},
	}, "2026-01-01T12:00:00Z")

	r1, err := f.rollups.Prepare(ctx, []*transaction.Transaction{tx2}, r0.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), r1.Height)
	assert.Equal(t, r0.ID, r1.ParentID)
	assert.Equal(t, int64(1500), r1.Balances[cash.ID].Amount)
	assert.Equal(t, int64(1500), r1.Balances[capital.ID].Amount)

	ok, err := f.rollups.Validate(ctx, r1, script.AllowAll)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRollupRejectsCrossLedgerScope(t *testing.T) {
	f := newRollupFixture()
	ctx := context.Background()

	cash := f.account(t, "Cash", types.Asset)
	capital := f.account(t, "Capital", types.Equity)
	tx1 := f.transaction(t, []*entry.Entry{
		{Type: types.Debit, Amount: 100, AccountID: cash.ID},
		{Type: types.Credit, Amount: 100, AccountID: capital.ID},
	}, "2026-01-01T00:00:00Z")

	// Forge a second "transaction" claiming a different ledger scope to
	// exercise checkScope's cross-ledger rejection without a second fixture.
	tx2 := &transaction.Transaction{
		ID:        tx1.ID,
		EntryIDs:  tx1.EntryIDs,
		LedgerIDs: []string{"other-ledger"},
	}

	_, err := f.rollups.Prepare(ctx, []*transaction.Transaction{tx1, tx2}, "", nil)
	assert.Error(t, err)
}

func TestRollupInclusionProof(t *testing.T) {
	f := newRollupFixture()
	ctx := context.Background()

	cash := f.account(t, "Cash", types.Asset)
	capital := f.account(t, "Capital", types.Equity)

	var txns []*transaction.Transaction
	for i := 0; i < 4; i++ {
		txn := f.transaction(t, []*entry.Entry{
			{Type: types.Debit, Amount: int64(10 + i), AccountID: cash.ID, Nonce: []byte{byte(i)}},
			{Type: types.Credit, Amount: int64(10 + i), AccountID: capital.ID, Nonce: []byte{byte(i)}},
		}, "2026-01-01T00:00:00Z")
		txns = append(txns, txn)
	}

	r, err := f.rollups.Prepare(ctx, txns, "", nil)
	require.NoError(t, err)

	for _, txn := range txns {
		proof, ok := r.ProveInclusion(txn.ID)
		require.True(t, ok)
		assert.True(t, r.VerifyInclusion(txn.ID, proof))
	}
	assert.False(t, r.VerifyInclusion("0000000000000000000000000000000000000000000000000000000000000000", nil))
}

func TestRollupTrimArchivesAndValidatesAfter(t *testing.T) {
	f := newRollupFixture()
	ctx := context.Background()

	cash := f.account(t, "Cash", types.Asset)
	capital := f.account(t, "Capital", types.Equity)
	tx1 := f.transaction(t, []*entry.Entry{
		{Type: types.Debit, Amount: 250, AccountID: cash.ID},
		{Type: types.Credit, Amount: 250, AccountID: capital.ID},
	}, "2026-01-01T00:00:00Z")

	r, err := f.rollups.Prepare(ctx, []*transaction.Transaction{tx1}, "", nil)
	require.NoError(t, err)

	n, err := f.rollups.Trim(ctx, r, script.AllowAll, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, stillThere, err := f.txns.GetByID(ctx, tx1.ID)
	require.NoError(t, err)
	assert.False(t, stillThere)

	ok, err := f.rollups.Validate(ctx, r, script.AllowAll)
	require.NoError(t, err)
	assert.True(t, ok, "a trimmed rollup must still validate via archived entries")
}

func TestRollupTrimRequiresValidation(t *testing.T) {
	f := newRollupFixture()
	ctx := context.Background()

	cash := f.account(t, "Cash", types.Asset)
	capital := f.account(t, "Capital", types.Equity)
	tx1 := f.transaction(t, []*entry.Entry{
		{Type: types.Debit, Amount: 100, AccountID: cash.ID},
		{Type: types.Credit, Amount: 100, AccountID: capital.ID},
	}, "2026-01-01T00:00:00Z")

	r, err := f.rollups.Prepare(ctx, []*transaction.Transaction{tx1}, "", nil)
	require.NoError(t, err)

	// Corrupting the recorded balances must make Trim refuse to proceed.
	r.Balances[cash.ID] = account.RolledBalance{Type: types.Debit, Amount: 999999}

	_, err = f.rollups.Trim(ctx, r, script.AllowAll, true)
	assert.Error(t, err)
}
