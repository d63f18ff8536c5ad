package transaction

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/bookkeep/internal/ledger/account"
	"github.com/LeJamon/bookkeep/internal/ledger/entry"
	"github.com/LeJamon/bookkeep/internal/ledger/types"
	"github.com/LeJamon/bookkeep/internal/script"
	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage/memstore"
)

type testFixture struct {
	txns     *Service
	accounts *account.Service
}

func newFixture() *testFixture {
	backend := memstore.New()
	ser := serializer.NewCBOR()
	return &testFixture{
		txns:     NewService(backend, ser),
		accounts: account.NewService(backend, ser),
	}
}

func (f *testFixture) newAccount(t *testing.T, name string, at types.AccountType) *account.Account {
	t.Helper()
	a := &account.Account{Name: name, Type: at, LedgerID: "ledger-1"}
	require.NoError(t, f.accounts.Insert(context.Background(), a))
	return a
}

func TestPrepareStartingCapital(t *testing.T) {
	f := newFixture()
	cash := f.newAccount(t, "Cash", types.Asset)
	capital := f.newAccount(t, "Capital", types.Equity)

	entries := []*entry.Entry{
		{Type: types.Debit, Amount: 10000, AccountID: cash.ID},
		{Type: types.Credit, Amount: 10000, AccountID: capital.ID},
	}

	txn, err := f.txns.Prepare(context.Background(), entries, "2026-01-01T00:00:00Z", nil, nil, script.AllowAll, nil, nil)
	require.NoError(t, err)
	assert.Len(t, txn.ID, 64)
	assert.Len(t, txn.EntryIDs, 2)
	assert.Equal(t, []string{"ledger-1"}, txn.LedgerIDs)
}

func TestPrepareRejectsUnbalancedEntries(t *testing.T) {
	f := newFixture()
	cash := f.newAccount(t, "Cash", types.Asset)
	capital := f.newAccount(t, "Capital", types.Equity)

	entries := []*entry.Entry{
		{Type: types.Debit, Amount: 10000, AccountID: cash.ID},
		{Type: types.Credit, Amount: 9000, AccountID: capital.ID},
	}

	_, err := f.txns.Prepare(context.Background(), entries, "2026-01-01T00:00:00Z", nil, nil, script.AllowAll, nil, nil)
	assert.Error(t, err)
}

func TestPrepareRejectsReusedEntry(t *testing.T) {
	f := newFixture()
	cash := f.newAccount(t, "Cash", types.Asset)
	capital := f.newAccount(t, "Capital", types.Equity)
	ctx := context.Background()

	first := []*entry.Entry{
		{Type: types.Debit, Amount: 100, AccountID: cash.ID, Nonce: []byte{1}},
		{Type: types.Credit, Amount: 100, AccountID: capital.ID, Nonce: []byte{1}},
	}
	txn, err := f.txns.Prepare(ctx, first, "2026-01-01T00:00:00Z", nil, nil, script.AllowAll, nil, nil)
	require.NoError(t, err)

	// Same type/amount/account/nonce as the first debit leg: Prepare
	// recomputes the identical entry ID, which the uniqueness check must reject.
	dup := []*entry.Entry{
		{Type: types.Debit, Amount: 100, AccountID: cash.ID, Nonce: []byte{1}},
		{Type: types.Credit, Amount: 100, AccountID: capital.ID, Nonce: []byte{2}},
	}
	_, err = f.txns.Prepare(ctx, dup, "2026-01-01T00:01:00Z", nil, nil, script.AllowAll, nil, nil)
	assert.Error(t, err)
	assert.NotEmpty(t, txn.ID)
}

func TestPrepareScriptGatedAuthorization(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	f := newFixture()
	cash := f.newAccount(t, "Cash", types.Asset)
	locked := &account.Account{
		Name:     "Locked Reserve",
		Type:     types.Liability,
		LedgerID: "ledger-1",
		LockingScripts: map[types.EntryType][]byte{
			types.Credit: script.MakeSingleSigLock(pub),
		},
	}
	require.NoError(t, f.accounts.Insert(context.Background(), locked))

	newEntries := func() []*entry.Entry {
		return []*entry.Entry{
			{Type: types.Debit, Amount: 500, AccountID: cash.ID},
			{Type: types.Credit, Amount: 500, AccountID: locked.ID},
		}
	}

	sm := script.StackMachine{}

	t.Run("missing auth script is rejected before signature checking", func(t *testing.T) {
		_, err := f.txns.Prepare(context.Background(), newEntries(), "2026-01-01T00:00:00Z", nil, nil, sm, nil, nil)
		assert.Error(t, err)
	})

	t.Run("wrong signature fails authorization", func(t *testing.T) {
		entries := newEntries()
		require.NoError(t, entries[1].Prepare())
		sigfields, err := entries[1].GetSigFields()
		require.NoError(t, err)

		_, wrongPriv, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		wrongSig := ed25519.Sign(wrongPriv, sigfields["sigfield1"])

		_, err = f.txns.Prepare(context.Background(), entries, "2026-01-01T00:00:00Z",
			map[string][]byte{locked.ID: script.MakeAuthSig(wrongSig)}, nil, sm, nil, nil)
		assert.Error(t, err)
	})

	t.Run("correct signature authorizes the transaction", func(t *testing.T) {
		entries := newEntries()
		require.NoError(t, entries[1].Prepare())
		sigfields, err := entries[1].GetSigFields()
		require.NoError(t, err)
		sig := ed25519.Sign(priv, sigfields["sigfield1"])

		// fresh carries the identical fields entries[1] signed over, so
		// Service.Prepare re-derives the same entry ID the signature covers.
		fresh := newEntries()
		txn, err := f.txns.Prepare(context.Background(), fresh, "2026-01-01T00:00:00Z",
			map[string][]byte{locked.ID: script.MakeAuthSig(sig)}, nil, sm, nil, nil)
		require.NoError(t, err)
		assert.Len(t, txn.ID, 64)
	})
}
