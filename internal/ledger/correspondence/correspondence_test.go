package correspondence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/bookkeep/internal/ledger/account"
	"github.com/LeJamon/bookkeep/internal/ledger/identity"
	"github.com/LeJamon/bookkeep/internal/ledger/types"
	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage/memstore"
)

func TestPrepareStampsIDAndSortsIdentityIDs(t *testing.T) {
	backend := memstore.New()
	ser := serializer.NewCBOR()
	svc := NewService(backend, ser)

	c := &Correspondence{IdentityIDs: []string{"zzz", "aaa"}}
	require.NoError(t, svc.Prepare(context.Background(), c))
	assert.Len(t, c.ID, 64)

	row, ok, err := backend.Find(context.Background(), TableCorrespondences, c.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "aaa,zzz", row["identity_ids"])
}

func TestTxruLockExtractsDetailsField(t *testing.T) {
	c := &Correspondence{Details: map[string]any{"txru_lock": []byte("lock-bytes")}}
	assert.Equal(t, []byte("lock-bytes"), c.TxruLock())
}

func TestTxruLockAbsent(t *testing.T) {
	c := &Correspondence{Details: map[string]any{"note": "no lock here"}}
	assert.Nil(t, c.TxruLock())
}

func TestGetAccountsDiscoversExactCounterpartyMatch(t *testing.T) {
	backend := memstore.New()
	ser := serializer.NewCBOR()
	accounts := account.NewService(backend, ser)
	idents := identity.NewService(backend, ser)
	corr := NewService(backend, ser)
	ctx := context.Background()

	alice := &identity.Identity{Name: "alice"}
	require.NoError(t, idents.Insert(ctx, alice))
	bob := &identity.Identity{Name: "bob"}
	require.NoError(t, idents.Insert(ctx, bob))

	nostro := &account.Account{Name: "Nostro with Bob", Type: types.NostroAsset, LedgerID: "l1", CounterpartyIdentityID: bob.ID}
	require.NoError(t, accounts.Insert(ctx, nostro))
	unrelated := &account.Account{Name: "Office Supplies", Type: types.Asset, LedgerID: "l1"}
	require.NoError(t, accounts.Insert(ctx, unrelated))

	found, err := corr.GetAccounts(ctx, alice, bob)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, nostro.ID, found[0].ID)
}

func TestGetAccountsFallsBackToNameSubstring(t *testing.T) {
	backend := memstore.New()
	ser := serializer.NewCBOR()
	accounts := account.NewService(backend, ser)
	idents := identity.NewService(backend, ser)
	corr := NewService(backend, ser)
	ctx := context.Background()

	alice := &identity.Identity{Name: "alice"}
	require.NoError(t, idents.Insert(ctx, alice))
	bob := &identity.Identity{Name: "bob"}
	require.NoError(t, idents.Insert(ctx, bob))

	legacy := &account.Account{Name: "Vostro for " + bob.ID, Type: types.VostroLiability, LedgerID: "l1"}
	require.NoError(t, accounts.Insert(ctx, legacy))

	found, err := corr.GetAccounts(ctx, alice, bob)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, legacy.ID, found[0].ID)
}
