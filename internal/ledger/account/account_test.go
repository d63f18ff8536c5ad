package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/bookkeep/internal/hashedrecord"
	"github.com/LeJamon/bookkeep/internal/ledger/entry"
	"github.com/LeJamon/bookkeep/internal/ledger/types"
	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage/memstore"
)

func newTestService() (*Service, *entry.Service) {
	backend := memstore.New()
	ser := serializer.NewCBOR()
	return NewService(backend, ser), entry.NewService(backend, ser)
}

func TestAccountInsertStampsContentAddressedID(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	a := &Account{Name: "Cash", Type: types.Asset, LedgerID: "ledger-1"}
	require.NoError(t, svc.Insert(ctx, a))
	assert.Len(t, a.ID, 64)

	ok, err := hashedrecord.VerifyID(a, a.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	a.Active = true
	ok, err = hashedrecord.VerifyID(a, a.ID)
	require.NoError(t, err)
	assert.True(t, ok, "active must be excluded from the content-addressed id")
}

func TestAccountInsertRejectsInvalidType(t *testing.T) {
	svc, _ := newTestService()
	a := &Account{Name: "Bogus", Type: "NOT_A_TYPE", LedgerID: "ledger-1"}
	err := svc.Insert(context.Background(), a)
	assert.Error(t, err)
}

func TestAccountInsertRejectsCyclicParent(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	root := &Account{Name: "Root", Type: types.Asset, LedgerID: "l1"}
	require.NoError(t, svc.Insert(ctx, root))

	child := &Account{Name: "Child", Type: types.Asset, LedgerID: "l1", ParentID: root.ID}
	require.NoError(t, svc.Insert(ctx, child))

	// Manually force a cycle: child's ID as root's new parent.
	err := svc.detectCycle(ctx, root.ID, child.ID)
	assert.Error(t, err)
}

func TestAccountBalanceDebitPositive(t *testing.T) {
	svc, entries := newTestService()
	ctx := context.Background()

	cash := &Account{Name: "Cash", Type: types.Asset, LedgerID: "l1"}
	require.NoError(t, svc.Insert(ctx, cash))

	debit := &entry.Entry{Type: types.Debit, Amount: 500, AccountID: cash.ID}
	require.NoError(t, debit.Prepare())
	require.NoError(t, entries.Insert(ctx, debit))

	credit := &entry.Entry{Type: types.Credit, Amount: 200, AccountID: cash.ID}
	require.NoError(t, credit.Prepare())
	require.NoError(t, entries.Insert(ctx, credit))

	bal, err := svc.Balance(ctx, cash, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(300), bal)
}

func TestAccountBalanceCreditPositive(t *testing.T) {
	svc, entries := newTestService()
	ctx := context.Background()

	payable := &Account{Name: "Payables", Type: types.Liability, LedgerID: "l1"}
	require.NoError(t, svc.Insert(ctx, payable))

	credit := &entry.Entry{Type: types.Credit, Amount: 700, AccountID: payable.ID}
	require.NoError(t, credit.Prepare())
	require.NoError(t, entries.Insert(ctx, credit))

	debit := &entry.Entry{Type: types.Debit, Amount: 100, AccountID: payable.ID}
	require.NoError(t, debit.Prepare())
	require.NoError(t, entries.Insert(ctx, debit))

	bal, err := svc.Balance(ctx, payable, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(600), bal)
}

func TestAccountBalanceIncludesSubAccounts(t *testing.T) {
	svc, entries := newTestService()
	ctx := context.Background()

	parent := &Account{Name: "Assets", Type: types.Asset, LedgerID: "l1"}
	require.NoError(t, svc.Insert(ctx, parent))

	child := &Account{Name: "Cash", Type: types.Asset, LedgerID: "l1", ParentID: parent.ID}
	require.NoError(t, svc.Insert(ctx, child))

	parentEntry := &entry.Entry{Type: types.Debit, Amount: 100, AccountID: parent.ID}
	require.NoError(t, parentEntry.Prepare())
	require.NoError(t, entries.Insert(ctx, parentEntry))

	childEntry := &entry.Entry{Type: types.Debit, Amount: 250, AccountID: child.ID}
	require.NoError(t, childEntry.Prepare())
	require.NoError(t, entries.Insert(ctx, childEntry))

	direct, err := svc.Balance(ctx, parent, false, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(100), direct)

	rolled, err := svc.Balance(ctx, parent, true, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(350), rolled)
}

func TestAccountValidateScriptAllowAllDenyAll(t *testing.T) {
	a := &Account{LockingScripts: map[types.EntryType][]byte{}}
	allow := a.ValidateScript(types.Debit, nil, allowAllRuntime{}, nil, nil)
	assert.True(t, allow)
	deny := a.ValidateScript(types.Debit, nil, denyAllRuntime{}, nil, nil)
	assert.False(t, deny)
}

type allowAllRuntime struct{}

func (allowAllRuntime) Verify([]byte, map[string][]byte, map[string][]byte) bool { return true }

type denyAllRuntime struct{}

func (denyAllRuntime) Verify([]byte, map[string][]byte, map[string][]byte) bool { return false }
