package entry

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/bookkeep/internal/ledger/types"
	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage/memstore"
)

func TestPrepareRejectsInvalidType(t *testing.T) {
	e := &Entry{Type: "BOGUS", Amount: 10, AccountID: "a1"}
	err := e.Prepare()
	assert.Error(t, err)
}

func TestPrepareRejectsNegativeAmount(t *testing.T) {
	e := &Entry{Type: types.Debit, Amount: -1, AccountID: "a1"}
	err := e.Prepare()
	assert.Error(t, err)
}

func TestPrepareStampsID(t *testing.T) {
	e := &Entry{Type: types.Debit, Amount: 100, AccountID: "a1"}
	require.NoError(t, e.Prepare())
	assert.Len(t, e.ID, 64)
}

func TestNonceDistinguishesOtherwiseIdenticalEntries(t *testing.T) {
	e1 := &Entry{Type: types.Debit, Amount: 100, AccountID: "a1", Nonce: []byte{1}}
	e2 := &Entry{Type: types.Debit, Amount: 100, AccountID: "a1", Nonce: []byte{2}}
	require.NoError(t, e1.Prepare())
	require.NoError(t, e2.Prepare())
	assert.NotEqual(t, e1.ID, e2.ID)
}

func TestGetSigFieldsDefaultsToEntryID(t *testing.T) {
	e := &Entry{Type: types.Debit, Amount: 5, AccountID: "a1"}
	require.NoError(t, e.Prepare())

	fields, err := e.GetSigFields()
	require.NoError(t, err)
	want, err := hex.DecodeString(e.ID)
	require.NoError(t, err)
	assert.Equal(t, want, fields["sigfield1"])
}

func TestRegisterSigFieldPluginOverridesDefault(t *testing.T) {
	const pluginType = types.Credit
	RegisterSigFieldPlugin(pluginType, func(e *Entry) (map[string][]byte, error) {
		return map[string][]byte{"sigfield1": []byte("plugin-override")}, nil
	})
	defer RegisterSigFieldPlugin(pluginType, func(e *Entry) (map[string][]byte, error) {
		raw, err := hex.DecodeString(e.ID)
		if err != nil {
			return nil, err
		}
		return map[string][]byte{"sigfield1": raw}, nil
	})

	e := &Entry{Type: pluginType, Amount: 5, AccountID: "a1"}
	require.NoError(t, e.Prepare())

	fields, err := e.GetSigFields()
	require.NoError(t, err)
	assert.Equal(t, []byte("plugin-override"), fields["sigfield1"])
}

func TestInsertAndGetByIDRoundTrip(t *testing.T) {
	backend := memstore.New()
	ser := serializer.NewCBOR()
	svc := NewService(backend, ser)
	ctx := context.Background()

	e := &Entry{Type: types.Debit, Amount: 42, AccountID: "a1", Details: map[string]any{"memo": "rent"}}
	require.NoError(t, e.Prepare())
	require.NoError(t, svc.Insert(ctx, e))

	got, ok, err := svc.GetByID(ctx, e.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, e.ID, got.ID)
	assert.Equal(t, e.Type, got.Type)
	assert.Equal(t, e.Amount, got.Amount)
	assert.Equal(t, "rent", got.Details.(map[string]any)["memo"])
}
