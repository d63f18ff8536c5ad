package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeJamon/bookkeep/internal/hashedrecord"
	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage/memstore"
)

func TestPrepareStampsID(t *testing.T) {
	i := &Identity{Name: "alice", Pubkey: []byte("pubkey-bytes")}
	require.NoError(t, i.Prepare())
	assert.Len(t, i.ID, 64)
}

func TestSeedRotationDoesNotChangeID(t *testing.T) {
	i := &Identity{Name: "alice", Pubkey: []byte("pubkey-bytes"), Seed: []byte("seed-v1")}
	require.NoError(t, i.Prepare())
	original := i.ID

	i.Seed = []byte("seed-v2")
	i.SecretDetails = map[string]any{"rotated": true}

	ok, err := hashedrecord.VerifyID(i, original)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNameChangeChangesID(t *testing.T) {
	i := &Identity{Name: "alice"}
	require.NoError(t, i.Prepare())
	original := i.ID

	i.Name = "bob"
	ok, err := hashedrecord.VerifyID(i, original)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPublicFieldsExcludesSeedAndSecret(t *testing.T) {
	i := &Identity{Name: "alice", Seed: []byte("s"), SecretDetails: "shh"}
	pub := i.PublicFields()
	_, hasSeed := pub["seed"]
	_, hasSecret := pub["secret_details"]
	_, hasID := pub["id"]
	assert.False(t, hasSeed)
	assert.False(t, hasSecret)
	assert.False(t, hasID)
	assert.Equal(t, "alice", pub["name"])
}

func TestUpdateMutableLeavesIDIntact(t *testing.T) {
	backend := memstore.New()
	ser := serializer.NewCBOR()
	svc := NewService(backend, ser)
	ctx := context.Background()

	i := &Identity{Name: "alice", Pubkey: []byte("pk")}
	require.NoError(t, svc.Insert(ctx, i))
	id := i.ID

	require.NoError(t, svc.UpdateMutable(ctx, id, []byte("new-seed"), map[string]any{"k": "v"}))

	reloaded, ok, err := svc.GetByID(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, reloaded.ID)
	assert.Equal(t, []byte("new-seed"), reloaded.Seed)
}
