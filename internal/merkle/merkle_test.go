package merkle

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}

func TestRootStableUnderSameInput(t *testing.T) {
	leaves := [][32]byte{leaf("tx1"), leaf("tx2"), leaf("tx3")}
	t1 := FromLeaves(leaves)
	t2 := FromLeaves(leaves)
	assert.Equal(t, t1.Root(), t2.Root())
}

func TestRootChangesWithLeaves(t *testing.T) {
	r1 := FromLeaves([][32]byte{leaf("tx1"), leaf("tx2")}).Root()
	r2 := FromLeaves([][32]byte{leaf("tx1"), leaf("tx3")}).Root()
	assert.NotEqual(t, r1, r2)
}

func TestEmptyTreeHasZeroRoot(t *testing.T) {
	tr := FromLeaves(nil)
	assert.Equal(t, [32]byte{}, tr.Root())
}

func TestProveAndVerifyInclusion(t *testing.T) {
	leaves := [][32]byte{leaf("tx1"), leaf("tx2"), leaf("tx3"), leaf("tx4"), leaf("tx5")}
	tr := FromLeaves(leaves)
	root := tr.Root()

	for _, l := range leaves {
		proof, ok := tr.Prove(l)
		require.True(t, ok)
		assert.True(t, Verify(root, l, proof))
	}
}

func TestVerifyRejectsWrongLeaf(t *testing.T) {
	leaves := [][32]byte{leaf("tx1"), leaf("tx2"), leaf("tx3")}
	tr := FromLeaves(leaves)
	root := tr.Root()

	proof, ok := tr.Prove(leaves[0])
	require.True(t, ok)

	assert.False(t, Verify(root, leaf("not-in-tree"), proof))
}

func TestProveMissingLeafFails(t *testing.T) {
	tr := FromLeaves([][32]byte{leaf("tx1"), leaf("tx2")})
	_, ok := tr.Prove(leaf("tx3"))
	assert.False(t, ok)
}
