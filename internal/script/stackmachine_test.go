package script

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func combine(auth, lock []byte) []byte {
	out := make([]byte, 0, len(auth)+len(lock))
	out = append(out, auth...)
	out = append(out, lock...)
	return out
}

func TestStackMachineSingleSigCorrectSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	msg := []byte("transaction-contents")
	sig := ed25519.Sign(priv, msg)

	lock := MakeSingleSigLock(pub)
	auth := MakeAuthSig(sig)

	sm := StackMachine{}
	ok := sm.Verify(combine(auth, lock), map[string][]byte{"sigfield1": msg}, nil)
	assert.True(t, ok)
}

func TestStackMachineSingleSigWrongSignature(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	msg := []byte("transaction-contents")
	wrongSig := ed25519.Sign(otherPriv, msg)

	lock := MakeSingleSigLock(pub)
	auth := MakeAuthSig(wrongSig)

	sm := StackMachine{}
	ok := sm.Verify(combine(auth, lock), map[string][]byte{"sigfield1": msg}, nil)
	assert.False(t, ok)
}

func TestStackMachineMissingAuthFails(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	lock := MakeSingleSigLock(pub)
	sm := StackMachine{}
	ok := sm.Verify(lock, map[string][]byte{"sigfield1": []byte("msg")}, nil)
	assert.False(t, ok)
}

func TestStackMachineMultiSigRequiresAllSignatures(t *testing.T) {
	pub1, priv1, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	pub2, priv2, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	msg := []byte("joint-rollup")
	lock := MakeMultisigLock([]ed25519.PublicKey{pub1, pub2})

	full := MakeAuthMultiSig([][]byte{ed25519.Sign(priv1, msg), ed25519.Sign(priv2, msg)})
	sm := StackMachine{}
	assert.True(t, sm.Verify(combine(full, lock), map[string][]byte{"sigfield1": msg}, nil))

	partial := MakeAuthMultiSig([][]byte{ed25519.Sign(priv1, msg), ed25519.Sign(priv1, msg)})
	assert.False(t, sm.Verify(combine(partial, lock), map[string][]byte{"sigfield1": msg}, nil))
}

func TestStackMachineMalformedScriptNeverPanics(t *testing.T) {
	sm := StackMachine{}
	assert.NotPanics(t, func() {
		ok := sm.Verify([]byte{OpPushData, 0xFF, 0xFF, 0x01}, map[string][]byte{"sigfield1": []byte("m")}, nil)
		assert.False(t, ok)
	})
}

func TestAllowAllAndDenyAll(t *testing.T) {
	assert.True(t, AllowAll.Verify(nil, nil, nil))
	assert.False(t, DenyAll.Verify(nil, nil, nil))
}
