package script

import (
	"crypto/ed25519"
	"encoding/binary"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// Opcodes for the reference stack-machine runtime. A combined script is
// executed left to right; PushData pushes bytes, the signature opcodes pop
// operands and check a signature against cache["sigfield1"].
const (
	OpPushData          byte = 0x01
	OpCheckSig          byte = 0x02
	OpCheckMultiSig     byte = 0x03
	OpCheckSigSecp256k1 byte = 0x05
)

// MakeSecp256k1SigLock builds a locking script requiring a single
// secp256k1/ECDSA signature from pubkey over cache["sigfield1"] — an
// alternate signing algorithm alongside the default Ed25519 lock, for
// correspondences that standardize on secp256k1 keys.
func MakeSecp256k1SigLock(pubkey *secp256k1.PublicKey) []byte {
	return pushData(pubkey.SerializeCompressed(), []byte{OpCheckSigSecp256k1})
}

// MakeSingleSigLock builds a locking script requiring a single Ed25519
// signature from pubkey over cache["sigfield1"].
func MakeSingleSigLock(pubkey ed25519.PublicKey) []byte {
	return pushData(pubkey, []byte{OpCheckSig})
}

// MakeAuthSig builds an auth script supplying a single signature.
func MakeAuthSig(sig []byte) []byte {
	return pushData(sig, nil)
}

// MakeMultisigLock builds a locking script requiring every one of pubkeys to
// sign, in the same order the auth script supplies signatures — used to
// synthesize a correspondence's rollup authorization lock from both
// counterparties' identity keys when no explicit lock is recorded.
func MakeMultisigLock(pubkeys []ed25519.PublicKey) []byte {
	out := make([]byte, 0, 64)
	for _, pk := range pubkeys {
		out = pushData(pk, out)
	}
	out = append(out, OpCheckMultiSig, byte(len(pubkeys)))
	return out
}

// MakeAuthMultiSig builds an auth script supplying one signature per
// pubkey, in pubkey order.
func MakeAuthMultiSig(sigs [][]byte) []byte {
	out := make([]byte, 0, 64)
	for _, s := range sigs {
		out = pushData(s, out)
	}
	return out
}

func pushData(data []byte, out []byte) []byte {
	out = append(out, OpPushData)
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(data)))
	out = append(out, lenBuf[:]...)
	out = append(out, data...)
	return out
}

// StackMachine is the reference Runtime: it interprets combined as a
// sequence of PushData/CheckSig/CheckMultiSig/CheckSigSecp256k1 opcodes
// against an explicit data stack, verifying Ed25519 or secp256k1 signatures
// over cache["sigfield1"]. Any
// malformed script, short read, or verification failure resolves to false —
// per the contract, it never panics or returns an error.
type StackMachine struct{}

// Verify implements Runtime.
func (StackMachine) Verify(combined []byte, cache map[string][]byte, contracts map[string][]byte) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()

	msg := cache["sigfield1"]
	var stack [][]byte
	i := 0
	for i < len(combined) {
		op := combined[i]
		i++
		switch op {
		case OpPushData:
			if i+2 > len(combined) {
				return false
			}
			n := int(binary.BigEndian.Uint16(combined[i : i+2]))
			i += 2
			if i+n > len(combined) {
				return false
			}
			stack = append(stack, combined[i:i+n])
			i += n
		case OpCheckSig:
			if len(stack) < 2 {
				return false
			}
			pub := stack[len(stack)-1]
			sig := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			if !ed25519.Verify(ed25519.PublicKey(pub), msg, sig) {
				return false
			}
			stack = append(stack, []byte{1})
		case OpCheckSigSecp256k1:
			if len(stack) < 2 {
				return false
			}
			pub := stack[len(stack)-1]
			sig := stack[len(stack)-2]
			stack = stack[:len(stack)-2]
			pubkey, err := secp256k1.ParsePubKey(pub)
			if err != nil {
				return false
			}
			signature, err := ecdsa.ParseDERSignature(sig)
			if err != nil {
				return false
			}
			if !signature.Verify(msg, pubkey) {
				return false
			}
			stack = append(stack, []byte{1})
		case OpCheckMultiSig:
			if i >= len(combined) {
				return false
			}
			n := int(combined[i])
			i++
			if len(stack) < 2*n {
				return false
			}
			pubs := stack[len(stack)-n:]
			stack = stack[:len(stack)-n]
			sigs := stack[len(stack)-n:]
			stack = stack[:len(stack)-n]
			for k := 0; k < n; k++ {
				if !ed25519.Verify(ed25519.PublicKey(pubs[k]), msg, sigs[k]) {
					return false
				}
			}
			stack = append(stack, []byte{1})
		default:
			return false
		}
	}

	if len(stack) == 0 {
		return false
	}
	top := stack[len(stack)-1]
	return len(top) == 1 && top[0] == 1
}
