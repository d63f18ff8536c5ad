// Package script is the script-runtime contract consumed by the ledger
// engine: Verify(script, cache, contracts) -> bool, which must never
// throw — any internal failure surfaces as false. The engine treats the
// runtime as an opaque, pure validation function; it never reaches back
// into the runtime's internals.
//
// This package also ships a small reference runtime exercising that
// contract: a concatenated auth||lock byte script interpreted as a tiny
// stack machine with four opcodes (push-data, Ed25519 CHECKSIG,
// Ed25519 CHECKMULTISIG and secp256k1 CHECKSIG).
package script

// Runtime is the external collaborator the engine authorizes against. A
// Runtime implementation must never panic or return an error to the
// caller — Verify reports authorization success purely via its bool
// return.
type Runtime interface {
	Verify(combined []byte, cache map[string][]byte, contracts map[string][]byte) bool
}

// RuntimeFunc adapts a function to the Runtime interface.
type RuntimeFunc func(combined []byte, cache map[string][]byte, contracts map[string][]byte) bool

func (f RuntimeFunc) Verify(combined []byte, cache map[string][]byte, contracts map[string][]byte) bool {
	return f(combined, cache, contracts)
}

// AllowAll is a Runtime that authorizes everything; useful for tests that
// don't care about authorization semantics.
var AllowAll Runtime = RuntimeFunc(func([]byte, map[string][]byte, map[string][]byte) bool {
	return true
})

// DenyAll is a Runtime that authorizes nothing.
var DenyAll Runtime = RuntimeFunc(func([]byte, map[string][]byte, map[string][]byte) bool {
	return false
})
