// Package serializer is the byte-serializer contract consumed by the ledger
// engine: pack/unpack over {null, bool, int, bytes, str, list, map}, plus a
// reference implementation backed by ugorji/go/codec's CBOR handle (the
// teacher's dependency set already carries github.com/ugorji/go/codec; this
// is the first concrete use of it in this module).
//
// The contract guarantees unpack(pack(v)) == v and defines fixed
// default-bytes sentinels for empty containers, matching the canonical
// storage form every packed column on disk must use.
package serializer

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// Sentinels for empty packed values. These must round-trip through
// Unpack/Pack unchanged; they are used whenever a column's packed value is
// absent so callers never have to special-case "never set" vs "set empty".
var (
	EmptyMap  = []byte{'d', 0, 0, 0, 0}
	EmptyList = []byte{'l', 0, 0, 0, 0}
	Null      = []byte{'n', 0, 0, 0, 0}
)

// Serializer is the contract external to the core: pack(value) -> bytes,
// unpack(bytes) -> value.
type Serializer interface {
	Pack(v any) ([]byte, error)
	Unpack(b []byte) (any, error)
}

// CBOR is the reference Serializer, implemented over ugorji/go/codec.
type CBOR struct {
	handle *codec.CborHandle
}

// NewCBOR builds the reference serializer.
func NewCBOR() *CBOR {
	h := &codec.CborHandle{}
	h.Canonical = true
	h.SignedInteger = true
	return &CBOR{handle: h}
}

// Pack encodes v. A nil v (or one of the sentinel constants' logical
// meaning) packs to the Null sentinel so empty details/locking_scripts
// columns have a stable on-disk form.
func (c *CBOR) Pack(v any) ([]byte, error) {
	if v == nil {
		return Null, nil
	}
	if m, ok := v.(map[string]any); ok && len(m) == 0 {
		return EmptyMap, nil
	}
	if l, ok := v.([]any); ok && len(l) == 0 {
		return EmptyList, nil
	}

	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, c.handle)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unpack decodes b, recognizing the three sentinels directly so a caller
// reading an empty column never has to round-trip through the CBOR decoder.
func (c *CBOR) Unpack(b []byte) (any, error) {
	switch {
	case len(b) == 0 || bytes.Equal(b, Null):
		return nil, nil
	case bytes.Equal(b, EmptyMap):
		return map[string]any{}, nil
	case bytes.Equal(b, EmptyList):
		return []any{}, nil
	}

	var v any
	dec := codec.NewDecoder(bytes.NewReader(b), c.handle)
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

// normalize walks a decoded value, converting codec's map[interface{}]interface{}
// and []interface{} results into the map[string]any / []any shapes the rest
// of the engine expects.
func normalize(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			ks, _ := k.(string)
			out[ks] = normalize(vv)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = normalize(vv)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = normalize(vv)
		}
		return out
	default:
		return val
	}
}
