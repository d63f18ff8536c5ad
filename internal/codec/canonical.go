// Package codec implements the canonical, self-delimiting byte encoding used
// to content-address every ledger record, plus the SHA-256 hashing wrapper
// that turns canonical bytes into a lowercase-hex record ID.
//
// The encoding follows the same tagged, length-prefixed style as the
// teacher's binary-codec field types (see internal/codec/binary-codec): every
// value is preceded by a one-byte kind tag so the stream is unambiguous and
// self-delimiting, and composite values (list, map) recurse.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/LeJamon/bookkeep/internal/bkerrors"
)

// Kind tags for the canonical wire form. Values are arbitrary but must never
// change once data has been hashed with them, since they are part of the
// commitment.
const (
	kindNull byte = iota
	kindBool
	kindInt
	kindBytes
	kindString
	kindList
	kindMap
)

// Canonical deterministically encodes v into self-delimiting bytes.
// Supported kinds: nil, bool, any signed integer width (folded into int64),
// []byte, string, []any (ordered), and map[string]any (re-sorted by key).
// Canonical fails with a bkerrors.EncodingError if v contains any other kind.
func Canonical(v any) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := encode(buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encode(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteByte(kindNull)
		return nil
	case bool:
		buf.WriteByte(kindBool)
		if val {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		return nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		i, err := toInt64(val)
		if err != nil {
			return err
		}
		buf.WriteByte(kindInt)
		return binary.Write(buf, binary.BigEndian, i)
	case []byte:
		buf.WriteByte(kindBytes)
		writeLenPrefixed(buf, val)
		return nil
	case string:
		buf.WriteByte(kindString)
		writeLenPrefixed(buf, []byte(val))
		return nil
	case []any:
		buf.WriteByte(kindList)
		binary.Write(buf, binary.BigEndian, uint32(len(val)))
		for _, item := range val {
			if err := encode(buf, item); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		buf.WriteByte(kindMap)
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		binary.Write(buf, binary.BigEndian, uint32(len(keys)))
		for _, k := range keys {
			writeLenPrefixed(buf, []byte(k))
			if err := encode(buf, val[k]); err != nil {
				return err
			}
		}
		return nil
	default:
		return bkerrors.NewEncoding("codec.Canonical", fmt.Sprintf("unsupported value kind %T", v))
	}
}

func writeLenPrefixed(buf *bytes.Buffer, b []byte) {
	binary.Write(buf, binary.BigEndian, uint32(len(b)))
	buf.Write(b)
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int:
		return int64(n), nil
	case int8:
		return int64(n), nil
	case int16:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case int64:
		return n, nil
	case uint:
		return int64(n), nil
	case uint8:
		return int64(n), nil
	case uint16:
		return int64(n), nil
	case uint32:
		return int64(n), nil
	case uint64:
		if n > 1<<63-1 {
			return 0, bkerrors.NewEncoding("codec.Canonical", "integer overflows signed 64-bit range")
		}
		return int64(n), nil
	default:
		return 0, bkerrors.NewEncoding("codec.Canonical", fmt.Sprintf("unsupported integer kind %T", v))
	}
}

// Hash returns the SHA-256 digest of b.
func Hash(b []byte) [32]byte {
	return sha256.Sum256(b)
}

// HexID renders a 32-byte digest as lowercase hex, the canonical form of
// every record ID in the engine.
func HexID(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// IDOf is a convenience that canonicalizes v, hashes it, and renders the hex ID.
func IDOf(v any) (string, error) {
	b, err := Canonical(v)
	if err != nil {
		return "", err
	}
	return HexID(Hash(b)), nil
}
