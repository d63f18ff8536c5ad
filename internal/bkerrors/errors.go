// Package bkerrors defines the error taxonomy shared across the ledger
// engine: Type, Value, Auth, Encoding and Storage errors, each wrapping an
// underlying cause and satisfying errors.Is/errors.As.
package bkerrors

import (
	"errors"
	"fmt"
)

// Sentinels used with errors.Is to classify a returned error without
// inspecting its formatted message.
var (
	ErrType     = errors.New("type error")
	ErrValue    = errors.New("value error")
	ErrAuth     = errors.New("auth error")
	ErrEncoding = errors.New("encoding error")
	ErrStorage  = errors.New("storage error")
)

// TypeError reports that a caller supplied a value of the wrong kind.
type TypeError struct {
	Op  string
	Msg string
}

func (e *TypeError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Msg) }
func (e *TypeError) Unwrap() error { return ErrType }

// NewType builds a TypeError.
func NewType(op, msg string) error {
	return &TypeError{Op: op, Msg: msg}
}

// ValueError reports that caller data violates a semantic rule.
type ValueError struct {
	Op  string
	Msg string
}

func (e *ValueError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Msg) }
func (e *ValueError) Unwrap() error { return ErrValue }

// NewValue builds a ValueError.
func NewValue(op, msg string) error {
	return &ValueError{Op: op, Msg: msg}
}

// Valuef builds a ValueError with a formatted message.
func Valuef(op, format string, args ...any) error {
	return &ValueError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// AuthError reports that the script runtime rejected a required authorization.
type AuthError struct {
	Op  string
	Msg string
}

func (e *AuthError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Msg) }
func (e *AuthError) Unwrap() error { return ErrAuth }

// NewAuth builds an AuthError.
func NewAuth(op, msg string) error {
	return &AuthError{Op: op, Msg: msg}
}

// EncodingError reports that a value lies outside the canonical encoder's domain.
type EncodingError struct {
	Op  string
	Msg string
}

func (e *EncodingError) Error() string { return fmt.Sprintf("%s: %s", e.Op, e.Msg) }
func (e *EncodingError) Unwrap() error { return ErrEncoding }

// NewEncoding builds an EncodingError.
func NewEncoding(op, msg string) error {
	return &EncodingError{Op: op, Msg: msg}
}

// StorageError wraps an error propagated from the storage layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// NewStorage wraps err as a StorageError.
func NewStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
